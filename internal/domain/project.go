package domain

import "strings"

// Project is the top-level aggregate: an ordered set of tables and
// documents. Ordering is preserved because it drives stable
// topological-sort tie-breaking in the dependency planner.
type Project struct {
	ID        string
	Tables    []*Table
	Documents []*Document

	tableByID    map[TableID]*Table
	documentByID map[DocumentID]*Document
}

// NewProject constructs an empty project.
func NewProject(id string) *Project {
	return &Project{ID: id}
}

// RefreshIndexes rebuilds the project's table/document id indexes; call
// after mutating Tables or Documents.
func (p *Project) RefreshIndexes() {
	p.tableByID = make(map[TableID]*Table, len(p.Tables))
	for _, t := range p.Tables {
		p.tableByID[t.ID] = t
	}
	p.documentByID = make(map[DocumentID]*Document, len(p.Documents))
	for _, d := range p.Documents {
		p.documentByID[d.ID] = d
	}
}

// TableByID looks up a table by id.
func (p *Project) TableByID(id TableID) (*Table, bool) {
	t, ok := p.tableByID[id]
	return t, ok
}

// DocumentByID looks up a document by id.
func (p *Project) DocumentByID(id DocumentID) (*Document, bool) {
	d, ok := p.documentByID[id]
	return d, ok
}

// TableByName looks up a table by case-insensitive name, first match wins.
func (p *Project) TableByName(name string) (*Table, bool) {
	for _, t := range p.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}
