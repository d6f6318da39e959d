// Package fctx implements the formula context: fast lookup of
// tables/columns/rows/variables/documents by id/name/alias with ordinal
// row index, backed by byID/byName dual indexes rebuilt on demand.
package fctx

import (
	"regexp"
	"strings"

	"github.com/docforge/formulacore/internal/domain"
)

// Context is the formula evaluation core's external lookup interface,
// consumed by the compiler, planner and evaluator.
type Context interface {
	TableByID(id domain.TableID) (*domain.Table, bool)
	TableByName(name string) (*domain.Table, bool)
	RowDisplayLabel(table *domain.Table, row *domain.Row) string
	DocumentByID(id domain.DocumentID) (*domain.Document, bool)
	DocumentByAlias(alias string) (*domain.Document, bool)
}

// nonAlias matches runs of characters NOT allowed in an alias; used to
// collapse them to a single underscore.
var nonAlias = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// NormalizeAlias implements the document alias normalization rule:
// keep [A-Za-z0-9_], collapse other runs to "_", trim "_", ensure a
// letter/underscore start (else prefix "_"); empty fallback is "doc".
func NormalizeAlias(s string) string {
	collapsed := nonAlias.ReplaceAllString(s, "_")
	trimmed := strings.Trim(collapsed, "_")
	if trimmed == "" {
		return "doc"
	}
	c := trimmed[0]
	if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_') {
		trimmed = "_" + trimmed
	}
	return trimmed
}

// ProjectContext is the default Context implementation: a thin read-only
// view over a *domain.Project plus a rebuildable alias index for document
// lookup.
type ProjectContext struct {
	project *domain.Project

	byFileNameAlias map[string]*domain.Document
	byTitleAlias    map[string]*domain.Document
}

// NewProjectContext builds a context over project, indexing document
// aliases immediately.
func NewProjectContext(project *domain.Project) *ProjectContext {
	c := &ProjectContext{project: project}
	c.RefreshIndexes()
	return c
}

// RefreshIndexes rebuilds the project's id indexes and this context's
// document alias indexes; call after structural project mutation.
func (c *ProjectContext) RefreshIndexes() {
	c.project.RefreshIndexes()
	for _, t := range c.project.Tables {
		t.RefreshIndexes()
	}
	c.byFileNameAlias = make(map[string]*domain.Document, len(c.project.Documents))
	c.byTitleAlias = make(map[string]*domain.Document, len(c.project.Documents))
	for _, d := range c.project.Documents {
		fileAlias := NormalizeAlias(d.FileName)
		if _, exists := c.byFileNameAlias[fileAlias]; !exists {
			c.byFileNameAlias[fileAlias] = d
		}
		titleAlias := NormalizeAlias(d.Title)
		if _, exists := c.byTitleAlias[titleAlias]; !exists {
			c.byTitleAlias[titleAlias] = d
		}
	}
}

// Project returns the underlying project.
func (c *ProjectContext) Project() *domain.Project { return c.project }

func (c *ProjectContext) TableByID(id domain.TableID) (*domain.Table, bool) {
	return c.project.TableByID(id)
}

func (c *ProjectContext) TableByName(name string) (*domain.Table, bool) {
	return c.project.TableByName(name)
}

func (c *ProjectContext) ColumnByName(table *domain.Table, name string) (*domain.Column, bool) {
	if table == nil {
		return nil, false
	}
	return table.ColumnByName(name)
}

func (c *ProjectContext) RowByID(table *domain.Table, id domain.RowID) (*domain.Row, bool) {
	if table == nil {
		return nil, false
	}
	return table.RowByID(id)
}

func (c *ProjectContext) RowIndex1(table *domain.Table, id domain.RowID) int {
	if table == nil {
		return 0
	}
	return table.RowIndex1(id)
}

func (c *ProjectContext) RowDisplayLabel(table *domain.Table, row *domain.Row) string {
	if table == nil || row == nil {
		return ""
	}
	return table.RowDisplayLabel(row)
}

// TableVariableExpr looks up a table variable's expression by table id.
func (c *ProjectContext) TableVariableExpr(tableID domain.TableID, name string) (string, bool) {
	t, ok := c.project.TableByID(tableID)
	if !ok {
		return "", false
	}
	return t.VariableExpr(name)
}

// DocumentByAlias resolves alias against the primary (FileName) index
// first, then the secondary (Title) index.
func (c *ProjectContext) DocumentByAlias(alias string) (*domain.Document, bool) {
	key := NormalizeAlias(alias)
	if d, ok := c.byFileNameAlias[key]; ok {
		return d, true
	}
	if d, ok := c.byTitleAlias[key]; ok {
		return d, true
	}
	return nil, false
}

func (c *ProjectContext) DocumentByID(id domain.DocumentID) (*domain.Document, bool) {
	return c.project.DocumentByID(id)
}

// DocumentVariableExpr looks up a document variable's expression by
// document id.
func (c *ProjectContext) DocumentVariableExpr(docID domain.DocumentID, name string) (string, bool) {
	d, ok := c.project.DocumentByID(docID)
	if !ok {
		return "", false
	}
	return d.VariableExpr(name)
}

// RowExists and TableExists implement domain.RelationResolver so a
// ProjectContext can be passed directly to domain.ConvertToCell.
func (c *ProjectContext) RowExists(tableID domain.TableID, rowID domain.RowID) bool {
	t, ok := c.project.TableByID(tableID)
	if !ok {
		return false
	}
	_, ok = t.RowByID(rowID)
	return ok
}

func (c *ProjectContext) TableExists(tableID domain.TableID) bool {
	_, ok := c.project.TableByID(tableID)
	return ok
}
