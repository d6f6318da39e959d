package derived

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/docforge/formulacore/internal/domain"
	"github.com/docforge/formulacore/internal/filterlang"
)

// derivedRowNamespace seeds the deterministic uuid.NewSHA1 derivation of a
// derived row's identity from its (originId, sourceRowId) pair, so repeated
// resolutions of an unchanged project produce byte-identical row ids.
var derivedRowNamespace = uuid.MustParse("5f1a8b7e-9c2d-4e6a-8f3b-1a2c3d4e5f60")

// Diagnostics tallies the final per-row match states of an emitted result.
type Diagnostics struct {
	Matched      int
	NoMatch      int
	MultiMatch   int
	TypeMismatch int
}

func (d *Diagnostics) add(state domain.RowMatchState) {
	switch state {
	case domain.RowNoMatch:
		d.NoMatch++
	case domain.RowMultiMatch:
		d.MultiMatch++
	case domain.RowTypeMismatch:
		d.TypeMismatch++
	default:
		d.Matched++
	}
}

// Result is the outcome of resolving one derived table's pipeline.
type Result struct {
	Rows        []*domain.Row
	Diagnostics Diagnostics

	// FilterCompileError reports that FilterExpression failed to compile,
	// in which case every row was filtered out. It is reported on Result
	// only; the engine does not record it in its Metrics.
	FilterCompileError bool
}

// workingRow is a row under construction as it passes through the
// pipeline; cells are keyed by the derived table's OWN output column ids.
type workingRow struct {
	originID    string
	sourceRowID domain.RowID
	cells       map[domain.ColumnID]domain.CellValue
	state       domain.RowMatchState
}

func (w *workingRow) rowID() domain.RowID {
	key := fmt.Sprintf("%s:%s", w.originID, w.sourceRowID)
	return uuid.NewSHA1(derivedRowNamespace, []byte(key))
}

// TableLookup resolves a table by id, supplied by the caller (typically
// fctx.Context or a *domain.Project) so this package stays decoupled from
// project-wide indexing concerns.
type TableLookup interface {
	TableByID(id domain.TableID) (*domain.Table, bool)
}

// Resolve executes table's DerivedConfig pipeline and returns its output
// rows and diagnostics. table.Columns must already carry the derived
// schema; Resolve only reads it to drive projection copies and join key
// typing.
func Resolve(table *domain.Table, lookup TableLookup) (*Result, error) {
	if table.Derived == nil {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidState, "table has no derived config", nil)
	}
	cfg := table.Derived

	var rows []*workingRow

	if cfg.BaseTableID != domain.NilID {
		base, ok := lookup.TableByID(cfg.BaseTableID)
		if !ok {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, "derived base table not found", nil)
		}
		originID := cfg.BaseTableID.String()
		for _, r := range base.Rows {
			w := newWorkingRow(originID, r.ID)
			applyProjections(w, cfg.Projections, cfg.BaseTableID, r)
			rows = append(rows, w)
		}
	}

	for _, step := range cfg.Steps {
		source, ok := lookup.TableByID(step.SourceTableID)
		if !ok {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound, "derived step source table not found", nil)
		}

		switch step.Kind {
		case domain.DerivedStepAppend:
			originID := step.ID
			if originID == "" {
				originID = step.SourceTableID.String()
			}
			for _, r := range source.Rows {
				w := newWorkingRow(originID, r.ID)
				applyProjections(w, cfg.Projections, step.SourceTableID, r)
				rows = append(rows, w)
			}

		case domain.DerivedStepJoin:
			rows = applyJoinStep(table, source, step, cfg.Projections, rows)
		}
	}

	rows, filterErr := applyFilter(table, cfg.FilterExpression, rows)

	result := &Result{FilterCompileError: filterErr}
	result.Rows = make([]*domain.Row, 0, len(rows))
	for _, w := range rows {
		out := domain.NewRow(w.rowID())
		for colID, cell := range w.cells {
			out.Set(colID, cell)
		}
		result.Rows = append(result.Rows, out)
		result.Diagnostics.add(w.state)
	}
	return result, nil
}

func newWorkingRow(originID string, sourceRowID domain.RowID) *workingRow {
	return &workingRow{
		originID:    originID,
		sourceRowID: sourceRowID,
		cells:       make(map[domain.ColumnID]domain.CellValue),
		state:       domain.RowMatched,
	}
}

func applyProjections(w *workingRow, projections []domain.Projection, sourceTableID domain.TableID, sourceRow *domain.Row) {
	for _, p := range projections {
		if p.SourceTableID != sourceTableID {
			continue
		}
		if cell, ok := sourceRow.Get(p.SourceColumnID); ok {
			w.cells[p.OutputColumnID] = cell
		}
	}
}

// applyJoinStep enriches every existing working row with data looked up in
// source by step.KeyMappings.
func applyJoinStep(derivedTable *domain.Table, source *domain.Table, step domain.DerivedStep, projections []domain.Projection, rows []*workingRow) []*workingRow {
	n := len(step.KeyMappings)
	if n == 0 || n > 3 {
		for _, w := range rows {
			w.state = w.state.Combine(domain.RowTypeMismatch)
		}
		return rows
	}

	derivedCols := make([]*domain.Column, n)
	sourceCols := make([]*domain.Column, n)
	for i, km := range step.KeyMappings {
		dc, ok := derivedTable.ColumnByID(km.DerivedColumnID)
		if !ok {
			dc = nil
		}
		sc, ok := source.ColumnByID(km.SourceColumnID)
		if !ok {
			sc = nil
		}
		derivedCols[i] = dc
		sourceCols[i] = sc
	}

	unresolved := false
	compatible := true
	for i := range step.KeyMappings {
		if derivedCols[i] == nil || sourceCols[i] == nil {
			unresolved = true
			break
		}
		if atomKindForColumnKind(derivedCols[i].Kind) != atomKindForColumnKind(sourceCols[i].Kind) {
			compatible = false
		}
	}
	if unresolved || !compatible {
		for _, w := range rows {
			w.state = w.state.Combine(domain.RowTypeMismatch)
		}
		return rows
	}

	index := buildJoinIndex(source, step.KeyMappings, sourceCols)

	kept := rows[:0]
	for _, w := range rows {
		atoms := make([]KeyAtom, n)
		for i, km := range step.KeyMappings {
			cell := w.cells[km.DerivedColumnID]
			atoms[i] = cellAtom(derivedCols[i].Kind, cell)
		}
		key := buildCompositeKey(atoms)

		entry, found := index.entries[key]
		switch {
		case !found:
			w.state = w.state.Combine(domain.RowNoMatch)
			if step.JoinKind == domain.JoinKindInner {
				continue
			}
		case entry.multi:
			w.state = w.state.Combine(domain.RowMultiMatch)
		default:
			applyProjections(w, projections, step.SourceTableID, entry.row)
		}
		kept = append(kept, w)
	}
	return kept
}

type joinIndexEntry struct {
	row   *domain.Row
	multi bool
}

type joinIndex struct {
	entries map[compositeKey]joinIndexEntry
}

func buildJoinIndex(source *domain.Table, keyMappings []domain.KeyMapping, sourceCols []*domain.Column) *joinIndex {
	idx := &joinIndex{entries: make(map[compositeKey]joinIndexEntry, len(source.Rows))}
	for _, r := range source.Rows {
		atoms := make([]KeyAtom, len(keyMappings))
		for i, km := range keyMappings {
			cell, _ := r.Get(km.SourceColumnID)
			atoms[i] = cellAtom(sourceCols[i].Kind, cell)
		}
		key := buildCompositeKey(atoms)
		if existing, ok := idx.entries[key]; ok {
			existing.multi = true
			idx.entries[key] = existing
			continue
		}
		idx.entries[key] = joinIndexEntry{row: r}
	}
	return idx
}

// applyFilter compiles and runs cfg's FilterExpression over the working
// rows' output cells. A row whose
// evaluation errors is dropped; a compile failure drops every row.
func applyFilter(table *domain.Table, filterExpr string, rows []*workingRow) ([]*workingRow, bool) {
	if strings.TrimSpace(filterExpr) == "" {
		return rows, false
	}
	ast, err := filterlang.Parse(filterExpr)
	if err != nil {
		return nil, true
	}

	kept := rows[:0]
	for _, w := range rows {
		probe := domain.NewRow(domain.NilID)
		for colID, cell := range w.cells {
			probe.Set(colID, cell)
		}
		v, err := filterlang.Eval(ast, probe, table)
		if err != nil {
			continue
		}
		if v.Truthy() {
			kept = append(kept, w)
		}
	}
	return kept, false
}
