package evaluator

import (
	"strings"

	"github.com/google/uuid"

	"github.com/docforge/formulacore/internal/domain"
)

// materializeVariant builds (and caches) the table produced by
// Table.Variant(id): base rows minus DeletedBaseRowIDs, plus AddedRows,
// with CellOverrides applied, sharing the base table's column schema by
// reference. The result is registered in the evaluator's overlay so
// later TableReference/RowReference member access against it resolves
// without needing the project's own table index to know about it.
func (e *Evaluator) materializeVariant(base *domain.Table, variantID string) (*domain.Table, bool) {
	cacheKey := base.ID.String() + "#" + strings.ToLower(variantID)
	if t, ok := e.variantByKey[cacheKey]; ok {
		return t, true
	}

	var variant *domain.TableVariant
	for i := range base.Variants {
		if base.Variants[i].ID == variantID || strings.EqualFold(base.Variants[i].Name, variantID) {
			variant = &base.Variants[i]
			break
		}
	}
	if variant == nil {
		return nil, false
	}

	vt := &domain.Table{
		ID:      uuid.NewSHA1(variantTableNamespace, []byte(cacheKey)),
		Name:    base.Name + ":" + variant.Name,
		Columns: base.Columns,
	}
	for _, r := range base.Rows {
		if _, deleted := variant.DeletedBaseRowIDs[r.ID]; deleted {
			continue
		}
		vt.Rows = append(vt.Rows, r.Clone())
	}
	for _, r := range variant.AddedRows {
		vt.Rows = append(vt.Rows, r.Clone())
	}
	vt.RefreshIndexes()

	for _, ov := range variant.CellOverrides {
		if row, ok := vt.RowByID(ov.RowID); ok {
			row.Set(ov.ColumnID, ov.Value)
		}
	}

	e.variantByKey[cacheKey] = vt
	e.overlayTables[vt.ID] = vt
	return vt, true
}
