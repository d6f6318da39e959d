package engine

import "github.com/docforge/formulacore/internal/domain"

// Request selects one of the five evaluation modes:
// Full, Incremental(dirtyTableIds), IncrementalDocuments(dirtyDocIds),
// IncrementalTargeted(dirtyTableIds, targetedColumnIdsByTable), and
// StructuralIncremental(...). Construct one with the matching function
// below rather than populating the struct directly.
type Request struct {
	// fullEval, when true, evaluates and rematerializes every node
	// regardless of dirty sets.
	fullEval bool

	// structural, when true, forces the compile/plan caches to rebuild
	// even if the project reference is unchanged.
	structural bool

	DirtyTableIDs            []domain.TableID
	DirtyDocumentIDs         []domain.DocumentID
	TargetedColumnIDsByTable map[domain.TableID][]domain.ColumnID
}

// Full requests a full evaluation: structural refresh plus every table
// and document variable rematerialized/re-evaluated.
func Full() Request {
	return Request{fullEval: true, structural: true}
}

// Incremental requests evaluation restricted to the transitive dependents
// of dirtyTableIDs, reusing the cached plan and context.
func Incremental(dirtyTableIDs []domain.TableID) Request {
	return Request{DirtyTableIDs: dirtyTableIDs}
}

// IncrementalDocuments requests evaluation restricted to the transitive
// dependents of every document variable declared by dirtyDocIDs.
func IncrementalDocuments(dirtyDocIDs []domain.DocumentID) Request {
	return Request{DirtyDocumentIDs: dirtyDocIDs}
}

// IncrementalTargeted is Incremental plus a per-table restriction: within
// each table named in targetedColumnIDsByTable, only the subtree of the
// this_row_columns dependency graph reachable from the listed column ids
// is re-evaluated.
func IncrementalTargeted(dirtyTableIDs []domain.TableID, targetedColumnIDsByTable map[domain.TableID][]domain.ColumnID) Request {
	return Request{DirtyTableIDs: dirtyTableIDs, TargetedColumnIDsByTable: targetedColumnIDsByTable}
}

// StructuralIncremental forces a plan/context rebuild (tables, columns,
// documents or expressions may have changed) but still restricts
// evaluation to the transitive dependents of the supplied dirty sets,
// rather than evaluating everything like Full.
func StructuralIncremental(dirtyTableIDs []domain.TableID, dirtyDocumentIDs []domain.DocumentID) Request {
	return Request{structural: true, DirtyTableIDs: dirtyTableIDs, DirtyDocumentIDs: dirtyDocumentIDs}
}
