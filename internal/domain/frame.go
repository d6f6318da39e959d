package domain

// EvaluationFrame carries the table/row/document context an expression is
// evaluated against: "this row", the candidate row introduced by
// method calls like Filter/Sort, and the parent row when evaluating inside
// a subtable. A nil *Table/*Row and a zero index mean "not bound" at that
// level.
type EvaluationFrame struct {
	CurrentTable     *Table
	CurrentRow       *Row
	CurrentRowIndex1 int

	CurrentDocument *Document

	CandidateTable     *Table
	CandidateRow       *Row
	CandidateRowIndex1 int

	ParentTable     *Table
	ParentRow       *Row
	ParentRowIndex1 int
}

// RootFrame starts a frame bound to a table/row pair with no candidate or
// parent context, used as the entry point for evaluating a row's own
// column formulas.
func RootFrame(table *Table, row *Row) EvaluationFrame {
	return EvaluationFrame{
		CurrentTable:     table,
		CurrentRow:       row,
		CurrentRowIndex1: table.RowIndex1(row.ID),
	}
}

// DocumentFrame starts a frame for evaluating a document variable or
// inline expression: no current table/row, just the document.
func DocumentFrame(doc *Document) EvaluationFrame {
	return EvaluationFrame{CurrentDocument: doc}
}

// WithCandidate returns a copy of f with the candidate row/table/index
// replaced, used when entering a Filter/Sort/First/etc. predicate so
// `@column` and `@rowIndex` within the predicate resolve against the
// element under test while CurrentRow keeps referring to the outer
// "this row".
func (f EvaluationFrame) WithCandidate(table *Table, row *Row, index1 int) EvaluationFrame {
	f.CandidateTable = table
	f.CandidateRow = row
	f.CandidateRowIndex1 = index1
	return f
}

// WithParent returns a copy of f with the parent row/table/index replaced,
// the context that `parentRow` and `parentTable` read.
func (f EvaluationFrame) WithParent(table *Table, row *Row, index1 int) EvaluationFrame {
	f.ParentTable = table
	f.ParentRow = row
	f.ParentRowIndex1 = index1
	return f
}

// WithCurrent returns a copy of f with the current row/table/index
// replaced, leaving the candidate and parent context untouched.
func (f EvaluationFrame) WithCurrent(table *Table, row *Row, index1 int) EvaluationFrame {
	f.CurrentTable = table
	f.CurrentRow = row
	f.CurrentRowIndex1 = index1
	return f
}
