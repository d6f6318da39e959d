package domain

import "github.com/google/uuid"

// TableID, ColumnID, RowID and DocumentID are stable entity identities,
// google/uuid values; uuid.Nil is the "unset" sentinel for optional
// references instead of a pointer.
type (
	TableID    = uuid.UUID
	ColumnID   = uuid.UUID
	RowID      = uuid.UUID
	DocumentID = uuid.UUID
)

// NilID is the zero UUID, used as the "no id" sentinel for optional
// table/row/column/document references throughout this package.
var NilID = uuid.Nil
