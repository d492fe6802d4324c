package viewtable

import "github.com/foxcpp/exmdb/internal/ids"

// ChangeKind distinguishes the three table-change notification shapes
// spec §4.6 names ("row-added, row-modified, row-deleted").
type ChangeKind int

const (
	RowAdded ChangeKind = iota
	RowModified
	RowDeleted
)

// ChangeEvent is delivered to the subscription layer whenever a mutation
// touches a folder or message whose view is currently open.
type ChangeEvent struct {
	Kind      ChangeKind
	Folder    ids.EID
	MessageID ids.EID
	// SchemaChanged is set when the folder's property-group set changed
	// in a way that requires the subscriber to fully reload the content
	// table rather than patch a single row (spec §4.6 "The engine also
	// reloads a content table when the folder's schema-affecting property
	// group changes").
	SchemaChanged bool
}

// Notifier delivers ChangeEvents to whatever subscription mechanism the
// top-level exmdb facade wires in (spec §4.6 "Notifications"). Kept as a
// minimal interface here so internal/viewtable has no dependency on the
// connection/subscription machinery above it.
type Notifier interface {
	NotifyTableChange(ev ChangeEvent)
}
