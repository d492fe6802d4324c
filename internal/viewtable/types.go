// Package viewtable implements the content/hierarchy/permission/rule table
// engine of spec §4.6: materialized, sorted, optionally categorized views
// over a folder's messages (or its permissions/rules). Rows are
// materialized, sorted and indexed in in-memory slices per table handle;
// no SQLite tables database backs them (SQLite appears here only for the
// bookmark state store in state.go).
package viewtable

import (
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
)

// SortDirection is one entry's ordering role within a table's sort-order
// set S (spec §4.6).
type SortDirection int

const (
	SortAsc SortDirection = iota
	SortDesc
	SortMaxCategory
	SortMinCategory
)

func (d SortDirection) isCategory() bool {
	return d == SortMaxCategory || d == SortMinCategory
}

func (d SortDirection) descending() bool {
	return d == SortDesc || d == SortMaxCategory
}

// SortField is one entry of S: a proptag, its comparison type, a direction,
// and whether it is the (at most one) MVI field causing an instance row per
// multi-value element.
type SortField struct {
	Tag       propval.Tag
	Direction SortDirection
	MVI       bool
}

// TableParams configures a content table build (spec §4.6).
type TableParams struct {
	Folder      ids.EID
	Restriction *propval.Restriction
	Sorts       []SortField
	// CCategories is the count of leading Sorts entries that define
	// category grouping depth.
	CCategories int
	// CExpanded is the initial expanded depth: category headers at
	// depth < CExpanded start row_stat=expanded.
	CExpanded int
	AssocOnly   *bool // nil: both; true: FAI only; false: normal only
}

// RowStat mirrors a category header's expand/collapse flag.
type RowStat int

const (
	RowCollapsed RowStat = 0
	RowExpanded  RowStat = 1
)
