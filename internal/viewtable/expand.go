package viewtable

import (
	"github.com/foxcpp/exmdb/internal/exterrors"
)

// headerByID resolves a header entry by its allocation id (the table's own
// inst_id for category rows).
func (t *ContentTable) headerByID(id int64) (*entry, error) {
	for _, e := range t.entries {
		if e.isHeader && e.id == id {
			return e, nil
		}
	}
	return nil, exterrors.New(exterrors.CodeInvalidParam, "no such category header")
}

// ExpandTable flips a header's row_stat to expanded and reindexes,
// returning the number of rows that became newly visible (spec §4.6
// "expand_table").
func (t *ContentTable) ExpandTable(instID int64) (int, error) {
	e, err := t.headerByID(instID)
	if err != nil {
		return 0, err
	}
	before := t.countVisibleUnder(e)
	if e.rowStat == RowExpanded {
		return 0, nil
	}
	e.rowStat = RowExpanded
	t.reindex()
	after := t.countVisibleUnder(e)
	return after - before, nil
}

// CollapseTable flips a header's row_stat to collapsed and reindexes,
// returning the number of rows hidden.
func (t *ContentTable) CollapseTable(instID int64) (int, error) {
	e, err := t.headerByID(instID)
	if err != nil {
		return 0, err
	}
	before := t.countVisibleUnder(e)
	if e.rowStat == RowCollapsed {
		return 0, nil
	}
	e.rowStat = RowCollapsed
	t.reindex()
	after := t.countVisibleUnder(e)
	return before - after, nil
}

// countVisibleUnder counts currently-visible descendants of header e
// (identified by position in t.entries, since entries is a pre-order
// walk: e's descendants are the contiguous run following it at depth >
// e.depth).
func (t *ContentTable) countVisibleUnder(target *entry) int {
	n := 0
	found := false
	for _, e := range t.entries {
		if e == target {
			found = true
			continue
		}
		if !found {
			continue
		}
		if e.depth <= target.depth {
			break
		}
		if e.idx != 0 {
			n++
		}
	}
	return n
}
