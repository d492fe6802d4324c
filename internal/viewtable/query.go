package viewtable

import (
	"context"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
)

// Row is one window entry returned by QueryTable: either a category header
// or a message row, with proptags resolved either from the materialized
// sort key or (spec §4.6 "fetched from storage per row") from the backing
// message.
type Row struct {
	Idx       int
	IsHeader  bool
	Depth     int
	MessageID ids.EID
	InstNum   int
	Count     int
	Unread    int
	Props     *propval.Bag

	// InstID identifies a category header for ExpandTable/CollapseTable;
	// zero for non-header rows.
	InstID int64
}

// QueryTable fetches a window of `needed` visible rows starting at idx
// `start` (1-based, matching the idx assigned by indexing), resolving
// proptags not already in the materialized sort key from storage (spec
// §4.6 "query_table").
func (t *ContentTable) QueryTable(ctx context.Context, proptags []propval.Tag, start, needed int) ([]Row, error) {
	if start < 1 {
		start = 1
	}
	var out []Row
	for _, e := range t.visible {
		if e.idx < start {
			continue
		}
		if len(out) >= needed {
			break
		}
		row := Row{Idx: e.idx, IsHeader: e.isHeader, Depth: e.depth, MessageID: e.messageID, InstNum: e.instNum, Count: e.count, Unread: e.unread}
		if e.isHeader {
			row.InstID = e.id
		}
		bag := propval.NewBag()
		for _, kv := range e.keyTuple {
			bag.Set(kv)
		}
		if !e.isHeader && len(proptags) > 0 {
			stored, err := t.db.MessageProps(ctx, e.messageID)
			if err != nil {
				return nil, err
			}
			for _, tag := range proptags {
				if v, ok := stored.GetTag(tag); ok {
					bag.Set(v)
				}
			}
		}
		row.Props = bag
		out = append(out, row)
	}
	return out, nil
}

// Len returns the total number of visible (indexed) rows.
func (t *ContentTable) Len() int { return len(t.visible) }

var errNotFound = exterrors.New(exterrors.CodeNotFound, "no matching row")
