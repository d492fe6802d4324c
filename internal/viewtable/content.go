package viewtable

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/metrics"
	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
)

// entry is one materialized row: either a category header or a leaf
// message row (spec §4.6 "category headers ... followed by their message
// rows").
type entry struct {
	id        int64
	depth     int
	isHeader  bool
	messageID ids.EID
	instNum   int
	readState bool

	keyTuple []propval.TaggedValue // category/sort key values up to this row's depth

	count    int
	unread   int
	rowStat  RowStat
	extremum propval.TaggedValue
	prevID   int64
	idx      int // 0 means hidden/NULL
}

func (e *entry) categoryKey() string {
	var sb strings.Builder
	for _, v := range e.keyTuple {
		raw, _ := propval.EncodeStored(v)
		fmt.Fprintf(&sb, "%d:%x|", v.Tag, raw)
	}
	return sb.String()
}

// ContentTable is one open, materialized content-table handle (spec §4.6).
// Not safe for concurrent use: it has no locking of its own.
type ContentTable struct {
	db     *storedb.DB
	params TableParams

	entries []*entry
	byID    map[int64]*entry // header lookup by categoryKey hash collapsed to int64 isn't used; kept for future growth
	nextID  int64

	visible []*entry // entries in prev_id order whose ancestors are all expanded
}

type candidate struct {
	mid       ids.EID
	instNum   int
	readState bool
	keys      []propval.TaggedValue // one per sort field, in S order
}

// Build materializes the table per spec §4.6's two-stage algorithm: gather
// candidate rows (exploding MVI instances), sort by S, then recursively
// emit category headers and their rows, finally indexing visible rows.
func Build(ctx context.Context, db *storedb.DB, p TableParams) (*ContentTable, error) {
	start := time.Now()
	defer func() {
		metrics.ViewTableRebuildDuration.WithLabelValues("contents").Observe(time.Since(start).Seconds())
	}()

	t := &ContentTable{db: db, params: p, byID: make(map[int64]*entry)}

	mids, err := db.MessagesInFolder(ctx, p.Folder, p.AssocOnly, false)
	if err != nil {
		return nil, err
	}

	var cands []candidate
	for _, mid := range mids {
		bag, err := db.MessageProps(ctx, mid)
		if err != nil {
			return nil, err
		}
		if p.Restriction != nil {
			get := func(tag propval.Tag) (propval.TaggedValue, bool) { return bag.GetTag(tag) }
			if !propval.Eval(*p.Restriction, get, nil, nil) {
				continue
			}
		}
		readState := false
		if v, ok := bag.Get(propval.PidTagRead); ok {
			readState = v.Bool
		}

		mviIdx := -1
		for i, sf := range p.Sorts {
			if sf.MVI {
				mviIdx = i
				break
			}
		}

		if mviIdx < 0 {
			cands = append(cands, candidate{mid: mid, readState: readState, keys: rowKeys(bag, p.Sorts, 0)})
			continue
		}

		mvTag := p.Sorts[mviIdx].Tag
		v, ok := bag.GetTag(mvTag)
		n := 1
		if ok && v.Tag.PropType().IsMultiValue() {
			n = mvLen(v)
		}
		if n == 0 {
			n = 1
		}
		for inst := 0; inst < n; inst++ {
			cands = append(cands, candidate{mid: mid, instNum: inst, readState: readState, keys: rowKeys(bag, p.Sorts, inst)})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return compareKeys(cands[i].keys, cands[j].keys, p.Sorts) < 0
	})

	t.entries = t.group(cands, 0)
	t.linkAndIndex()
	return t, nil
}

// rowKeys extracts one TaggedValue per sort field for a candidate row. When
// mviInst selects a non-zero instance, the MVI field's value is the inst'th
// element instead of the whole multi-value.
func rowKeys(bag *propval.Bag, sorts []SortField, mviInst int) []propval.TaggedValue {
	out := make([]propval.TaggedValue, len(sorts))
	for i, sf := range sorts {
		v, ok := bag.GetTag(sf.Tag)
		if !ok {
			out[i] = propval.TaggedValue{Tag: sf.Tag}
			continue
		}
		if sf.MVI && v.Tag.PropType().IsMultiValue() {
			out[i] = mvElement(v, mviInst)
			continue
		}
		out[i] = v
	}
	return out
}

func mvLen(v propval.TaggedValue) int {
	switch {
	case v.MVStr != nil:
		return len(v.MVStr)
	case v.MVI32 != nil:
		return len(v.MVI32)
	case v.MVI64 != nil:
		return len(v.MVI64)
	case v.MVI16 != nil:
		return len(v.MVI16)
	case v.MVBin != nil:
		return len(v.MVBin)
	}
	return 0
}

func mvElement(v propval.TaggedValue, i int) propval.TaggedValue {
	scalar := propval.TaggedValue{Tag: propval.MakeTag(v.Tag.PropID(), v.Tag.PropType()&^propval.MvFlag)}
	switch {
	case v.MVStr != nil && i < len(v.MVStr):
		scalar.Str = v.MVStr[i]
	case v.MVI32 != nil && i < len(v.MVI32):
		scalar.I32 = v.MVI32[i]
	case v.MVI64 != nil && i < len(v.MVI64):
		scalar.I64 = v.MVI64[i]
	case v.MVI16 != nil && i < len(v.MVI16):
		scalar.I16 = v.MVI16[i]
	case v.MVBin != nil && i < len(v.MVBin):
		scalar.Bin = v.MVBin[i]
	}
	return scalar
}

func compareKeys(a, b []propval.TaggedValue, sorts []SortField) int {
	for i := range sorts {
		c := compareValue(a[i], b[i])
		if sorts[i].Direction.descending() {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareValue(a, b propval.TaggedValue) int {
	switch a.Tag.PropType() &^ propval.MvFlag {
	case propval.PtLong:
		return cmpInt(int64(a.I32), int64(b.I32))
	case propval.PtShort:
		return cmpInt(int64(a.I16), int64(b.I16))
	case propval.PtI8:
		return cmpInt(a.I64, b.I64)
	case propval.PtSysTime:
		return a.Time.Compare(b.Time)
	case propval.PtBoolean:
		return cmpInt(boolInt(a.Bool), boolInt(b.Bool))
	case propval.PtString8, propval.PtUnicode:
		return strings.Compare(a.Str, b.Str)
	default:
		ab, _ := propval.EncodeStored(a)
		bb, _ := propval.EncodeStored(b)
		return bytes.Compare(ab, bb)
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// group recursively builds the header/leaf tree for depth..CCategories-1,
// returning a flat pre-order slice (headers immediately followed by their
// descendants) as spec §4.6 describes.
func (t *ContentTable) group(cands []candidate, depth int) []*entry {
	if depth >= t.params.CCategories || len(cands) == 0 {
		out := make([]*entry, 0, len(cands))
		for _, c := range cands {
			e := &entry{
				id: t.allocID(), depth: depth, messageID: c.mid, instNum: c.instNum,
				readState: c.readState, keyTuple: c.keys,
			}
			out = append(out, e)
		}
		return out
	}

	var out []*entry
	i := 0
	for i < len(cands) {
		j := i + 1
		for j < len(cands) && compareValue(cands[i].keys[depth], cands[j].keys[depth]) == 0 {
			j++
		}
		group := cands[i:j]
		unread := 0
		for _, c := range group {
			if !c.readState {
				unread++
			}
		}
		header := &entry{
			id: t.allocID(), depth: depth, isHeader: true, keyTuple: group[0].keys[:depth+1],
			count: countLeaves(group), unread: unread,
			rowStat:  expandedIf(depth < t.params.CExpanded),
			extremum: extremumOf(group, depth, t.params.Sorts),
		}
		out = append(out, header)
		out = append(out, t.group(group, depth+1)...)
		i = j
	}
	return out
}

func countLeaves(group []candidate) int { return len(group) }

func expandedIf(b bool) RowStat {
	if b {
		return RowExpanded
	}
	return RowCollapsed
}

func extremumOf(group []candidate, depth int, sorts []SortField) propval.TaggedValue {
	best := group[0].keys[depth]
	wantMax := sorts[depth].Direction != SortMinCategory
	for _, c := range group[1:] {
		c2 := compareValue(c.keys[depth], best)
		if (wantMax && c2 > 0) || (!wantMax && c2 < 0) {
			best = c.keys[depth]
		}
	}
	return best
}

func (t *ContentTable) allocID() int64 {
	t.nextID++
	return t.nextID
}

// linkAndIndex assigns prev_id links across the full entry sequence, then
// walks it again assigning sequential idx to every row whose ancestor
// headers are all expanded (spec §4.6 "visible rows are indexed").
func (t *ContentTable) linkAndIndex() {
	var prev int64
	for _, e := range t.entries {
		e.prevID = prev
		prev = e.id
	}
	t.reindex()
}

func (t *ContentTable) reindex() {
	t.visible = t.visible[:0]
	idx := 0
	var stack []RowStat // expanded-state of ancestor headers, by depth
	for _, e := range t.entries {
		if len(stack) > e.depth {
			stack = stack[:e.depth]
		}
		visible := true
		for _, s := range stack {
			if s == RowCollapsed {
				visible = false
				break
			}
		}
		if visible {
			idx++
			e.idx = idx
			t.visible = append(t.visible, e)
		} else {
			e.idx = 0
		}
		if e.isHeader {
			stack = append(stack[:e.depth], e.rowStat)
		}
	}
}
