package viewtable

import (
	"context"

	"github.com/foxcpp/exmdb/internal/propval"
)

// MatchTable iterates visible rows starting at idx `start` in the
// requested direction, evaluating pres against each row's resolved
// properties, and returns the idx of the first match (spec §4.6
// "match_table"). Returns (0, false) if nothing matches.
func (t *ContentTable) MatchTable(ctx context.Context, pres propval.Restriction, start int, forward bool) (int, bool, error) {
	indices := t.orderedIndicesFrom(start, forward)
	for _, idx := range indices {
		e := t.visible[idx-1]
		if e.isHeader {
			continue
		}
		bag, err := t.db.MessageProps(ctx, e.messageID)
		if err != nil {
			return 0, false, err
		}
		get := func(tag propval.Tag) (propval.TaggedValue, bool) { return bag.GetTag(tag) }
		if propval.Eval(pres, get, nil, nil) {
			return e.idx, true, nil
		}
	}
	return 0, false, nil
}

func (t *ContentTable) orderedIndicesFrom(start int, forward bool) []int {
	var out []int
	if forward {
		for i := start; i <= len(t.visible); i++ {
			out = append(out, i)
		}
		return out
	}
	for i := start; i >= 1; i-- {
		out = append(out, i)
	}
	return out
}
