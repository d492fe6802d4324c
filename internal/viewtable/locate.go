package viewtable

import "github.com/foxcpp/exmdb/internal/ids"

// LocateTable is the inverse of QueryTable: given a message id and
// (for MVI tables) an instance number, returns its current idx (spec §4.6
// "locate_table"). Returns (0, false) if the row is hidden (collapsed
// under an unexpanded header) or not present.
func (t *ContentTable) LocateTable(mid ids.EID, instNum int) (int, bool) {
	for _, e := range t.entries {
		if e.isHeader || e.messageID != mid || e.instNum != instNum {
			continue
		}
		if e.idx == 0 {
			return 0, false
		}
		return e.idx, true
	}
	return 0, false
}

// locateHeader finds the header entry at the given depth whose category
// key matches, used by state restore (RestoreTableState).
func (t *ContentTable) locateHeader(depth int, key string) *entry {
	for _, e := range t.entries {
		if e.isHeader && e.depth == depth && e.categoryKey() == key {
			return e
		}
	}
	return nil
}
