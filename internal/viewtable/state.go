package viewtable

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foxcpp/exmdb/internal/ids"
	_ "modernc.org/sqlite"
)

// StateStore is the tmp/state.sqlite3 handle that persists table bookmarks
// across RPC calls (spec §6 "Persisted files"). Distinct from the
// in-memory scratch building done by Build: this is the durable half,
// opened once per DB handle and shared by every content table it builds.
type StateStore struct {
	conn *sql.DB
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	folder_id     INTEGER NOT NULL,
	table_flags   INTEGER NOT NULL,
	sorts_blob    BLOB,
	highlight_mid INTEGER,
	highlight_inst INTEGER
);
CREATE TABLE IF NOT EXISTS bookmark_headers (
	bookmark_id INTEGER NOT NULL REFERENCES bookmarks(id),
	depth       INTEGER NOT NULL,
	category_key TEXT NOT NULL,
	row_stat    INTEGER NOT NULL
);
`

// OpenStateStore opens (creating if absent) the bookmarks database under
// dir/tmp/state.sqlite3.
func OpenStateStore(ctx context.Context, dir string) (*StateStore, error) {
	path := dir + "/tmp/state.sqlite3"
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("viewtable: open state store: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := conn.ExecContext(ctx, stateSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("viewtable: apply state schema: %w", err)
	}
	return &StateStore{conn: conn}, nil
}

func (s *StateStore) Close() error { return s.conn.Close() }

// StoreTableState persists the table's folder/flags/sorts, the caller's
// highlighted row, and the expand/collapse pattern of every category
// header, returning a bookmark id (spec §4.6 "store_table_state").
func (t *ContentTable) StoreTableState(ctx context.Context, store *StateStore, tableFlags uint32, sortsBlob []byte, highlightMID int64, highlightInst int) (int64, error) {
	tx, err := store.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookmarks(folder_id, table_flags, sorts_blob, highlight_mid, highlight_inst) VALUES (?, ?, ?, ?, ?)`,
		int64(t.params.Folder), tableFlags, sortsBlob, highlightMID, highlightInst)
	if err != nil {
		return 0, err
	}
	bookmarkID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, e := range t.entries {
		if !e.isHeader {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bookmark_headers(bookmark_id, depth, category_key, row_stat) VALUES (?, ?, ?, ?)`,
			bookmarkID, e.depth, e.categoryKey(), int(e.rowStat)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return bookmarkID, nil
}

// RestoreTableState resets every header to its CExpanded default, applies
// the bookmark's saved per-header row_stat, reindexes, and returns the new
// idx of the previously highlighted row or -1 if it no longer exists (spec
// §4.6 "restore_table_state").
func (t *ContentTable) RestoreTableState(ctx context.Context, store *StateStore, bookmarkID int64) (int, error) {
	var highlightMID int64
	var highlightInst int
	row := store.conn.QueryRowContext(ctx, `SELECT highlight_mid, highlight_inst FROM bookmarks WHERE id = ?`, bookmarkID)
	if err := row.Scan(&highlightMID, &highlightInst); err != nil {
		return -1, err
	}

	for _, e := range t.entries {
		if e.isHeader {
			e.rowStat = expandedIf(e.depth < t.params.CExpanded)
		}
	}

	rows, err := store.conn.QueryContext(ctx, `SELECT depth, category_key, row_stat FROM bookmark_headers WHERE bookmark_id = ?`, bookmarkID)
	if err != nil {
		return -1, err
	}
	defer rows.Close()
	for rows.Next() {
		var depth, rowStat int
		var key string
		if err := rows.Scan(&depth, &key, &rowStat); err != nil {
			return -1, err
		}
		if h := t.locateHeader(depth, key); h != nil {
			h.rowStat = RowStat(rowStat)
		}
	}
	if err := rows.Err(); err != nil {
		return -1, err
	}

	t.reindex()

	idx, ok := t.LocateTable(ids.EID(highlightMID), highlightInst)
	if !ok {
		return -1, nil
	}
	return idx, nil
}
