package storedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
)

// SearchFolderDef is a search folder's stored criteria (spec §4.3 "Search
// folders"): a serialized restriction tree, a serialized scope (the set of
// source folders to search, optionally recursive), and SEARCH_FLAG bits.
type SearchFolderDef struct {
	Restriction []byte
	Scope       []byte
	Flags       uint32
}

const (
	// SearchFlagRecursive matches gromox's SEARCH_STATIC/SEARCH_RECURSIVE
	// bit used when scoping a search to a folder subtree.
	SearchFlagRecursive uint32 = 1 << 0
	// SearchFlagStatic marks a one-shot (non-updating) search rather than
	// one kept live by incremental membership updates.
	SearchFlagStatic uint32 = 1 << 1
)

// SetSearchCriteria installs or replaces a search folder's condition, used
// by set_search_criteria (spec §4.3). Membership is not recomputed here;
// search_result changes only through ReplaceSearchMembers,
// AddSearchMember, RemoveSearchMember and DeleteMessage.
func (db *DB) SetSearchCriteria(ctx context.Context, folder ids.EID, def SearchFolderDef) error {
	f, err := db.GetFolder(ctx, folder)
	if err != nil {
		return err
	}
	if f.Type != FolderSearch {
		return exterrors.New(exterrors.CodeInvalidParam, "not a search folder")
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO search_folders(folder_id, restriction, scope, search_flags) VALUES (?, ?, ?, ?)
		 ON CONFLICT(folder_id) DO UPDATE SET restriction = excluded.restriction, scope = excluded.scope, search_flags = excluded.search_flags`,
		int64(folder), def.Restriction, def.Scope, def.Flags)
	return err
}

// SearchCriteria retrieves a search folder's stored criteria
// (get_search_criteria).
func (db *DB) SearchCriteria(ctx context.Context, folder ids.EID) (SearchFolderDef, error) {
	var def SearchFolderDef
	err := db.conn.QueryRowContext(ctx,
		`SELECT restriction, scope, search_flags FROM search_folders WHERE folder_id = ?`, int64(folder)).
		Scan(&def.Restriction, &def.Scope, &def.Flags)
	if errors.Is(err, sql.ErrNoRows) {
		return SearchFolderDef{}, exterrors.New(exterrors.CodeNotFound, "search folder has no criteria set")
	}
	return def, err
}

// SearchMembers returns the message ids currently matched by a search
// folder - the materialized membership table the content-table engine
// reads from when a client opens the search folder's table (spec §4.6).
func (db *DB) SearchMembers(ctx context.Context, folder ids.EID) ([]ids.EID, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT message_id FROM search_result WHERE folder_id = ?`, int64(folder))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ids.EID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, ids.EID(id))
	}
	return out, rows.Err()
}

// ReplaceSearchMembers overwrites a search folder's membership set in one
// transaction with the given members. It evaluates no restriction itself;
// the caller supplies the full result set.
func (db *DB) ReplaceSearchMembers(ctx context.Context, folder ids.EID, members []ids.EID) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_result WHERE folder_id = ?`, int64(folder)); err != nil {
			return err
		}
		for _, m := range members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO search_result(folder_id, message_id) VALUES (?, ?) ON CONFLICT(folder_id, message_id) DO NOTHING`,
				int64(folder), int64(m)); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddSearchMember and RemoveSearchMember add or remove one message in a
// search folder's membership without a full ReplaceSearchMembers rebuild.
func (db *DB) AddSearchMember(ctx context.Context, folder, message ids.EID) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO search_result(folder_id, message_id) VALUES (?, ?) ON CONFLICT(folder_id, message_id) DO NOTHING`,
		int64(folder), int64(message))
	return err
}

func (db *DB) RemoveSearchMember(ctx context.Context, folder, message ids.EID) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM search_result WHERE folder_id = ? AND message_id = ?`, int64(folder), int64(message))
	return err
}

// SearchScopeFolders lists every folder a search folder's scope covers,
// expanding recursively when recursive is set (SearchFlagRecursive). roots
// are scope folder ids the caller has already decoded.
func (db *DB) SearchScopeFolders(ctx context.Context, roots []ids.EID, recursive bool) ([]ids.EID, error) {
	if !recursive {
		return roots, nil
	}
	seen := make(map[ids.EID]bool)
	var out []ids.EID
	var walk func(ids.EID) error
	walk = func(id ids.EID) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		out = append(out, id)
		children, err := db.Children(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := walk(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}
