package storedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
)

// FolderType mirrors spec §3 "Folder".
type FolderType int

const (
	FolderGeneric FolderType = iota
	FolderSearch
)

// Folder is a snapshot of a folder row, without its property bag (callers
// fetch properties separately via FolderProps, matching the original's
// split between folder metadata and its proptag rows).
type Folder struct {
	ID        ids.EID
	ParentID  ids.EID // zero means "no parent" (root)
	Type      FolderType
	ChangeNum uint64
	IsDeleted bool
}

// Provision creates the well-known folder tree for a brand-new private
// mailbox (spec §3 "well-known folder ids ... always exist after
// provisioning"). It is idempotent: calling it on an already-provisioned
// mailbox is a no-op.
func (db *DB) Provision(ctx context.Context) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders`).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		cn, err := db.CNAlloc.Allocate(ctx)
		if err != nil {
			return err
		}
		if err := insertFolder(ctx, tx, FolderRoot, 0, FolderGeneric, cn); err != nil {
			return err
		}
		for _, f := range privateWellKnownUnderRoot {
			cn, err := db.CNAlloc.Allocate(ctx)
			if err != nil {
				return err
			}
			if err := insertFolder(ctx, tx, f, FolderRoot, FolderGeneric, cn); err != nil {
				return err
			}
		}
		for _, f := range privateWellKnownUnderSubtree {
			cn, err := db.CNAlloc.Allocate(ctx)
			if err != nil {
				return err
			}
			if err := insertFolder(ctx, tx, f, FolderIPMSubtree, FolderGeneric, cn); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertFolder(ctx context.Context, tx *sql.Tx, id, parent ids.EID, ft FolderType, cn uint64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO folders(folder_id, parent_id, folder_type, change_number, is_deleted) VALUES (?, ?, ?, ?, 0)`,
		int64(id), nullableParent(parent), int(ft), int64(cn))
	return err
}

func nullableParent(p ids.EID) interface{} {
	if p == 0 {
		return nil
	}
	return int64(p)
}

// GetFolder fetches a folder row by id.
func (db *DB) GetFolder(ctx context.Context, id ids.EID) (Folder, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT parent_id, folder_type, change_number, is_deleted FROM folders WHERE folder_id = ?`, int64(id))
	var parent sql.NullInt64
	var f Folder
	var ft, del int
	if err := row.Scan(&parent, &ft, &f.ChangeNum, &del); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Folder{}, exterrors.New(exterrors.CodeNotFound, fmt.Sprintf("folder %d", id))
		}
		return Folder{}, err
	}
	f.ID = id
	if parent.Valid {
		f.ParentID = ids.EID(parent.Int64)
	}
	f.Type = FolderType(ft)
	f.IsDeleted = del != 0
	return f, nil
}

// Children returns the direct (non-search) children of a folder, in no
// particular order; callers needing sorted hierarchy rows go through the
// hierarchy table engine instead.
func (db *DB) Children(ctx context.Context, parent ids.EID) ([]ids.EID, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT folder_id FROM folders WHERE parent_id = ? AND is_deleted = 0`, int64(parent))
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

// wouldCycle walks the parent chain starting at candidate, returning true
// if it reaches target (used before reparenting a folder, spec §3
// "the parent graph is acyclic").
func (db *DB) wouldCycle(ctx context.Context, target, candidate ids.EID) (bool, error) {
	cur := candidate
	for cur != 0 {
		if cur == target {
			return true, nil
		}
		f, err := db.GetFolder(ctx, cur)
		if err != nil {
			return false, err
		}
		cur = f.ParentID
	}
	return false, nil
}

// CreateFolder inserts a new generic or search folder under parent,
// allocating a fresh EID and change number.
func (db *DB) CreateFolder(ctx context.Context, parent ids.EID, ft FolderType) (ids.EID, error) {
	var newID ids.EID
	err := db.Tx(ctx, func(tx *sql.Tx) error {
		gc, err := db.EIDAlloc.Allocate(ctx)
		if err != nil {
			return err
		}
		newID = ids.MakeEID(ids.ReplicaLocal, gc)
		cn, err := db.CNAlloc.Allocate(ctx)
		if err != nil {
			return err
		}
		return insertFolder(ctx, tx, newID, parent, ft, cn)
	})
	return newID, err
}

// MoveFolder reparents a folder (movecopy_folder, spec §4.3), rejecting
// moves that would introduce a cycle or target a well-known folder.
func (db *DB) MoveFolder(ctx context.Context, folder, newParent ids.EID) error {
	if folder <= FolderLocalFreebusy && folder != 0 {
		return exterrors.New(exterrors.CodeAccessDenied, "cannot move a well-known folder")
	}
	cyc, err := db.wouldCycle(ctx, folder, newParent)
	if err != nil {
		return err
	}
	if cyc || newParent == folder {
		return exterrors.New(exterrors.CodeInvalidParam, "move would create a cycle")
	}
	return db.Tx(ctx, func(tx *sql.Tx) error {
		cn, err := db.CNAlloc.Allocate(ctx)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE folders SET parent_id = ?, change_number = ? WHERE folder_id = ?`,
			int64(newParent), int64(cn), int64(folder))
		return err
	})
}

// SetFolderDeleted marks a public-store folder deleted (soft-delete;
// private-store folders are never soft-deleted per spec §3).
func (db *DB) SetFolderDeleted(ctx context.Context, folder ids.EID, deleted bool) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE folders SET is_deleted = ? WHERE folder_id = ?`, boolToInt(deleted), int64(folder))
	return err
}

// FolderProps loads a folder's full property bag.
func (db *DB) FolderProps(ctx context.Context, folder ids.EID) (*propval.Bag, error) {
	return db.loadProps(ctx, `SELECT proptag, propval FROM folder_properties WHERE folder_id = ?`, int64(folder))
}

func (db *DB) loadProps(ctx context.Context, query string, arg interface{}) (*propval.Bag, error) {
	rows, err := db.conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bag := propval.NewBag()
	for rows.Next() {
		var tag uint32
		var raw []byte
		if err := rows.Scan(&tag, &raw); err != nil {
			return nil, err
		}
		v, err := propval.DecodeStored(propval.Tag(tag), raw)
		if err != nil {
			return nil, err
		}
		bag.Set(v)
	}
	return bag, rows.Err()
}

// SetFolderProps upserts proptags into the folder's property bag and bumps
// change_number (spec §4.3). It does not write PR_LAST_MODIFICATION_TIME
// itself. XID/PCL bookkeeping is the caller's responsibility (it
// needs the mailbox GUID, which storedb does not own).
func (db *DB) SetFolderProps(ctx context.Context, folder ids.EID, vals []propval.TaggedValue) (cn uint64, err error) {
	err = db.Tx(ctx, func(tx *sql.Tx) error {
		var e error
		cn, e = db.CNAlloc.Allocate(ctx)
		if e != nil {
			return e
		}
		for _, v := range vals {
			raw, e := propval.EncodeStored(v)
			if e != nil {
				return e
			}
			if _, e := tx.ExecContext(ctx,
				`INSERT INTO folder_properties(folder_id, proptag, propval) VALUES (?, ?, ?)
				 ON CONFLICT(folder_id, proptag) DO UPDATE SET propval = excluded.propval`,
				int64(folder), uint32(v.Tag), raw); e != nil {
				return e
			}
		}
		_, e = tx.ExecContext(ctx, `UPDATE folders SET change_number = ? WHERE folder_id = ?`, int64(cn), int64(folder))
		return e
	})
	return cn, err
}
