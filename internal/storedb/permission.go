package storedb

import (
	"context"
	"database/sql"

	"github.com/foxcpp/exmdb/internal/ids"
)

// Rights bitmask values (frights*), matching the subset the storage layer
// and rule engine need to enforce move/copy and subfolder creation (spec
// §4.3, §4.5).
const (
	RightReadAny     uint32 = 1 << 0
	RightCreate      uint32 = 1 << 1
	RightEditOwned   uint32 = 1 << 2
	RightDeleteOwned uint32 = 1 << 3
	RightEditAny     uint32 = 1 << 4
	RightDeleteAny   uint32 = 1 << 5
	RightCreateSubfolder uint32 = 1 << 6
	RightOwner       uint32 = 1 << 7
	RightVisible     uint32 = 1 << 8
)

// MemberDefault and MemberAnonymous are the synthetic member ids every
// folder's permission list always contains (spec §3 "Permission").
const (
	MemberDefault   int64 = 0
	MemberAnonymous int64 = -1
)

// Permission is one (member, username, rights) row.
type Permission struct {
	MemberID int64
	Username string
	Rights   uint32
}

// Permissions loads a folder's permission list, materializing the
// "default" (username "") and "anonymous" (username "default") synthetic
// members if absent, per spec §3.
func (db *DB) Permissions(ctx context.Context, folder ids.EID) ([]Permission, error) {
	if err := db.ensureSyntheticMembers(ctx, folder); err != nil {
		return nil, err
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT member_id, username, rights FROM permissions WHERE folder_id = ?`, int64(folder))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.MemberID, &p.Username, &p.Rights); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) ensureSyntheticMembers(ctx context.Context, folder ids.EID) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		for _, m := range []Permission{
			{MemberID: MemberDefault, Username: ""},
			{MemberID: MemberAnonymous, Username: "default"},
		} {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO permissions(folder_id, member_id, username, rights) VALUES (?, ?, ?, 0)
				 ON CONFLICT(folder_id, member_id) DO NOTHING`,
				int64(folder), m.MemberID, m.Username); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetPermission upserts a member's rights on a folder.
func (db *DB) SetPermission(ctx context.Context, folder ids.EID, p Permission) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO permissions(folder_id, member_id, username, rights) VALUES (?, ?, ?, ?)
		 ON CONFLICT(folder_id, member_id) DO UPDATE SET rights = excluded.rights, username = excluded.username`,
		int64(folder), p.MemberID, p.Username, p.Rights)
	return err
}

// EffectiveRights returns the rights mask for username on folder, OR-ing
// together any user-specific row with the "default" member's row (every
// authenticated user at minimum inherits "default"'s grant).
func (db *DB) EffectiveRights(ctx context.Context, folder ids.EID, username string) (uint32, error) {
	perms, err := db.Permissions(ctx, folder)
	if err != nil {
		return 0, err
	}
	var rights uint32
	for _, p := range perms {
		if p.Username == "" || p.Username == username {
			rights |= p.Rights
		}
	}
	return rights, nil
}
