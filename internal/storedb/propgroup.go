package storedb

import (
	"context"
	"database/sql"

	"github.com/foxcpp/exmdb/internal/propval"
)

// CreatePropertyGroup records a named subset of proptags used to partition
// ONLYSPECIFIEDPROPERTIES replication by group_id (message-group partial
// replication, supplemented feature grounded on oxcfxics.cpp's
// common_util_get_proptags group logic).
func (db *DB) CreatePropertyGroup(ctx context.Context, tags []propval.Tag) (uint32, error) {
	var groupID int64
	err := db.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO property_groups DEFAULT VALUES`)
		if err != nil {
			return err
		}
		groupID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		for _, t := range tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO property_groupmaps(group_id, proptag) VALUES (?, ?)`, groupID, uint32(t)); err != nil {
				return err
			}
		}
		return nil
	})
	return uint32(groupID), err
}

// PropertyGroupTags resolves a group_id to its proptag set.
func (db *DB) PropertyGroupTags(ctx context.Context, groupID uint32) ([]propval.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT proptag FROM property_groupmaps WHERE group_id = ?`, int64(groupID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []propval.Tag
	for rows.Next() {
		var raw uint32
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, propval.Tag(raw))
	}
	return out, rows.Err()
}
