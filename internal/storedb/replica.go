package storedb

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
)

// ReplicaGUID resolves a replica id (other than the local mailbox's own 1
// and the table-header reserved 2) to the GUID it was mapped from, per
// spec §3 "XID" binding rules.
func (db *DB) ReplicaGUID(ctx context.Context, replid ids.ReplicaID) (uuid.UUID, error) {
	var raw []byte
	err := db.conn.QueryRowContext(ctx, `SELECT guid FROM replica_mapping WHERE replid = ?`, int64(replid)).Scan(&raw)
	if err == sql.ErrNoRows {
		return uuid.UUID{}, exterrors.New(exterrors.CodeNotFound, "unknown replica id")
	}
	if err != nil {
		return uuid.UUID{}, err
	}
	g, err := uuid.FromBytes(raw)
	return g, err
}

// ReplicaIDFor resolves a foreign GUID to its replica id, assigning a
// fresh one (next unused value > 2) if this GUID has never been seen by
// this mailbox before.
func (db *DB) ReplicaIDFor(ctx context.Context, guid uuid.UUID) (ids.ReplicaID, error) {
	var existing int64
	err := db.conn.QueryRowContext(ctx, `SELECT replid FROM replica_mapping WHERE guid = ?`, guid[:]).Scan(&existing)
	if err == nil {
		return ids.ReplicaID(existing), nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	var newID ids.ReplicaID
	err = db.Tx(ctx, func(tx *sql.Tx) error {
		var maxID sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(replid) FROM replica_mapping`).Scan(&maxID); err != nil {
			return err
		}
		next := int64(3)
		if maxID.Valid && maxID.Int64 >= next {
			next = maxID.Int64 + 1
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO replica_mapping(replid, guid) VALUES (?, ?)`, next, guid[:]); err != nil {
			return err
		}
		newID = ids.ReplicaID(next)
		return nil
	})
	return newID, err
}
