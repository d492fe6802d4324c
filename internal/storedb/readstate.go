package storedb

import (
	"context"
	"database/sql"

	"github.com/foxcpp/exmdb/internal/ids"
)

// SetReadState updates read/unread state for a message (spec §4.3 "Read
// state"). In a private mailbox username is always "". Setting state
// always allocates a read change number distinct from the normal change
// number, which drives the ICS read-state stream (spec §4.5). A public
// mailbox records it per user in read_cns; a private mailbox stores it in
// the message row's read_cn.
func (db *DB) SetReadState(ctx context.Context, message ids.EID, username string, read bool, isPublic bool) (readCN uint64, err error) {
	err = db.Tx(ctx, func(tx *sql.Tx) error {
		var e error
		readCN, e = db.CNAlloc.Allocate(ctx)
		if e != nil {
			return e
		}

		if isPublic {
			if read {
				if _, e := tx.ExecContext(ctx,
					`INSERT INTO read_states(message_id, username, is_read) VALUES (?, ?, 1)
					 ON CONFLICT(message_id, username) DO UPDATE SET is_read = 1`,
					int64(message), username); e != nil {
					return e
				}
			} else {
				// Public mailbox: clearing read state removes the row
				// entirely (spec §4.3).
				if _, e := tx.ExecContext(ctx, `DELETE FROM read_states WHERE message_id = ? AND username = ?`,
					int64(message), username); e != nil {
					return e
				}
			}
			_, e = tx.ExecContext(ctx,
				`INSERT INTO read_cns(message_id, username, read_cn) VALUES (?, ?, ?)
				 ON CONFLICT(message_id, username) DO UPDATE SET read_cn = excluded.read_cn`,
				int64(message), username, int64(readCN))
			return e
		}

		// Private mailbox: one read_state row on the message itself.
		if _, e := tx.ExecContext(ctx, `UPDATE messages SET read_state = ?, read_cn = ? WHERE message_id = ?`,
			boolToInt(read), int64(readCN), int64(message)); e != nil {
			return e
		}
		return nil
	})
	return readCN, err
}

// ReadState returns whether message is marked read for username (public
// mailboxes) or unconditionally (private mailboxes, username ignored).
func (db *DB) ReadState(ctx context.Context, message ids.EID, username string, isPublic bool) (bool, error) {
	if !isPublic {
		m, err := db.GetMessage(ctx, message)
		if err != nil {
			return false, err
		}
		return m.ReadState, nil
	}
	var read int
	err := db.conn.QueryRowContext(ctx, `SELECT is_read FROM read_states WHERE message_id = ? AND username = ?`,
		int64(message), username).Scan(&read)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return read != 0, err
}
