package storedb

import (
	"context"
	"database/sql"

	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
)

// RecipientRow is one recipient of a message, with its ordinal position in
// the ordered recipient list (spec §3 "Recipient").
type RecipientRow struct {
	ID      int64
	Ordinal int
	Props   *propval.Bag
}

// Recipients loads a message's recipient list in ordinal order.
func (db *DB) Recipients(ctx context.Context, message ids.EID) ([]RecipientRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT recipient_id, ordinal FROM recipients WHERE message_id = ? ORDER BY ordinal`, int64(message))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecipientRow
	for rows.Next() {
		var r RecipientRow
		if err := rows.Scan(&r.ID, &r.Ordinal); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		props, err := db.loadProps(ctx, `SELECT proptag, propval FROM recipients_properties WHERE recipient_id = ?`, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Props = props
	}
	return out, nil
}

// ReplaceRecipients deletes and reinserts a message's recipient list
// (write_message_instance replaces the recipient collection wholesale,
// spec §4.4).
func (db *DB) ReplaceRecipients(ctx context.Context, tx *sql.Tx, message ids.EID, recipients []*propval.Bag) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM recipients_properties WHERE recipient_id IN (SELECT recipient_id FROM recipients WHERE message_id = ?)`,
		int64(message)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE message_id = ?`, int64(message)); err != nil {
		return err
	}
	for i, bag := range recipients {
		res, err := tx.ExecContext(ctx, `INSERT INTO recipients(message_id, ordinal) VALUES (?, ?)`, int64(message), i)
		if err != nil {
			return err
		}
		recipID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		var encErr error
		bag.Each(func(v propval.TaggedValue) {
			if encErr != nil {
				return
			}
			raw, err := propval.EncodeStored(v)
			if err != nil {
				encErr = err
				return
			}
			_, encErr = tx.ExecContext(ctx, `INSERT INTO recipients_properties(recipient_id, proptag, propval) VALUES (?, ?, ?)`,
				recipID, uint32(v.Tag), raw)
		})
		if encErr != nil {
			return encErr
		}
	}
	return nil
}
