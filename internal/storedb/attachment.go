package storedb

import (
	"context"
	"database/sql"

	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
)

// AttachmentRow is one attachment of a message (spec §3 "Attachment").
// EmbeddedMID is non-zero when the attachment carries a recursive embedded
// message.
type AttachmentRow struct {
	ID          ids.AttachmentID
	AttachNum   int
	EmbeddedMID ids.EID
	Props       *propval.Bag
}

// Attachments loads a message's attachment list ordered by attach_num.
func (db *DB) Attachments(ctx context.Context, message ids.EID) ([]AttachmentRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT attachment_id, attach_num, embedded_mid FROM attachments WHERE message_id = ? ORDER BY attach_num`,
		int64(message))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttachmentRow
	for rows.Next() {
		var a AttachmentRow
		var embedded sql.NullInt64
		if err := rows.Scan(&a.ID, &a.AttachNum, &embedded); err != nil {
			return nil, err
		}
		if embedded.Valid {
			a.EmbeddedMID = ids.EID(embedded.Int64)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		props, err := db.loadProps(ctx, `SELECT proptag, propval FROM attachment_properties WHERE attachment_id = ?`, int64(out[i].ID))
		if err != nil {
			return nil, err
		}
		out[i].Props = props
	}
	return out, nil
}

// AddAttachment appends a new attachment row to message within tx,
// returning its local attachment id.
func (db *DB) AddAttachment(ctx context.Context, tx *sql.Tx, message ids.EID, attachNum int, embedded ids.EID, props *propval.Bag) (ids.AttachmentID, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO attachments(message_id, attach_num, embedded_mid) VALUES (?, ?, ?)`,
		int64(message), attachNum, nullableParent(embedded))
	if err != nil {
		return 0, err
	}
	attID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if props != nil {
		var encErr error
		props.Each(func(v propval.TaggedValue) {
			if encErr != nil {
				return
			}
			raw, err := propval.EncodeStored(v)
			if err != nil {
				encErr = err
				return
			}
			_, encErr = tx.ExecContext(ctx, `INSERT INTO attachment_properties(attachment_id, proptag, propval) VALUES (?, ?, ?)`,
				attID, uint32(v.Tag), raw)
		})
		if encErr != nil {
			return 0, encErr
		}
	}
	return ids.AttachmentID(attID), nil
}

// SetAttachmentEmbedded points an attachment at its embedded message, used
// by the instance buffer's flush_instance once the embedded message's own
// row has been written and its id is known (spec §4.4).
func (db *DB) SetAttachmentEmbedded(ctx context.Context, tx *sql.Tx, id ids.AttachmentID, embedded ids.EID) error {
	_, err := tx.ExecContext(ctx, `UPDATE attachments SET embedded_mid = ? WHERE attachment_id = ?`, int64(embedded), int64(id))
	return err
}

// RemoveAttachment deletes an attachment and its properties; if it carried
// an embedded message, the caller is responsible for deleting that message
// separately (recursion is driven by the instance buffer, which knows
// whether the embedded message is shared).
func (db *DB) RemoveAttachment(ctx context.Context, tx *sql.Tx, id ids.AttachmentID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM attachment_properties WHERE attachment_id = ?`, int64(id)); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE attachment_id = ?`, int64(id))
	return err
}
