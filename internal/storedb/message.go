package storedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
)

// Message is a snapshot of a messages row (spec §3 "Message"), without its
// property bag.
type Message struct {
	ID           ids.EID
	ParentFID    ids.EID
	ParentAttID  ids.AttachmentID
	IsAssociated bool
	IsDeleted    bool
	ChangeNum    uint64
	ReadCN       uint64
	ReadState    bool
	Size         uint64
	GroupID      uint32
	TimerID      uint32
	MidString    string
	DeliverTime  time.Time
	LastModTime  time.Time
}

// NewMessageID allocates a fresh message EID, optionally biased to a
// folder's range via allocate_eid_from_folder (spec §4.2); this
// implementation does not partition the mailbox-wide counter by folder
// (gromox's "adjacency" optimization is an on-disk layout hint that does
// not affect correctness), so both entry points share one allocator.
func (db *DB) NewMessageID(ctx context.Context) (ids.EID, error) {
	gc, err := db.EIDAlloc.Allocate(ctx)
	if err != nil {
		return 0, err
	}
	return ids.MakeEID(ids.ReplicaLocal, gc), nil
}

// GetMessage fetches a message row by id.
func (db *DB) GetMessage(ctx context.Context, id ids.EID) (Message, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT parent_fid, parent_attid, is_associated, is_deleted, change_number,
		       read_cn, read_state, message_size, group_id, timer_id, mid_string,
		       deliver_time, last_mod_time
		FROM messages WHERE message_id = ?`, int64(id))

	var parentFID, parentAttID, readCN, groupID, timerID sql.NullInt64
	var midString sql.NullString
	var m Message
	var assoc, del, read int
	var deliverTime, lastModTime int64
	if err := row.Scan(&parentFID, &parentAttID, &assoc, &del, &m.ChangeNum,
		&readCN, &read, &m.Size, &groupID, &timerID, &midString, &deliverTime, &lastModTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, exterrors.New(exterrors.CodeNotFound, fmt.Sprintf("message %d", id))
		}
		return Message{}, err
	}
	m.ID = id
	if parentFID.Valid {
		m.ParentFID = ids.EID(parentFID.Int64)
	}
	if parentAttID.Valid {
		m.ParentAttID = ids.AttachmentID(parentAttID.Int64)
	}
	m.IsAssociated = assoc != 0
	m.IsDeleted = del != 0
	if readCN.Valid {
		m.ReadCN = uint64(readCN.Int64)
	}
	m.ReadState = read != 0
	if groupID.Valid {
		m.GroupID = uint32(groupID.Int64)
	}
	if timerID.Valid {
		m.TimerID = uint32(timerID.Int64)
	}
	m.MidString = midString.String
	m.DeliverTime = time.Unix(0, deliverTime)
	m.LastModTime = time.Unix(0, lastModTime)
	return m, nil
}

// CreateMessageParams is the input to CreateMessage.
type CreateMessageParams struct {
	ID           ids.EID // pre-allocated via NewMessageID
	ParentFID    ids.EID
	ParentAttID  ids.AttachmentID
	IsAssociated bool
	GroupID      uint32
}

// CreateMessage inserts a new message row, allocating its change number and
// recording delivery time as now (spec §4.3 write contract). The caller
// supplies property rows, recipients and attachments separately (the
// instance buffer composes these before calling CreateMessage via Flush).
func (db *DB) CreateMessage(ctx context.Context, p CreateMessageParams) (cn uint64, err error) {
	err = db.Tx(ctx, func(tx *sql.Tx) error {
		var e error
		cn, e = db.CNAlloc.Allocate(ctx)
		if e != nil {
			return e
		}
		now := time.Now().UnixNano()
		_, e = tx.ExecContext(ctx, `
			INSERT INTO messages(message_id, parent_fid, parent_attid, is_associated, is_deleted,
			                      change_number, read_state, message_size, group_id, deliver_time, last_mod_time)
			VALUES (?, ?, ?, ?, 0, ?, 0, 0, ?, ?, ?)`,
			int64(p.ID), nullableParent(p.ParentFID), nullableAttID(p.ParentAttID),
			boolToInt(p.IsAssociated), int64(cn), nullableGroup(p.GroupID), now, now)
		return e
	})
	return cn, err
}

func nullableAttID(a ids.AttachmentID) interface{} {
	if a == 0 {
		return nil
	}
	return int64(a)
}

func nullableGroup(g uint32) interface{} {
	if g == 0 {
		return nil
	}
	return int64(g)
}

// TouchMessage bumps a message's change_number and last_mod_time - the
// "every mutation allocates a change number" half of the write contract
// (spec §4.3). Parent-folder PR_LOCALCOMMITTIMEMAX bookkeeping and
// PCL/change-key maintenance are the caller's responsibility (they need
// the mailbox GUID and XID machinery, which live above storedb).
func (db *DB) TouchMessage(ctx context.Context, tx *sql.Tx, id ids.EID) (cn uint64, err error) {
	cn, err = db.CNAlloc.Allocate(ctx)
	if err != nil {
		return 0, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE messages SET change_number = ?, last_mod_time = ? WHERE message_id = ?`,
		int64(cn), time.Now().UnixNano(), int64(id))
	return cn, err
}

// MessageProps loads a message's full property bag.
func (db *DB) MessageProps(ctx context.Context, id ids.EID) (*propval.Bag, error) {
	return db.loadProps(ctx, `SELECT proptag, propval FROM message_properties WHERE message_id = ?`, int64(id))
}

// SetMessageProps upserts proptags on an existing message row within tx.
func (db *DB) SetMessageProps(ctx context.Context, tx *sql.Tx, id ids.EID, vals []propval.TaggedValue) error {
	for _, v := range vals {
		raw, err := propval.EncodeStored(v)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_properties(message_id, proptag, propval) VALUES (?, ?, ?)
			 ON CONFLICT(message_id, proptag) DO UPDATE SET propval = excluded.propval, cid = NULL`,
			int64(id), uint32(v.Tag), raw); err != nil {
			return err
		}
	}
	return nil
}

// SetMessageSize updates the cached message_size column, used by quota
// accounting and by PR_MESSAGE_SIZE_EXTENDED row fetch.
func (db *DB) SetMessageSize(ctx context.Context, tx *sql.Tx, id ids.EID, size uint64) error {
	_, err := tx.ExecContext(ctx, `UPDATE messages SET message_size = ? WHERE message_id = ?`, int64(size), int64(id))
	return err
}

// DeleteMessage hard-deletes (private mailbox) or soft-deletes (public
// mailbox, isDeleted=true) a message row and its properties/recipients/
// attachments. A hard delete also removes the message from every search
// folder's membership (search_result); a soft delete leaves that
// membership as it is.
func (db *DB) DeleteMessage(ctx context.Context, id ids.EID, soft bool) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		if soft {
			_, err := tx.ExecContext(ctx, `UPDATE messages SET is_deleted = 1 WHERE message_id = ?`, int64(id))
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM message_properties WHERE message_id = ?`,
			`DELETE FROM read_states WHERE message_id = ?`,
			`DELETE FROM read_cns WHERE message_id = ?`,
			`DELETE FROM recipients_properties WHERE recipient_id IN (SELECT recipient_id FROM recipients WHERE message_id = ?)`,
			`DELETE FROM recipients WHERE message_id = ?`,
			`DELETE FROM attachment_properties WHERE attachment_id IN (SELECT attachment_id FROM attachments WHERE message_id = ?)`,
			`DELETE FROM attachments WHERE message_id = ?`,
			`DELETE FROM search_result WHERE message_id = ?`,
			`DELETE FROM messages WHERE message_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, int64(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// MessagesInFolder lists message ids directly under folder, optionally
// restricted to FAI (associated) or normal messages.
func (db *DB) MessagesInFolder(ctx context.Context, folder ids.EID, assoc *bool, includeDeleted bool) ([]ids.EID, error) {
	q := `SELECT message_id FROM messages WHERE parent_fid = ?`
	args := []interface{}{int64(folder)}
	if assoc != nil {
		q += ` AND is_associated = ?`
		args = append(args, boolToInt(*assoc))
	}
	if !includeDeleted {
		q += ` AND is_deleted = 0`
	}
	rows, err := db.conn.QueryContext(ctx, q, args...)
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
