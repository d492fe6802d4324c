package storedb

import (
	"context"
	"database/sql"
	"time"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
)

// MoveCopyParams configures movecopy_message / movecopy_messages (spec
// §4.3 "Move/copy").
type MoveCopyParams struct {
	SrcFolder  ids.EID
	DstFolder  ids.EID
	Username   string
	IsOwner    bool
	IsMove     bool
	IsPublic   bool
}

// CanMoveCopy enforces the permission matrix spec §4.3 names: owner,
// read-any, delete-any, delete-owned. srcRights/dstRights are the
// requester's effective rights on each folder.
func CanMoveCopy(p MoveCopyParams, srcRights, dstRights uint32) error {
	if dstRights&(RightCreate|RightOwner) == 0 {
		return exterrors.New(exterrors.CodeAccessDenied, "no create rights on destination folder")
	}
	if p.IsMove {
		if p.IsOwner {
			return nil
		}
		if srcRights&(RightDeleteAny|RightOwner) != 0 {
			return nil
		}
		if srcRights&RightDeleteOwned != 0 {
			return nil
		}
		return exterrors.New(exterrors.CodeAccessDenied, "insufficient rights to delete source message")
	}
	if srcRights&(RightReadAny|RightOwner) == 0 && !p.IsOwner {
		return exterrors.New(exterrors.CodeAccessDenied, "insufficient rights to read source message")
	}
	return nil
}

// MoveCopyMessage implements movecopy_message: copies (or moves) one
// message into dst, allocating a fresh message id and change number for
// the destination row, and - for a move - deleting the source (soft in
// public mailboxes, hard in private, per spec §3/§4.3).
func (db *DB) MoveCopyMessage(ctx context.Context, p MoveCopyParams, srcMID ids.EID) (dstMID ids.EID, err error) {
	src, err := db.GetMessage(ctx, srcMID)
	if err != nil {
		return 0, err
	}

	err = db.Tx(ctx, func(tx *sql.Tx) error {
		gc, e := db.EIDAlloc.Allocate(ctx)
		if e != nil {
			return e
		}
		dstMID = ids.MakeEID(ids.ReplicaLocal, gc)
		cn, e := db.CNAlloc.Allocate(ctx)
		if e != nil {
			return e
		}
		now := time.Now().UnixNano()
		if _, e := tx.ExecContext(ctx, `
			INSERT INTO messages(message_id, parent_fid, is_associated, is_deleted, change_number,
			                      read_state, message_size, group_id, deliver_time, last_mod_time)
			VALUES (?, ?, ?, 0, ?, 0, ?, ?, ?, ?)`,
			int64(dstMID), int64(p.DstFolder), boolToInt(src.IsAssociated), int64(cn), int64(src.Size),
			nullableGroup(src.GroupID), now, now); e != nil {
			return e
		}

		if e := copyRows(ctx, tx, "message_properties", "message_id", int64(srcMID), int64(dstMID)); e != nil {
			return e
		}
		if e := copyRecipients(ctx, tx, srcMID, dstMID); e != nil {
			return e
		}
		if e := copyAttachments(ctx, tx, srcMID, dstMID); e != nil {
			return e
		}

		if p.IsMove {
			if p.IsPublic {
				if _, e := tx.ExecContext(ctx, `UPDATE messages SET is_deleted = 1 WHERE message_id = ?`, int64(srcMID)); e != nil {
					return e
				}
			} else {
				for _, stmt := range []string{
					`DELETE FROM message_properties WHERE message_id = ?`,
					`DELETE FROM recipients_properties WHERE recipient_id IN (SELECT recipient_id FROM recipients WHERE message_id = ?)`,
					`DELETE FROM recipients WHERE message_id = ?`,
					`DELETE FROM attachment_properties WHERE attachment_id IN (SELECT attachment_id FROM attachments WHERE message_id = ?)`,
					`DELETE FROM attachments WHERE message_id = ?`,
					`DELETE FROM messages WHERE message_id = ?`,
				} {
					if _, e := tx.ExecContext(ctx, stmt, int64(srcMID)); e != nil {
						return e
					}
				}
			}
		}
		return nil
	})
	return dstMID, err
}

func copyRows(ctx context.Context, tx *sql.Tx, table, idCol string, srcID, dstID int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO `+table+`(`+idCol+`, proptag, propval, cid)
		 SELECT ?, proptag, propval, cid FROM `+table+` WHERE `+idCol+` = ?`,
		dstID, srcID)
	return err
}

func copyRecipients(ctx context.Context, tx *sql.Tx, src, dst ids.EID) error {
	rows, err := tx.QueryContext(ctx, `SELECT recipient_id, ordinal FROM recipients WHERE message_id = ? ORDER BY ordinal`, int64(src))
	if err != nil {
		return err
	}
	type rec struct {
		id  int64
		ord int
	}
	var recs []rec
	for rows.Next() {
		var r rec
		if err := rows.Scan(&r.id, &r.ord); err != nil {
			rows.Close()
			return err
		}
		recs = append(recs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, r := range recs {
		res, err := tx.ExecContext(ctx, `INSERT INTO recipients(message_id, ordinal) VALUES (?, ?)`, int64(dst), r.ord)
		if err != nil {
			return err
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := copyRows(ctx, tx, "recipients_properties", "recipient_id", r.id, newID); err != nil {
			return err
		}
	}
	return nil
}

func copyAttachments(ctx context.Context, tx *sql.Tx, src, dst ids.EID) error {
	rows, err := tx.QueryContext(ctx, `SELECT attachment_id, attach_num, embedded_mid FROM attachments WHERE message_id = ? ORDER BY attach_num`, int64(src))
	if err != nil {
		return err
	}
	type att struct {
		id        int64
		num       int
		embedded  sql.NullInt64
	}
	var atts []att
	for rows.Next() {
		var a att
		if err := rows.Scan(&a.id, &a.num, &a.embedded); err != nil {
			rows.Close()
			return err
		}
		atts = append(atts, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, a := range atts {
		// Embedded messages are not recursively duplicated here; the
		// instance buffer handles deep embedded-message copies when it
		// flushes a composed copy (spec §4.4), since only it can
		// correctly allocate fresh ids for the embedded tree.
		res, err := tx.ExecContext(ctx, `INSERT INTO attachments(message_id, attach_num, embedded_mid) VALUES (?, ?, ?)`,
			int64(dst), a.num, a.embedded)
		if err != nil {
			return err
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := copyRows(ctx, tx, "attachment_properties", "attachment_id", a.id, newID); err != nil {
			return err
		}
	}
	return nil
}
