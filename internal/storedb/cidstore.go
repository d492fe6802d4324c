package storedb

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// cid/ holds large property blobs out of line from the SQL database: body
// text, HTML, RTF-compressed, transport headers, and attachment binary
// data (spec §6). The directory is append-only - blobs are never
// rewritten, only reference-counted and swept later.
func (db *DB) cidPath(cid int64) string {
	return filepath.Join(db.Dir, "cid", fmt.Sprintf("%d", cid))
}

// PutTextBlob writes a [u32 cp][bytes] framed blob (spec §6: "For
// PR_BODY/PR_BODY_A and PR_TRANSPORT_MESSAGE_HEADERS*, the file is
// [u32 cp][utf-8 or codepage bytes]"), returning the newly allocated cid.
func (db *DB) PutTextBlob(ctx context.Context, cpid uint32, data []byte) (int64, error) {
	cid, err := db.newCid(ctx)
	if err != nil {
		return 0, err
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], cpid)
	if err := os.MkdirAll(filepath.Dir(db.cidPath(cid)), 0o700); err != nil {
		return 0, err
	}
	f, err := os.Create(db.cidPath(cid))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if _, err := f.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := f.Write(data); err != nil {
		return 0, err
	}
	return cid, nil
}

// GetTextBlob reads back a blob written by PutTextBlob, skipping the
// 4-byte codepage prefix and returning it separately.
func (db *DB) GetTextBlob(cid int64) (cpid uint32, data []byte, err error) {
	raw, err := os.ReadFile(db.cidPath(cid))
	if err != nil {
		return 0, nil, err
	}
	if len(raw) < 4 {
		return 0, nil, fmt.Errorf("storedb: cid %d truncated", cid)
	}
	return binary.LittleEndian.Uint32(raw[0:4]), raw[4:], nil
}

// PutBinaryBlob writes a raw (unframed) blob: used for HTML, RTF
// compressed bodies, and attachment data (spec §6).
func (db *DB) PutBinaryBlob(ctx context.Context, data []byte) (int64, error) {
	cid, err := db.newCid(ctx)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(db.cidPath(cid)), 0o700); err != nil {
		return 0, err
	}
	return cid, os.WriteFile(db.cidPath(cid), data, 0o600)
}

// GetBinaryBlob reads back a blob written by PutBinaryBlob.
func (db *DB) GetBinaryBlob(cid int64) ([]byte, error) {
	return os.ReadFile(db.cidPath(cid))
}

func (db *DB) newCid(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `INSERT INTO content_blobs(refs) VALUES (1)`)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ReleaseBlob decrements a blob's reference count without unlinking the
// file; SweepOrphanBlobs below unlinks files whose count has reached zero
// (spec §5 "deletion is deferred to a sweeper that checks reference
// counts").
func (db *DB) ReleaseBlob(ctx context.Context, cid int64) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE content_blobs SET refs = refs - 1 WHERE cid = ?`, cid)
	return err
}

// RetainBlob increments a blob's reference count, used when a second
// property row starts pointing at an already-stored blob (e.g. copying a
// message without duplicating its body).
func (db *DB) RetainBlob(ctx context.Context, cid int64) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE content_blobs SET refs = refs + 1 WHERE cid = ?`, cid)
	return err
}

// SweepOrphanBlobs unlinks on-disk blobs whose reference count has
// dropped to zero. It runs only when called; the handle cache's background
// maintenance task does not invoke it.
func (db *DB) SweepOrphanBlobs(ctx context.Context) (int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT cid FROM content_blobs WHERE refs <= 0`)
	if err != nil {
		return 0, err
	}
	var dead []int64
	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			rows.Close()
			return 0, err
		}
		dead = append(dead, cid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	swept := 0
	for _, cid := range dead {
		if err := os.Remove(db.cidPath(cid)); err != nil && !os.IsNotExist(err) {
			db.Log.Error("sweep orphan blob", err)
			continue
		}
		if _, err := db.conn.ExecContext(ctx, `DELETE FROM content_blobs WHERE cid = ?`, cid); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}
