package storedb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

const configKeyMailboxGUID = "mailbox_guid"

// MailboxGUID returns the mailbox's own store GUID, generating and
// persisting one on first call. This is the GUID ICS upload compares a
// client's SOURCE_KEY against (spec §4.5 "verifies GUID matches the
// store") and the GUID new XIDs for locally-originated changes are minted
// under.
func (db *DB) MailboxGUID(ctx context.Context) (uuid.UUID, error) {
	var raw []byte
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM configurations WHERE key = ?`, configKeyMailboxGUID).Scan(&raw)
	if err == nil {
		return uuid.ParseBytes(raw)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.UUID{}, err
	}

	g := uuid.New()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO configurations(key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		configKeyMailboxGUID, g.String())
	if err != nil {
		return uuid.UUID{}, err
	}
	return db.MailboxGUID(ctx)
}
