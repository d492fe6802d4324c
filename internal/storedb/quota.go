package storedb

import (
	"context"
	"database/sql"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/propval"
)

// QuotaKind distinguishes the two quota error paths spec §4.3 names.
type QuotaKind int

const (
	QuotaDelivery QuotaKind = iota // returns quotaExceeded
	QuotaClientWrite
)

// StoreSize sums message_size over all non-deleted messages in the
// mailbox; this is PR_MESSAGE_SIZE_EXTENDED's store-wide counterpart.
func (db *DB) StoreSize(ctx context.Context) (uint64, error) {
	var size sql.NullInt64
	if err := db.conn.QueryRowContext(ctx, `SELECT SUM(message_size) FROM messages WHERE is_deleted = 0`).Scan(&size); err != nil {
		return 0, err
	}
	return uint64(size.Int64), nil
}

// CheckQuota compares storeSize+pendingWrite against the store's
// PR_PROHIBIT_RECEIVE_QUOTA (stored in kilobytes, multiplied by 1024 with
// saturation at UINT64_MAX per spec §4.3). PR_STORAGE_QUOTA_LIMIT is not
// consulted. A breach returns quotaExceeded for both kinds; kind only
// selects the error's reason text.
func CheckQuota(storeProps *propval.Bag, storeSize, pendingWrite uint64, kind QuotaKind) error {
	tag := propval.PidTagProhibitReceiveQuota
	limitKB, ok := storeProps.Get(uint16(tag))
	if !ok {
		return nil
	}
	limitBytes := saturatingKBToBytes(uint64(uint32(limitKB.I32)))
	if limitBytes == 0 {
		return nil
	}
	if storeSize+pendingWrite <= limitBytes {
		return nil
	}
	if kind == QuotaDelivery {
		return exterrors.New(exterrors.CodeQuotaExceeded, "mailbox over quota")
	}
	return exterrors.New(exterrors.CodeQuotaExceeded, "client write would exceed store quota")
}

func saturatingKBToBytes(kb uint64) uint64 {
	const maxU64 = ^uint64(0)
	if kb > maxU64/1024 {
		return maxU64
	}
	return kb * 1024
}
