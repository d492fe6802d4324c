// Package storedb implements the storage layer described in spec §4.3: the
// folder tree, message/property rows, recipients, attachments, permissions,
// rules, read state, and the change-number write contract every mutation
// goes through. It is the persistent half of a DB handle (spec §2); the
// in-memory instance buffer and view-table engine sit on top of it.
package storedb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/foxcpp/exmdb/internal/elog"
	"github.com/foxcpp/exmdb/internal/ids"
)

// DB is one mailbox's primary exmdb.sqlite3 connection plus the allocators
// that sit directly on top of it. A DB is owned by exactly one DB handle
// (spec §2) and is not meant to be shared across mailboxes.
type DB struct {
	conn *sql.DB
	Log  elog.Logger

	Dir string // mailbox directory, used to resolve cid/, eml/, ext/

	mu sync.Mutex // serializes allocated_eids reservations

	CNAlloc  *ids.Allocator
	EIDAlloc *ids.Allocator
}

// Open creates or opens the mailbox's exmdb.sqlite3 under dir, applying the
// schema if missing. SQLite's own serialized connection mode is relied on
// for in-handle mutation ordering (spec §5); callers must not share the
// returned *DB across goroutines without external synchronization on
// multi-statement transactions.
func Open(ctx context.Context, dir string, log elog.Logger) (*DB, error) {
	path := dir + "/exmdb.sqlite3"
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=off&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storedb: open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storedb: apply schema: %w", err)
	}

	db := &DB{conn: conn, Log: log, Dir: dir}
	db.CNAlloc = ids.NewChangeNumberAllocator(db, log)
	db.EIDAlloc = ids.NewEIDAllocator(db, log)
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// ReserveRange implements ids.RangeReserver against the allocated_eids
// table: reserve n consecutive counters, persisting the reservation before
// handing any of them out so a crash mid-batch never causes reuse
// (testable property 1).
func (db *DB) ReserveRange(ctx context.Context, isSystem bool, n uint64) (uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var maxEnd sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(range_end) FROM allocated_eids WHERE is_system = ?`, boolToInt(isSystem)).Scan(&maxEnd)
	if err != nil {
		return 0, err
	}

	begin := uint64(1)
	if maxEnd.Valid && maxEnd.Int64 > 0 {
		begin = uint64(maxEnd.Int64)
	}
	end := begin + n

	_, err = tx.ExecContext(ctx,
		`INSERT INTO allocated_eids(range_begin, range_end, alloc_time, is_system) VALUES (?, ?, ?, ?)`,
		begin, end, time.Now().Unix(), boolToInt(isSystem))
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return begin, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Tx runs f inside a BEGIN TRANSACTION / COMMIT, rolling back to the
// outermost BEGIN on any error (spec §4.3 "Write contract", §5
// "Suspension points"). Nested calls from within f must reuse the *sql.Tx
// passed to f rather than opening a second transaction - SQLite in this
// engine's single-connection mode does not support that.
func (db *DB) Tx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storedb: begin: %w", err)
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// BeginBatch starts a transaction meant to be held open across many
// mutations (db_engine_begin_batch_mode, spec §5, used for message batches
// >= 20). The caller is responsible for Commit/Rollback.
func (db *DB) BeginBatch(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

const BatchModeThreshold = 20
