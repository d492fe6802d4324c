package storedb

import (
	"context"

	"github.com/foxcpp/exmdb/internal/ids"
)

// Rule state bits (spec §6).
const (
	RuleStateEnabled     uint32 = 0x1
	RuleStateOnlyWhenOOF uint32 = 0x4
	RuleStateExitLevel   uint32 = 0x10
	RuleStateError       uint32 = 0x20
	RuleStateParseError  uint32 = 0x40
)

// RuleRow is a stored standard rule (spec §3 "Rule"); Condition and
// Actions are opaque serialized restriction/action-block blobs owned by
// internal/rules, which knows how to decode them.
type RuleRow struct {
	ID       int64
	Sequence int
	State    uint32
	Provider string
	Condition []byte
	Actions   []byte
}

// Rules loads a folder's standard rules ordered by sequence (spec §4.7
// "loads the folder's standard rules ... in sequence order").
func (db *DB) Rules(ctx context.Context, folder ids.EID) ([]RuleRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT rule_id, sequence, state, provider, condition, actions FROM rules WHERE folder_id = ? ORDER BY sequence`,
		int64(folder))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RuleRow
	for rows.Next() {
		var r RuleRow
		if err := rows.Scan(&r.ID, &r.Sequence, &r.State, &r.Provider, &r.Condition, &r.Actions); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddRule inserts a new standard rule.
func (db *DB) AddRule(ctx context.Context, folder ids.EID, r RuleRow) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO rules(folder_id, sequence, state, provider, condition, actions) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(folder), r.Sequence, r.State, r.Provider, r.Condition, r.Actions)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SetRuleState updates a rule's state bitmask, used to flip on
// RULE_STATE_ERROR when action execution fails (spec §4.7 "Error
// handling").
func (db *DB) SetRuleState(ctx context.Context, ruleID int64, state uint32) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE rules SET state = ? WHERE rule_id = ?`, state, ruleID)
	return err
}

// DeleteRule removes a rule.
func (db *DB) DeleteRule(ctx context.Context, ruleID int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM rules WHERE rule_id = ?`, ruleID)
	return err
}
