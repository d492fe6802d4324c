package rules

import (
	"encoding/json"
	"fmt"

	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
)

// The condition/actions blobs storedb.RuleRow treats as opaque are encoded
// here as JSON envelopes. Nothing in the example corpus defines a wire
// format for a restriction/action tree (it is a format this engine invents,
// not a domain protocol borrowed from elsewhere), so plain encoding/json is
// used rather than a binary codec - see DESIGN.md.
type conditionEnvelope struct {
	Restriction propval.Restriction
	NamedProps  []NamedPropRef `json:",omitempty"`
}

type actionsEnvelope struct {
	Actions    []Action
	NamedProps []NamedPropRef `json:",omitempty"`
}

// DecodeRule parses a storedb.RuleRow into a Rule ready for evaluation.
func DecodeRule(row storedb.RuleRow) (Rule, error) {
	var cond conditionEnvelope
	if len(row.Condition) > 0 {
		if err := json.Unmarshal(row.Condition, &cond); err != nil {
			return Rule{}, fmt.Errorf("rules: decode condition: %w", err)
		}
	}
	var acts actionsEnvelope
	if len(row.Actions) > 0 {
		if err := json.Unmarshal(row.Actions, &acts); err != nil {
			return Rule{}, fmt.Errorf("rules: decode actions: %w", err)
		}
	}
	named := append(append([]NamedPropRef(nil), cond.NamedProps...), acts.NamedProps...)
	return Rule{
		ID:         row.ID,
		Sequence:   row.Sequence,
		State:      row.State,
		Provider:   row.Provider,
		Extended:   len(named) > 0,
		Condition:  cond.Restriction,
		Actions:    acts.Actions,
		NamedProps: named,
	}, nil
}

// EncodeCondition/EncodeActions are the inverse, used by rule-management
// callers (not exercised by the delivery path) to build a storedb.RuleRow.
func EncodeCondition(r propval.Restriction, named []NamedPropRef) ([]byte, error) {
	return json.Marshal(conditionEnvelope{Restriction: r, NamedProps: named})
}

func EncodeActions(actions []Action, named []NamedPropRef) ([]byte, error) {
	return json.Marshal(actionsEnvelope{Actions: actions, NamedProps: named})
}
