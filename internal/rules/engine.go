package rules

import (
	"context"
	"strconv"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/metrics"
	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
)

// DeliveryContext carries the per-delivery state the rule engine needs
// across a (possibly recursive, for same-store MOVE/COPY) evaluation chain
// (spec §4.7, §9 open question (a)).
type DeliveryContext struct {
	Username string
	IsPublic bool
	IsOOF    bool

	// VisitedFolders is the cycle-prevention list: a folder already in
	// this delivery's chain is never re-entered by a recursive MOVE/COPY
	// (spec §4.7 "cycle prevention via a per-delivery destination-folder
	// list").
	VisitedFolders map[ids.EID]bool
	Depth          int

	Collab Collaborators
}

// Result summarizes the effect of one rule pass on a message.
type Result struct {
	// Deleted is true if the pass's actions (OP_DELETE, or a same-store
	// OP_MOVE) mean the caller must not keep operating on the original
	// message id.
	Deleted bool
}

// isRuleDisablingError reports whether an action failure is one the
// error-handling policy disables the rule for, rather than letting it
// propagate (spec §4.7 "Error
// handling": "too many recipients" or "cannot retrieve template").
func isRuleDisablingError(err error) bool {
	code, ok := exterrors.CodeOf(err)
	if !ok {
		return false
	}
	return code == exterrors.CodeInvalidParam || code == exterrors.CodeNotFound
}

// Evaluate loads folder's standard rules in sequence order (spec §4.7) and
// runs each enabled, OOF-eligible rule whose condition matches mid. It is
// called once per newly delivered or moved message.
func Evaluate(ctx context.Context, db *storedb.DB, folder ids.EID, mid ids.EID, deliver DeliveryContext) (Result, error) {
	if deliver.VisitedFolders == nil {
		deliver.VisitedFolders = map[ids.EID]bool{folder: true}
	}

	rows, err := db.Rules(ctx, folder)
	if err != nil {
		return Result{}, err
	}

	props, err := db.MessageProps(ctx, mid)
	if err != nil {
		return Result{}, err
	}
	get := func(tag propval.Tag) (propval.TaggedValue, bool) { return props.GetTag(tag) }

	res := Result{}
	for _, row := range rows {
		rule, err := DecodeRule(row)
		if err != nil {
			continue // PARSE_ERROR-worthy, but does not block delivery (spec §7)
		}
		if !rule.enabled() {
			continue
		}
		if rule.onlyWhenOOF() && !deliver.IsOOF {
			continue
		}

		if err := rewriteRule(ctx, db, &rule); err != nil {
			return res, err
		}

		matched := propval.Eval(rule.Condition, get, nil, nil)
		metrics.RuleEvaluations.WithLabelValues(strconv.FormatBool(matched)).Inc()
		if !matched {
			continue
		}

		ec := &execContext{ctx: ctx, db: db, folder: folder, mid: mid, deliver: deliver}
		runErr := runActions(ec, rule.Actions)
		if runErr != nil {
			if !rule.Extended && isRuleDisablingError(runErr) {
				metrics.RuleDisabledByError.WithLabelValues(rule.Provider).Inc()
				if err := db.SetRuleState(ctx, rule.ID, rule.State|ruleStateError); err != nil {
					return res, err
				}
				if err := emitDeferredMessage(ec, "deferred-error", rule.ID); err != nil {
					return res, err
				}
			} else {
				return res, runErr
			}
		}

		if ec.deleted {
			res.Deleted = true
			// The message no longer exists under mid in this folder
			// (moved or deleted); further rules in this sequence have
			// nothing left to evaluate against.
			return res, nil
		}

		if rule.exitLevel() && !rule.onlyWhenOOF() {
			break
		}
	}
	return res, nil
}
