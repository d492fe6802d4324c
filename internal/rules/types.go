// Package rules implements the rule engine described in spec §4.7: on
// every delivered or moved message, load the destination folder's standard
// and extended rules in sequence order and run their matching actions.
package rules

import (
	"github.com/google/uuid"

	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
)

// OpCode is one rule action (spec §4.7 "Actions").
type OpCode int

const (
	OpMove OpCode = iota
	OpCopy
	OpReply
	OpOOFReply
	OpForward
	OpDelegate
	OpBounce
	OpTag
	OpDelete
	OpMarkAsRead
	OpDeferAction
)

// String names the op for metrics labels and log lines.
func (o OpCode) String() string {
	switch o {
	case OpMove:
		return "move"
	case OpCopy:
		return "copy"
	case OpReply:
		return "reply"
	case OpOOFReply:
		return "oof_reply"
	case OpForward:
		return "forward"
	case OpDelegate:
		return "delegate"
	case OpBounce:
		return "bounce"
	case OpTag:
		return "tag"
	case OpDelete:
		return "delete"
	case OpMarkAsRead:
		return "mark_as_read"
	case OpDeferAction:
		return "defer_action"
	default:
		return "unknown"
	}
}

// ReplyFlavor selects how OP_REPLY/OP_OOF_REPLY fills the outgoing
// recipient list (spec §4.7).
type ReplyFlavor int

const (
	// ReplyFlavorST composes recipients from the bounce producer (the
	// "ST" flavor in the source enum - reply goes back to the sender of
	// the delivery failure chain, same path a bounce would use).
	ReplyFlavorST ReplyFlavor = iota
	// ReplyFlavorNS reuses the template's own recipient list verbatim.
	ReplyFlavorNS
	// ReplyFlavorDefault sets the recipient to the delivered message's
	// sender.
	ReplyFlavorDefault
)

// maxRecipients is the OP_FORWARD/OP_DELEGATE recipient count ceiling
// (spec §4.7 "validate recipient count ≤ 128").
const maxRecipients = 128

// Action is one decoded entry of a rule's action block.
type Action struct {
	Op OpCode

	// OP_MOVE / OP_COPY
	DestFolder ids.EID

	// OP_REPLY / OP_OOF_REPLY
	TemplateMID  ids.EID
	TemplateGUID uuid.UUID
	Flavor       ReplyFlavor

	// OP_FORWARD / OP_DELEGATE
	Recipients []string

	// OP_BOUNCE
	BounceReason int

	// OP_TAG
	TagValue propval.TaggedValue

	// OP_DEFER_ACTION carries no extra fields: the deferred-action
	// message it emits points back at the rule itself.
}

// Rule is one decoded standard or extended rule, merging storedb.RuleRow's
// raw condition/actions blobs with their parsed form.
type Rule struct {
	ID        int64
	Sequence  int
	State     uint32
	Provider  string
	Extended  bool
	Condition propval.Restriction
	Actions   []Action

	// NamedProps carries an extended rule's embedded named-property
	// block (local propid -> key); nil for standard rules (spec §4.7
	// "Named properties in rules").
	NamedProps []NamedPropRef
}

// NamedPropRef is one entry of an extended rule's embedded named-property
// information block.
type NamedPropRef struct {
	LocalID uint16
	GUID    uuid.UUID
	Kind    int
	LID     uint32
	Name    string
}

func (r Rule) enabled() bool     { return r.State&ruleStateEnabled != 0 }
func (r Rule) onlyWhenOOF() bool { return r.State&ruleStateOnlyWhenOOF != 0 }
func (r Rule) exitLevel() bool   { return r.State&ruleStateExitLevel != 0 }

// Mirrored from storedb's rule state bits so this package does not need to
// import storedb just for the constants (it already imports storedb for
// the DB handle type in engine.go; these are duplicated for doc locality).
const (
	ruleStateEnabled     uint32 = 0x1
	ruleStateOnlyWhenOOF uint32 = 0x4
	ruleStateExitLevel   uint32 = 0x10
	ruleStateError       uint32 = 0x20
	ruleStateParseError  uint32 = 0x40
)

// RuleOrganizer is the reserved provider name (spec SPEC_FULL.md
// "supplemented feature") for rules created by the organizer/delegate
// machinery rather than the end user: skipped by client-visible rule
// enumeration but still evaluated at delivery.
const RuleOrganizer = "RuleOrganizer"
