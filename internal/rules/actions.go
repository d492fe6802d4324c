package rules

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	"github.com/emersion/go-message"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/metrics"
	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
)

// Envelope is the minimal shape an outbound message takes once a rule
// action hands it to the SMTP submission hook (spec §4.7 "send via the SMTP
// submission hook"); it is intentionally thin, since building and queuing
// the real MIME transport job is the msgpipeline/target machinery's job,
// out of this engine's scope.
type Envelope struct {
	From string
	To   []string
	Data []byte
}

// Mailer is the collaborator that accepts a built Envelope for delivery.
type Mailer interface {
	Submit(ctx context.Context, env Envelope) error
}

// BounceProducer builds a bounce/non-delivery report for a reason code,
// and is also what OP_REPLY's "ST" flavor composes its recipient from
// (spec §4.7).
type BounceProducer interface {
	Bounce(ctx context.Context, reason int, orig *propval.Bag) (Envelope, error)
}

// Collaborators bundles the out-of-engine dependencies action execution
// needs; a nil field disables the actions that need it (they fail with
// CodeNotSupported instead of panicking), which lets tests exercise the
// subset they care about.
type Collaborators struct {
	Mailer  Mailer
	Bouncer BounceProducer
}

func (c Collaborators) mailer() (Mailer, error) {
	if c.Mailer == nil {
		return nil, exterrors.New(exterrors.CodeNotSupported, "no mailer collaborator configured")
	}
	return c.Mailer, nil
}

func (c Collaborators) bouncer() (BounceProducer, error) {
	if c.Bouncer == nil {
		return nil, exterrors.New(exterrors.CodeNotSupported, "no bounce producer configured")
	}
	return c.Bouncer, nil
}

// execContext carries the state one rule pass on one message needs to run
// its actions.
type execContext struct {
	ctx      context.Context
	db       *storedb.DB
	folder   ids.EID
	mid      ids.EID
	deliver  DeliveryContext
	deleted  bool // set by OP_DELETE; applied by the caller after the pass
}

// runActions executes a rule's action block in order, stopping at the
// first action that returns an error and returning that error; Evaluate
// decides whether it disables the rule or fails the pass.
func runActions(ec *execContext, actions []Action) error {
	for _, a := range actions {
		if err := runAction(ec, a); err != nil {
			return err
		}
	}
	return nil
}

func runAction(ec *execContext, a Action) error {
	metrics.RuleActionsRun.WithLabelValues(a.Op.String()).Inc()
	switch a.Op {
	case OpMove, OpCopy:
		return runMoveCopy(ec, a)
	case OpReply, OpOOFReply:
		return runReply(ec, a)
	case OpForward, OpDelegate:
		return runForwardDelegate(ec, a)
	case OpBounce:
		return runBounce(ec, a)
	case OpTag:
		return ec.db.Tx(ec.ctx, func(tx *sql.Tx) error {
			return ec.db.SetMessageProps(ec.ctx, tx, ec.mid, []propval.TaggedValue{a.TagValue})
		})
	case OpDelete:
		ec.deleted = true
		return nil
	case OpMarkAsRead:
		_, err := ec.db.SetReadState(ec.ctx, ec.mid, ec.deliver.Username, true, ec.deliver.IsPublic)
		return err
	case OpDeferAction:
		return emitDeferredMessage(ec, "deferred-action", 0)
	default:
		return exterrors.Newf(exterrors.CodeInvalidParam, "unknown rule action %d", a.Op)
	}
}

// runMoveCopy implements OP_MOVE/OP_COPY (spec §4.7): within this engine a
// folder reference always names a folder in the same store (there is one
// store per DB handle), so the move/copy executes directly; the
// recursive-invoke-in-destination-folder case that paragraph describes for
// a genuinely different store is modeled here as re-running the rule
// engine against the freshly landed copy in its destination folder, guarded
// by the same per-delivery visited-folder list that prevents a move-back
// cycle (spec §9 open question (a)).
func runMoveCopy(ec *execContext, a Action) error {
	rights, err := ec.db.EffectiveRights(ec.ctx, a.DestFolder, ec.deliver.Username)
	if err != nil {
		return err
	}
	srcRights, err := ec.db.EffectiveRights(ec.ctx, ec.folder, ec.deliver.Username)
	if err != nil {
		return err
	}
	if !ec.deliver.IsPublic {
		// Rules of a private mailbox act with the mailbox owner's rights.
		rights, srcRights = storedb.RightOwner, storedb.RightOwner
	}
	if err := storedb.CanMoveCopy(storedb.MoveCopyParams{
		SrcFolder: ec.folder,
		DstFolder: a.DestFolder,
		Username:  ec.deliver.Username,
		IsOwner:   srcRights&storedb.RightOwner != 0,
		IsMove:    a.Op == OpMove,
		IsPublic:  ec.deliver.IsPublic,
	}, srcRights, rights); err != nil {
		return err
	}

	dstMID, err := ec.db.MoveCopyMessage(ec.ctx, storedb.MoveCopyParams{
		SrcFolder: ec.folder,
		DstFolder: a.DestFolder,
		Username:  ec.deliver.Username,
		IsMove:    a.Op == OpMove,
		IsPublic:  ec.deliver.IsPublic,
	}, ec.mid)
	if err != nil {
		return err
	}
	if a.Op == OpMove {
		ec.deleted = true
	}

	if ec.deliver.VisitedFolders[a.DestFolder] || ec.deliver.Depth >= maxRuleRecursionDepth {
		return nil
	}
	next := ec.deliver
	next.VisitedFolders = markVisited(ec.deliver.VisitedFolders, a.DestFolder)
	next.Depth++
	_, err = Evaluate(ec.ctx, ec.db, a.DestFolder, dstMID, next)
	return err
}

// maxRuleRecursionDepth bounds the move-back cycle the per-delivery
// visited-folder list alone does not rule out when a chain revisits a
// folder only after leaving and returning to it through an intermediate.
const maxRuleRecursionDepth = 32

func markVisited(in map[ids.EID]bool, id ids.EID) map[ids.EID]bool {
	out := make(map[ids.EID]bool, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	out[id] = true
	return out
}

// runReply implements OP_REPLY/OP_OOF_REPLY: locate the template, fill
// recipients per flavor, send (spec §4.7).
func runReply(ec *execContext, a Action) error {
	tmpl, err := ec.db.GetMessage(ec.ctx, a.TemplateMID)
	if err != nil {
		return exterrors.New(exterrors.CodeNotFound, "cannot retrieve template")
	}
	tmplProps, err := ec.db.MessageProps(ec.ctx, tmpl.ID)
	if err != nil {
		return err
	}

	mailer, err := ec.mailerOrTag()
	if err != nil {
		return err
	}

	var to []string
	switch a.Flavor {
	case ReplyFlavorST:
		bouncer, err := ec.deliver.Collab.bouncer()
		if err != nil {
			return err
		}
		srcProps, err := ec.db.MessageProps(ec.ctx, ec.mid)
		if err != nil {
			return err
		}
		env, err := bouncer.Bounce(ec.ctx, 0, srcProps)
		if err != nil {
			return err
		}
		to = env.To
	case ReplyFlavorNS:
		to, err = templateRecipientAddresses(ec, tmpl.ID)
		if err != nil {
			return err
		}
	default:
		if from, ok := senderAddress(ec); ok {
			to = []string{from}
		}
	}
	if len(to) == 0 {
		return exterrors.New(exterrors.CodeInvalidParam, "reply template has no recipients")
	}

	data, err := buildMIME(tmplProps, to)
	if err != nil {
		return err
	}
	return mailer.Submit(ec.ctx, Envelope{To: to, Data: data})
}

func (ec *execContext) mailerOrTag() (Mailer, error) {
	return ec.deliver.Collab.mailer()
}

// runForwardDelegate implements OP_FORWARD/OP_DELEGATE (spec §4.7).
func runForwardDelegate(ec *execContext, a Action) error {
	if len(a.Recipients) > maxRecipients {
		return exterrors.New(exterrors.CodeInvalidParam, "too many recipients")
	}
	mailer, err := ec.mailerOrTag()
	if err != nil {
		return err
	}
	props, err := ec.db.MessageProps(ec.ctx, ec.mid)
	if err != nil {
		return err
	}

	if a.Op == OpForward {
		data, err := buildMIME(props, a.Recipients)
		if err != nil {
			return err
		}
		return mailer.Submit(ec.ctx, Envelope{To: a.Recipients, Data: data})
	}

	// OP_DELEGATE: re-inject into each delegate's mailbox, sender
	// preserved (spec §4.7). No loop-prevention property is added to the
	// submitted copy.
	sender, _ := senderAddress(ec)
	for _, delegate := range a.Recipients {
		data, err := buildMIME(props, []string{delegate})
		if err != nil {
			return err
		}
		if err := mailer.Submit(ec.ctx, Envelope{From: sender, To: []string{delegate}, Data: data}); err != nil {
			return err
		}
	}
	return nil
}

func runBounce(ec *execContext, a Action) error {
	bouncer, err := ec.deliver.Collab.bouncer()
	if err != nil {
		return err
	}
	props, err := ec.db.MessageProps(ec.ctx, ec.mid)
	if err != nil {
		return err
	}
	env, err := bouncer.Bounce(ec.ctx, a.BounceReason, props)
	if err != nil {
		return err
	}
	mailer, err := ec.mailerOrTag()
	if err != nil {
		return err
	}
	return mailer.Submit(ec.ctx, env)
}

// pidTagSenderEmailAddress/pidTagRecipientEmailAddress mirror the property
// ids used to derive reply/forward addresses (not part of the well-known
// proptag list in internal/propval/proptag.go because nothing outside this
// lookup needs them).
const (
	pidTagSenderEmailAddress    = 0x0C1F
	pidTagRecipientEmailAddress = 0x39FE
)

func senderAddress(ec *execContext) (string, bool) {
	props, err := ec.db.MessageProps(ec.ctx, ec.mid)
	if err != nil {
		return "", false
	}
	v, ok := props.GetTag(propval.MakeTag(pidTagSenderEmailAddress, propval.PtUnicode))
	if !ok {
		return "", false
	}
	return v.Str, true
}

// templateRecipientAddresses reuses the template message's own recipient
// list (spec §4.7 OP_REPLY "NS" flavor: "reuse template recipients").
func templateRecipientAddresses(ec *execContext, tmplMID ids.EID) ([]string, error) {
	recs, err := ec.db.Recipients(ec.ctx, tmplMID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range recs {
		if v, ok := r.Props.GetTag(propval.MakeTag(pidTagRecipientEmailAddress, propval.PtUnicode)); ok {
			out = append(out, v.Str)
		}
	}
	return out, nil
}

// buildMIME rebuilds a minimal MIME message off the stored property bag
// (spec SPEC_FULL.md "OP_FORWARD MIME-rebuild-from-stored-eml path").
func buildMIME(props *propval.Bag, to []string) ([]byte, error) {
	var h message.Header
	if subj, ok := props.GetTag(propval.MakeTag(0x0037, propval.PtUnicode)); ok {
		h.Set("Subject", subj.Str)
	}
	for _, addr := range to {
		h.Add("To", addr)
	}

	var body []byte
	if b, ok := props.GetTag(propval.MakeTag(propval.PidTagBody, propval.PtUnicode)); ok {
		body = []byte(b.Str)
	} else if b, ok := props.GetTag(propval.MakeTag(propval.PidTagBodyA, propval.PtString8)); ok {
		body = []byte(b.Str)
	}

	e, err := message.New(h, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rules: build mime: %w", err)
	}
	var buf bytes.Buffer
	if err := e.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("rules: write mime: %w", err)
	}
	return buf.Bytes(), nil
}

// emitDeferredMessage writes a row into the deferred-action folder
// pointing at kind/ruleID (spec §4.7 OP_DEFER_ACTION, and the error-path
// deferred-error message). A real DAM/DEM payload carries a dedicated
// property schema (PR_RULE_ID, PR_DAM_ORIGINAL_ENTRYID, ...); this engine
// models it with the subset needed to make post-pass client processing
// possible: which rule produced it and which message it concerns.
func emitDeferredMessage(ec *execContext, kind string, ruleID int64) error {
	mid, err := ec.db.NewMessageID(ec.ctx)
	if err != nil {
		return err
	}
	if _, err := ec.db.CreateMessage(ec.ctx, storedb.CreateMessageParams{
		ID:        mid,
		ParentFID: storedb.FolderDeferredAction,
	}); err != nil {
		return err
	}
	return ec.db.Tx(ec.ctx, func(tx *sql.Tx) error {
		return ec.db.SetMessageProps(ec.ctx, tx, mid, []propval.TaggedValue{
			{Tag: propval.MakeTag(pidTagDAMKind, propval.PtUnicode), Str: kind},
			{Tag: propval.MakeTag(pidTagDAMRuleID, propval.PtI8), I64: ruleID},
			{Tag: propval.MakeTag(pidTagDAMOriginalMID, propval.PtI8), I64: int64(ec.mid)},
		})
	})
}

// pidTagDAMKind/pidTagDAMRuleID/pidTagDAMOriginalMID are this engine's own
// minimal deferred-action-message schema (see emitDeferredMessage).
const (
	pidTagDAMKind         = 0x7C00
	pidTagDAMRuleID       = 0x7C01
	pidTagDAMOriginalMID  = 0x7C02
)
