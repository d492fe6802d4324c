package instance

import (
	"context"
	"database/sql"
	"sync"

	"github.com/foxcpp/exmdb/internal/elog"
	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
)

// Kind distinguishes a message instance from an attachment instance.
type Kind int

const (
	KindMessage Kind = iota
	KindAttachment
)

// Instance is one open handle in the buffer: either a message or an
// attachment, optionally still unflushed (IsNew) and optionally nested
// under a parent instance (spec §4.4 "parent links form a DAG rooted at a
// message instance").
type Instance struct {
	ID     ids.InstanceID
	Kind   Kind
	Parent ids.InstanceID // zero for a top-level message instance

	FolderID    ids.EID // message instances only
	MessageID   ids.EID // message instances: the row id (pre-assigned if IsNew)
	AttachNum   int     // attachment instances only
	IsNew       bool
	Message     *MessageContent    // Kind == KindMessage
	Attachment  *AttachmentContent // Kind == KindAttachment
}

// Buffer is one connection's instance table (spec §4.4 "Invariant:
// Instance-ids are monotone per connection"). Every exported method takes
// the buffer's own mutex, so calls from several goroutines are serialized.
type Buffer struct {
	mu      sync.Mutex
	db      *storedb.DB
	log     elog.Logger
	next    ids.InstanceID
	byID    map[ids.InstanceID]*Instance
}

func NewBuffer(db *storedb.DB, log elog.Logger) *Buffer {
	return &Buffer{db: db, log: log, byID: make(map[ids.InstanceID]*Instance)}
}

func (b *Buffer) allocID() ids.InstanceID {
	b.next++
	return b.next
}

// LoadMessageInstance implements load_message_instance: either materializes
// an existing message from storage, or (bNew) creates an empty instance
// with a pre-assigned MID and no properties.
func (b *Buffer) LoadMessageInstance(ctx context.Context, folder ids.EID, mid ids.EID, bNew bool) (ids.InstanceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inst := &Instance{ID: b.allocID(), Kind: KindMessage, FolderID: folder, MessageID: mid, IsNew: bNew}

	if bNew {
		inst.Message = NewMessageContent()
		b.byID[inst.ID] = inst
		return inst.ID, nil
	}

	content, err := b.loadMessage(ctx, mid)
	if err != nil {
		return 0, err
	}
	inst.Message = content
	b.byID[inst.ID] = inst
	return inst.ID, nil
}

func (b *Buffer) loadMessage(ctx context.Context, mid ids.EID) (*MessageContent, error) {
	props, err := b.db.MessageProps(ctx, mid)
	if err != nil {
		return nil, err
	}
	content := &MessageContent{Props: props}

	recips, err := b.db.Recipients(ctx, mid)
	if err != nil {
		return nil, err
	}
	for _, r := range recips {
		content.Recipients = append(content.Recipients, r.Props)
	}

	atts, err := b.db.Attachments(ctx, mid)
	if err != nil {
		return nil, err
	}
	for _, a := range atts {
		ac := &AttachmentContent{AttachNum: a.AttachNum, Props: a.Props}
		if a.EmbeddedMID != 0 {
			embedded, err := b.loadMessage(ctx, a.EmbeddedMID)
			if err != nil {
				return nil, err
			}
			ac.Embedded = embedded
		}
		content.Attachments = append(content.Attachments, ac)
	}
	return content, nil
}

// LoadAttachmentInstance implements load_attachment_instance: a
// hierarchical open of an attachment by number under an already-open
// message instance.
func (b *Buffer) LoadAttachmentInstance(msgInst ids.InstanceID, attachNum int) (ids.InstanceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parent, ok := b.byID[msgInst]
	if !ok || parent.Kind != KindMessage {
		return 0, exterrors.New(exterrors.CodeInvalidParam, "not a message instance")
	}
	for _, a := range parent.Message.Attachments {
		if a.AttachNum == attachNum {
			inst := &Instance{ID: b.allocID(), Kind: KindAttachment, Parent: msgInst, AttachNum: attachNum, Attachment: a}
			b.byID[inst.ID] = inst
			return inst.ID, nil
		}
	}
	return 0, exterrors.New(exterrors.CodeNotFound, "no such attachment number")
}

// LoadEmbeddedInstance implements load_embedded_instance: either opens the
// attachment's existing embedded message, or (bNew) allocates a fresh MID
// and installs an empty one.
func (b *Buffer) LoadEmbeddedInstance(ctx context.Context, attInst ids.InstanceID, bNew bool) (ids.InstanceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	parent, ok := b.byID[attInst]
	if !ok || parent.Kind != KindAttachment {
		return 0, exterrors.New(exterrors.CodeInvalidParam, "not an attachment instance")
	}

	if bNew || parent.Attachment.Embedded == nil {
		mid, err := b.db.NewMessageID(ctx)
		if err != nil {
			return 0, err
		}
		content := NewMessageContent()
		parent.Attachment.Embedded = content
		inst := &Instance{ID: b.allocID(), Kind: KindMessage, Parent: attInst, MessageID: mid, IsNew: true, Message: content}
		b.byID[inst.ID] = inst
		return inst.ID, nil
	}

	inst := &Instance{ID: b.allocID(), Kind: KindMessage, Parent: attInst, Message: parent.Attachment.Embedded}
	b.byID[inst.ID] = inst
	return inst.ID, nil
}

// CheckInstanceCycle implements check_instance_cycle: walk ancestors
// starting at dst, reporting whether src is reachable.
func (b *Buffer) CheckInstanceCycle(src, dst ids.InstanceID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := dst
	for cur != 0 {
		if cur == src {
			return true
		}
		inst, ok := b.byID[cur]
		if !ok {
			return false
		}
		cur = inst.Parent
	}
	return false
}

// ReadMessageInstance implements read_message_instance: a deep copy of the
// instance's content, suitable for handing to a caller that will render it
// into MIME/iCal/vCard without risking aliasing against the live buffer.
func (b *Buffer) ReadMessageInstance(id ids.InstanceID) (*MessageContent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inst, ok := b.byID[id]
	if !ok || inst.Kind != KindMessage {
		return nil, exterrors.New(exterrors.CodeInvalidParam, "not a message instance")
	}
	return inst.Message.Clone(), nil
}

func (b *Buffer) ReadAttachmentInstance(id ids.InstanceID) (*AttachmentContent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	inst, ok := b.byID[id]
	if !ok || inst.Kind != KindAttachment {
		return nil, exterrors.New(exterrors.CodeInvalidParam, "not an attachment instance")
	}
	return inst.Attachment.Clone(), nil
}

// Close discards an instance without flushing it (the caller's
// unload_instance/RPC-teardown path).
func (b *Buffer) Close(id ids.InstanceID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byID, id)
}

func (b *Buffer) get(id ids.InstanceID) (*Instance, error) {
	inst, ok := b.byID[id]
	if !ok {
		return nil, exterrors.New(exterrors.CodeInvalidParam, "unknown instance id")
	}
	return inst, nil
}

// WriteMessageInstance implements write_message_instance: merges incoming
// properties and child collections into the live instance (spec §4.4).
// b_force allows overwriting a property already present; absent that flag,
// a proptag already set on the instance is left untouched ("only if absent
// unless force").
func (b *Buffer) WriteMessageInstance(id ids.InstanceID, incoming *propval.Bag, recipients []*propval.Bag, attachments []*AttachmentContent, bForce bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	inst, err := b.get(id)
	if err != nil {
		return err
	}
	if inst.Kind != KindMessage {
		return exterrors.New(exterrors.CodeInvalidParam, "not a message instance")
	}

	incoming.Each(func(v propval.TaggedValue) {
		b.mergeMessageProp(inst.Message, v, bForce)
	})
	if recipients != nil {
		inst.Message.Recipients = recipients
	}
	if attachments != nil {
		inst.Message.Attachments = attachments
	}
	return nil
}

func (b *Buffer) mergeMessageProp(content *MessageContent, v propval.TaggedValue, bForce bool) {
	id := v.Tag.PropID()
	if IsReadonlyMessageProp(id) {
		return
	}
	// PR_MESSAGE_FLAGS is write-once at creation (spec §4.4).
	if id == propval.PidTagMessageFlags {
		if _, exists := content.Props.Get(id); exists {
			return
		}
	}
	if !bForce {
		if _, exists := content.Props.Get(id); exists {
			return
		}
	}
	if other, ok := otherStringVariantType(v.Tag.PropType()); ok {
		content.Props.Remove(propval.MakeTag(id, other).PropID())
	}
	content.Props.Set(v)
}

// SetInstanceProperties implements set_instance_properties: same readonly
// and codepage-variant rules as WriteMessageInstance's per-property merge,
// always forcing the write (the caller already decided to set these).
func (b *Buffer) SetInstanceProperties(id ids.InstanceID, vals []propval.TaggedValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	inst, err := b.get(id)
	if err != nil {
		return err
	}
	props := b.propsOf(inst)
	if props == nil {
		return exterrors.New(exterrors.CodeInvalidParam, "instance has no property bag")
	}
	for _, v := range vals {
		propID := v.Tag.PropID()
		if inst.Kind == KindMessage && IsReadonlyMessageProp(propID) {
			continue
		}
		if inst.Kind == KindMessage && propID == propval.PidTagMessageFlags {
			if _, exists := props.Get(propID); exists {
				continue
			}
		}
		if other, ok := otherStringVariantType(v.Tag.PropType()); ok {
			props.Remove(propval.MakeTag(propID, other).PropID())
		}
		props.Set(v)
	}
	return nil
}

// RemoveInstanceProperties deletes proptags from the instance's bag,
// dropping both codepage variants of a string property when either is
// named.
func (b *Buffer) RemoveInstanceProperties(id ids.InstanceID, propIDs []uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	inst, err := b.get(id)
	if err != nil {
		return err
	}
	props := b.propsOf(inst)
	if props == nil {
		return exterrors.New(exterrors.CodeInvalidParam, "instance has no property bag")
	}
	for _, propID := range propIDs {
		props.Remove(propID)
	}
	return nil
}

func (b *Buffer) propsOf(inst *Instance) *propval.Bag {
	if inst.Kind == KindMessage {
		return inst.Message.Props
	}
	return inst.Attachment.Props
}

func bagToValues(bag *propval.Bag) []propval.TaggedValue {
	vals := make([]propval.TaggedValue, 0, bag.Len())
	bag.Each(func(v propval.TaggedValue) { vals = append(vals, v) })
	return vals
}

// FlushInstance implements flush_instance: persists a message instance via
// internal/storedb and returns its message id. For an attachment instance,
// this copies the content into the parent message instance's attachment
// list by matching attachment number and returns zero; storage is written
// when the parent message instance is flushed.
func (b *Buffer) FlushInstance(ctx context.Context, id ids.InstanceID) (ids.EID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inst, err := b.get(id)
	if err != nil {
		return 0, err
	}
	if inst.Kind != KindMessage {
		parent, err := b.get(inst.Parent)
		if err != nil {
			return 0, err
		}
		for i, a := range parent.Message.Attachments {
			if a.AttachNum == inst.AttachNum {
				parent.Message.Attachments[i] = inst.Attachment
				return 0, nil
			}
		}
		parent.Message.Attachments = append(parent.Message.Attachments, inst.Attachment)
		return 0, nil
	}
	return b.flushMessage(ctx, inst.FolderID, inst.MessageID, 0, inst.IsNew, inst.Message)
}

// flushMessage recursively writes content (and any embedded messages under
// its attachments) to storedb, returning the message's id.
func (b *Buffer) flushMessage(ctx context.Context, folder ids.EID, mid ids.EID, parentAtt ids.AttachmentID, isNew bool, content *MessageContent) (ids.EID, error) {
	deriveHTMLToPlainBody(content)

	assoc := false
	if v, ok := content.Props.Get(propval.PidTagAssociated); ok {
		assoc = v.Bool
	}

	var size uint64
	content.Props.Each(func(v propval.TaggedValue) {
		size += uint64(len(v.Bin)) + uint64(len(v.Str))
	})

	err := b.db.Tx(ctx, func(tx *sql.Tx) error {
		if isNew {
			if _, err := b.db.CreateMessage(ctx, storedb.CreateMessageParams{
				ID: mid, ParentFID: folder, ParentAttID: parentAtt, IsAssociated: assoc,
			}); err != nil {
				return err
			}
		} else if _, err := b.db.TouchMessage(ctx, tx, mid); err != nil {
			return err
		}

		if err := b.db.SetMessageProps(ctx, tx, mid, bagToValues(content.Props)); err != nil {
			return err
		}
		if err := b.db.ReplaceRecipients(ctx, tx, mid, content.Recipients); err != nil {
			return err
		}
		if err := b.flushAttachments(ctx, tx, mid, content.Attachments); err != nil {
			return err
		}
		return b.db.SetMessageSize(ctx, tx, mid, size)
	})
	return mid, err
}

func (b *Buffer) flushAttachments(ctx context.Context, tx *sql.Tx, mid ids.EID, atts []*AttachmentContent) error {
	existing, err := b.db.Attachments(ctx, mid)
	if err != nil {
		return err
	}
	for _, old := range existing {
		if err := b.db.RemoveAttachment(ctx, tx, old.ID); err != nil {
			return err
		}
	}
	for _, a := range atts {
		attID, err := b.db.AddAttachment(ctx, tx, mid, a.AttachNum, 0, a.Props)
		if err != nil {
			return err
		}
		if a.Embedded != nil {
			embeddedMID, err := b.db.NewMessageID(ctx)
			if err != nil {
				return err
			}
			if _, err := b.flushMessage(ctx, 0, embeddedMID, attID, true, a.Embedded); err != nil {
				return err
			}
			if err := b.db.SetAttachmentEmbedded(ctx, tx, attID, embeddedMID); err != nil {
				return err
			}
		}
	}
	return nil
}

// deriveHTMLToPlainBody fills PR_BODY from PR_HTML when the content has
// PR_HTML and no PR_BODY (spec §4.4). It does not track which properties
// changed since the instance was loaded, so an existing PR_BODY is kept
// even when PR_HTML was rewritten. The conversion itself is stripHTMLTags
// (bluemonday.StrictPolicy().Sanitize, CRLF to LF, then trimming leading
// and trailing whitespace); this function only decides whether to run it.
func deriveHTMLToPlainBody(content *MessageContent) {
	html, hasHTML := content.Props.Get(propval.PidTagHtml)
	_, hasPlain := content.Props.Get(propval.PidTagBody)
	if !hasHTML || hasPlain {
		return
	}
	content.Props.Set(propval.TaggedValue{
		Tag: propval.MakeTag(propval.PidTagBody, propval.PtUnicode),
		Str: stripHTMLTags(string(html.Bin)),
	})
}
