// Package instance implements the in-memory instance buffer described in
// spec §4.4: deeply-materialized MESSAGE_CONTENT/ATTACHMENT_CONTENT handles
// that a connection mutates before flushing to internal/storedb.
package instance

import (
	"github.com/foxcpp/exmdb/internal/propval"
)

// MessageContent is a deep, in-memory copy of a message: its property bag
// plus its ordered recipient and attachment collections. This is the
// engine's MESSAGE_CONTENT.
type MessageContent struct {
	Props       *propval.Bag
	Recipients  []*propval.Bag
	Attachments []*AttachmentContent
}

func NewMessageContent() *MessageContent {
	return &MessageContent{Props: propval.NewBag()}
}

// Clone returns a deep copy, used when read_message_instance hands out a
// rendered snapshot that the caller may not alias against the live
// instance.
func (m *MessageContent) Clone() *MessageContent {
	out := &MessageContent{Props: m.Props.Clone()}
	for _, r := range m.Recipients {
		out.Recipients = append(out.Recipients, r.Clone())
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, a.Clone())
	}
	return out
}

// AttachmentContent is a deep, in-memory copy of one attachment. Embedded is
// non-nil when the attachment carries a recursive embedded message.
type AttachmentContent struct {
	AttachNum int
	Props     *propval.Bag
	Embedded  *MessageContent
}

func (a *AttachmentContent) Clone() *AttachmentContent {
	out := &AttachmentContent{AttachNum: a.AttachNum, Props: a.Props.Clone()}
	if a.Embedded != nil {
		out.Embedded = a.Embedded.Clone()
	}
	return out
}

// readonlyMessageProps are proptags write_message_instance and
// set_instance_properties must silently reject on a message instance (spec
// §4.4: "rejects readonly proptags (MID, FID, size, has-attach,
// display-to/cc/bcc, transport-headers, etc.)"). Keyed by property id
// (Tag.PropID()), since the readonly policy does not depend on the proptag's
// type variant.
var readonlyMessageProps = map[uint16]bool{
	propval.PidTagMid:                   true,
	propval.PidTagFolderId:              true,
	propval.PidTagParentFolderId:        true,
	propval.PidTagMessageSize:           true,
	propval.PidTagHasAttachments:        true,
	propval.PidTagChangeNumber:          true,
	propval.PidTagChangeKey:             true,
	propval.PidTagPredecessorChangeList: true,
	propval.PidTagLastModificationTime:  true,
	propval.PidTagTransportMessageHeaders: true,
	pidTagDisplayTo:  true,
	pidTagDisplayCc:  true,
	pidTagDisplayBcc: true,
}

// Not carried in internal/propval/proptag.go because nothing outside the
// instance buffer's readonly policy needs them.
const (
	pidTagDisplayTo  = 0x0E04
	pidTagDisplayCc  = 0x0E03
	pidTagDisplayBcc = 0x0E02
)

// IsReadonlyMessageProp reports whether id may never be written through
// write_message_instance/set_instance_properties on a message instance.
func IsReadonlyMessageProp(id uint16) bool {
	return readonlyMessageProps[id]
}

// otherStringVariantType maps a PT_STRING8 type to its PT_UNICODE sibling
// and back (both share the same property id, and a Bag keeps one value per
// property id). set_instance_properties drops the other variant whenever
// one is (re)written, per spec §4.4.
func otherStringVariantType(t propval.Type) (propval.Type, bool) {
	switch t {
	case propval.PtString8:
		return propval.PtUnicode, true
	case propval.PtUnicode:
		return propval.PtString8, true
	case propval.PtMvString8:
		return propval.PtMvUnicode, true
	case propval.PtMvUnicode:
		return propval.PtMvString8, true
	}
	return 0, false
}
