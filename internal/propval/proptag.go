// Package propval implements the tagged-property value model and the
// restriction evaluator described in spec §4.1: proptag-typed values,
// multi-value arrays, codepage-aware string truncation, predecessor
// change-list merging, and restriction-tree evaluation shared by row
// fetch, folder/message property lookup, and rule-condition evaluation.
package propval

import "fmt"

// Type is the 16-bit MAPI property type portion of a proptag.
type Type uint16

const (
	PtUnspecified Type = 0x0000
	PtShort       Type = 0x0002 // int16
	PtLong        Type = 0x0003 // int32
	PtFloat       Type = 0x0004
	PtDouble      Type = 0x0005
	PtCurrency    Type = 0x0006
	PtAppTime     Type = 0x0007
	PtBoolean     Type = 0x000B
	PtObject      Type = 0x000D
	PtI8          Type = 0x0014 // int64
	PtString8     Type = 0x001E // codepage-tagged 8-bit string
	PtUnicode     Type = 0x001F // UTF-16 on the wire, UTF-8 internally
	PtSysTime     Type = 0x0040 // NT FILETIME
	PtGUID        Type = 0x0048
	PtSvrEID      Type = 0x00FB // service entry id
	PtBinary      Type = 0x0102

	MvFlag        Type = 0x1000
	PtMvShort     Type = PtShort | MvFlag
	PtMvLong      Type = PtLong | MvFlag
	PtMvI8        Type = PtI8 | MvFlag
	PtMvString8   Type = PtString8 | MvFlag
	PtMvUnicode   Type = PtUnicode | MvFlag
	PtMvBinary    Type = PtBinary | MvFlag
	PtMvSysTime   Type = PtSysTime | MvFlag
)

func (t Type) IsMultiValue() bool { return t&MvFlag != 0 }

// Tag is a 32-bit proptag: high 16 bits are the property id, low 16 bits
// are the Type.
type Tag uint32

func MakeTag(id uint16, t Type) Tag {
	return Tag(uint32(id)<<16 | uint32(uint16(t)))
}

func (t Tag) PropID() uint16 { return uint16(t >> 16) }
func (t Tag) PropType() Type { return Type(uint16(t)) }

func (t Tag) String() string {
	return fmt.Sprintf("PROPTAG(0x%04X,0x%04X)", t.PropID(), uint16(t.PropType()))
}

// Well-known property ids referenced directly by the storage layer, the
// instance buffer and the ICS engine (spec §3, §4.3-4.5). Types are fixed
// by the protocol; names mirror the original MAPI constants.
const (
	PidTagChangeNumber              = 0x67A4
	PidTagChangeKey                 = 0x65E2
	PidTagPredecessorChangeList      = 0x65E3
	PidTagLastModificationTime      = 0x3008
	PidTagLocalCommitTimeMax        = 0x6709
	PidTagMid                       = 0x674A
	PidTagFolderId                  = 0x6748
	PidTagParentFolderId            = 0x6749
	PidTagMessageFlags              = 0x0E07
	PidTagMessageSize               = 0x0E08
	PidTagMessageSizeExtended       = 0x0E08 // aliased, 64-bit variant used internally
	PidTagAssociated                = 0x67AA
	PidTagReadReceiptRequested      = 0x0029
	PidTagRead                      = 0x0E69
	PidTagHasAttachments            = 0x0E1B
	PidTagBody                      = 0x1000
	PidTagBodyA                     = 0x1002
	PidTagHtml                      = 0x1013
	PidTagRtfCompressed             = 0x1009
	PidTagTransportMessageHeaders   = 0x007D
	PidTagAttachDataBin             = 0x3701
	PidTagAttachDataObj             = 0x3701
	PidTagAttachNumber              = 0x0E21
	PidTagSourceKey                 = 0x65E0
	PidTagParentSourceKey           = 0x65E1
	PidTagProhibitReceiveQuota      = 0x666A
	PidTagStorageQuotaLimit         = 0x666C
	PidTagAnr                       = 0x3002
	PidTagDisplayName               = 0x3001
)
