// Package ids implements the identifier service described in spec §4.2:
// allocation of folder/message/attachment/change-number identifiers, their
// encoding into 64-bit EIDs carrying a replica id, and XID<->EID binding.
package ids

import "encoding/binary"

// ReplicaID identifies the mailbox an EID's counter is local to. 1 is
// always the local mailbox; 2 is reserved for synthetic header rows
// materialized by the view-table engine; other values are resolved through
// the replica-id<->GUID mapping persisted by the storage layer.
type ReplicaID uint16

const (
	ReplicaLocal       ReplicaID = 1
	ReplicaTableHeader ReplicaID = 2
)

// EID is a 64-bit value pairing a 16-bit replica id with a 48-bit global
// counter, matching rop_util_make_eid_ex in the original implementation.
type EID uint64

const gcMask = (uint64(1) << 48) - 1

// MakeEID is the canonical EID constructor (rop_util_make_eid_ex).
func MakeEID(replid ReplicaID, gc uint64) EID {
	return EID(uint64(replid)<<48 | (gc & gcMask))
}

// ReplID returns the replica id portion of the EID.
func (e EID) ReplID() ReplicaID {
	return ReplicaID(uint64(e) >> 48)
}

// GCValue returns the 48-bit global counter portion of the EID.
func (e EID) GCValue() uint64 {
	return uint64(e) & gcMask
}

func (e EID) IsZero() bool { return e == 0 }

// MarshalWire encodes the EID in its on-the-wire form: 2-byte big-endian
// replica id followed by 6-byte big-endian global counter (spec §6).
func (e EID) MarshalWire() [8]byte {
	var buf [8]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(e.ReplID()))
	var gcBuf [8]byte
	binary.BigEndian.PutUint64(gcBuf[:], e.GCValue())
	copy(buf[2:8], gcBuf[2:8])
	return buf
}

// UnmarshalEID decodes the 8-byte wire form produced by MarshalWire.
func UnmarshalEID(buf []byte) (EID, bool) {
	if len(buf) != 8 {
		return 0, false
	}
	replid := binary.BigEndian.Uint16(buf[0:2])
	var gcBuf [8]byte
	copy(gcBuf[2:8], buf[2:8])
	gc := binary.BigEndian.Uint64(gcBuf[:])
	return MakeEID(ReplicaID(replid), gc), true
}

// AttachmentID is a purely local (non-EID) identifier, scoped to a single
// message's attachment list.
type AttachmentID uint32

// InstanceID identifies an in-memory instance within a single DB handle's
// instance buffer (spec §4.4). It is monotone per connection and never
// persisted.
type InstanceID uint32

// TableID identifies a materialized view table within a single DB handle's
// table list (spec §4.6). Also never persisted.
type TableID uint32
