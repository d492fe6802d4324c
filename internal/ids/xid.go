package ids

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// XID is the externally visible identifier used in PR_SOURCE_KEY and in
// PCL entries: a GUID plus a 1-8 byte local counter (spec §3, §6).
type XID struct {
	GUID    uuid.UUID
	Counter uint64
	// CounterLen is the number of significant bytes of Counter actually
	// carried on the wire (1-8). PCL entries from the upload path may use
	// a shorter encoding than the canonical 6-byte SOURCE_KEY form.
	CounterLen int
}

// NewSourceKeyXID builds an XID using the canonical 6-byte counter length
// used for PR_SOURCE_KEY/EID-bound XIDs (spec §6: "22 bytes").
func NewSourceKeyXID(guid uuid.UUID, counter uint64) XID {
	return XID{GUID: guid, Counter: counter, CounterLen: 6}
}

// MarshalSourceKey encodes the XID in the canonical SOURCE_KEY wire form:
// 16-byte GUID followed by a 6-byte little-endian local counter (22 bytes
// total).
func (x XID) MarshalSourceKey() []byte {
	buf := make([]byte, 22)
	copy(buf[0:16], x.GUID[:])
	var c [8]byte
	binary.LittleEndian.PutUint64(c[:], x.Counter)
	copy(buf[16:22], c[0:6])
	return buf
}

// UnmarshalSourceKey decodes a 22-byte PR_SOURCE_KEY value.
func UnmarshalSourceKey(buf []byte) (XID, error) {
	if len(buf) != 22 {
		return XID{}, fmt.Errorf("ids: source key must be 22 bytes, got %d", len(buf))
	}
	g, err := uuid.FromBytes(buf[0:16])
	if err != nil {
		return XID{}, fmt.Errorf("ids: source key guid: %w", err)
	}
	var c [8]byte
	copy(c[0:6], buf[16:22])
	return XID{GUID: g, Counter: binary.LittleEndian.Uint64(c[:]), CounterLen: 6}, nil
}

// MarshalGeneric encodes the XID as (GUID, variable-length little-endian
// counter), 17-24 bytes total, as used by PCL entries.
func (x XID) MarshalGeneric() []byte {
	n := x.CounterLen
	if n <= 0 || n > 8 {
		n = minCounterLen(x.Counter)
	}
	buf := make([]byte, 16+n)
	copy(buf[0:16], x.GUID[:])
	var c [8]byte
	binary.LittleEndian.PutUint64(c[:], x.Counter)
	copy(buf[16:16+n], c[0:n])
	return buf
}

// UnmarshalGeneric decodes a 17-24 byte PCL-style XID.
func UnmarshalGeneric(buf []byte) (XID, error) {
	if len(buf) < 17 || len(buf) > 24 {
		return XID{}, fmt.Errorf("ids: xid must be 17-24 bytes, got %d", len(buf))
	}
	g, err := uuid.FromBytes(buf[0:16])
	if err != nil {
		return XID{}, fmt.Errorf("ids: xid guid: %w", err)
	}
	n := len(buf) - 16
	var c [8]byte
	copy(c[0:n], buf[16:16+n])
	return XID{GUID: g, Counter: binary.LittleEndian.Uint64(c[:]), CounterLen: n}, nil
}

func minCounterLen(v uint64) int {
	n := 1
	for v>>uint(n*8) != 0 {
		n++
	}
	return n
}

// Equal compares GUID and counter, ignoring CounterLen.
func (x XID) Equal(o XID) bool {
	return x.GUID == o.GUID && x.Counter == o.Counter
}
