// Package wire implements the length-prefixed EXT push/pull buffer used by
// the FastTransfer-style streaming download/upload of folder and message
// content chunks (oxcfxics.cpp, supplemented feature named in SPEC_FULL.md).
// The ICS state streams encode onto one of these through IDSet.Marshal;
// the instance buffer's deep copies are in-memory and do not use it.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PushBuffer appends EXT-encoded values to a growable byte slice, mirroring
// the original's EXT_PUSH writer. All multi-byte integers are little-endian
// except EID/GUID/time wire forms, which keep their own documented
// big/little-endian layout (spec §6) and are written by their owning
// package via RawBytes.
type PushBuffer struct {
	buf []byte
}

func NewPushBuffer() *PushBuffer { return &PushBuffer{} }

func (p *PushBuffer) Bytes() []byte { return p.buf }
func (p *PushBuffer) Len() int      { return len(p.buf) }

func (p *PushBuffer) Uint8(v uint8) { p.buf = append(p.buf, v) }

func (p *PushBuffer) Bool(v bool) {
	if v {
		p.Uint8(1)
	} else {
		p.Uint8(0)
	}
}

func (p *PushBuffer) Uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

func (p *PushBuffer) Uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

func (p *PushBuffer) Uint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	p.buf = append(p.buf, b[:]...)
}

func (p *PushBuffer) Float32(v float32) { p.Uint32(math.Float32bits(v)) }
func (p *PushBuffer) Float64(v float64) { p.Uint64(math.Float64bits(v)) }

// Binary writes a u32-length-prefixed byte blob - the EXT_PUSH convention
// for BINARY/PT_BINARY and for length-delimited sub-buffers (the state
// stream's chunking).
func (p *PushBuffer) Binary(data []byte) {
	p.Uint32(uint32(len(data)))
	p.buf = append(p.buf, data...)
}

// RawBytes appends data verbatim, used when the caller has already encoded
// a value with its own wire layout (e.g. ids.EID.MarshalWire,
// ids.XID.MarshalSourceKey).
func (p *PushBuffer) RawBytes(data []byte) { p.buf = append(p.buf, data...) }

// PullBuffer reads back values written by PushBuffer, tracking a cursor and
// returning an error (instead of panicking) on short input, mirroring
// EXT_PULL's bounds-checked accessors.
type PullBuffer struct {
	buf []byte
	pos int
}

func NewPullBuffer(data []byte) *PullBuffer { return &PullBuffer{buf: data} }

func (p *PullBuffer) Remaining() int { return len(p.buf) - p.pos }

func (p *PullBuffer) need(n int) error {
	if p.Remaining() < n {
		return fmt.Errorf("wire: pull buffer underrun: need %d, have %d", n, p.Remaining())
	}
	return nil
}

func (p *PullBuffer) Uint8() (uint8, error) {
	if err := p.need(1); err != nil {
		return 0, err
	}
	v := p.buf[p.pos]
	p.pos++
	return v, nil
}

func (p *PullBuffer) Bool() (bool, error) {
	v, err := p.Uint8()
	return v != 0, err
}

func (p *PullBuffer) Uint16() (uint16, error) {
	if err := p.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(p.buf[p.pos:])
	p.pos += 2
	return v, nil
}

func (p *PullBuffer) Uint32() (uint32, error) {
	if err := p.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v, nil
}

func (p *PullBuffer) Uint64() (uint64, error) {
	if err := p.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v, nil
}

func (p *PullBuffer) Float32() (float32, error) {
	v, err := p.Uint32()
	return math.Float32frombits(v), err
}

func (p *PullBuffer) Float64() (float64, error) {
	v, err := p.Uint64()
	return math.Float64frombits(v), err
}

func (p *PullBuffer) Binary() ([]byte, error) {
	n, err := p.Uint32()
	if err != nil {
		return nil, err
	}
	if err := p.need(int(n)); err != nil {
		return nil, err
	}
	v := p.buf[p.pos : p.pos+int(n)]
	p.pos += int(n)
	return v, nil
}

func (p *PullBuffer) RawBytes(n int) ([]byte, error) {
	if err := p.need(n); err != nil {
		return nil, err
	}
	v := p.buf[p.pos : p.pos+n]
	p.pos += n
	return v, nil
}
