package propval

import (
	"encoding/binary"
	"fmt"
	"time"
)

// EncodeStored serializes a TaggedValue to the blob form kept in the
// *_properties tables (proptag is stored in its own column; this only
// encodes the value).
func EncodeStored(v TaggedValue) ([]byte, error) {
	t := v.Tag.PropType()
	switch t &^ MvFlag {
	case PtShort:
		if !t.IsMultiValue() {
			return le16(uint16(v.I16)), nil
		}
		return encodeMV(len(v.MVI16), func(i int) []byte { return le16(uint16(v.MVI16[i])) }), nil
	case PtLong:
		if !t.IsMultiValue() {
			return le32(uint32(v.I32)), nil
		}
		return encodeMV(len(v.MVI32), func(i int) []byte { return le32(uint32(v.MVI32[i])) }), nil
	case PtI8, PtSysTime:
		if !t.IsMultiValue() {
			if t&^MvFlag == PtSysTime {
				return le64(uint64(v.Time.UnixNano())), nil
			}
			return le64(uint64(v.I64)), nil
		}
		return encodeMV(len(v.MVI64), func(i int) []byte { return le64(uint64(v.MVI64[i])) }), nil
	case PtBoolean:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case PtGUID:
		return append([]byte(nil), v.GUID[:]...), nil
	case PtString8, PtUnicode:
		if !t.IsMultiValue() {
			return []byte(v.Str), nil
		}
		return encodeMV(len(v.MVStr), func(i int) []byte { return []byte(v.MVStr[i]) }), nil
	case PtBinary:
		if !t.IsMultiValue() {
			return append([]byte(nil), v.Bin...), nil
		}
		return encodeMV(len(v.MVBin), func(i int) []byte { return v.MVBin[i] }), nil
	default:
		return append([]byte(nil), v.Bin...), nil
	}
}

// DecodeStored is the inverse of EncodeStored given the proptag (which
// carries the type).
func DecodeStored(tag Tag, raw []byte) (TaggedValue, error) {
	t := tag.PropType()
	v := TaggedValue{Tag: tag}
	switch t &^ MvFlag {
	case PtShort:
		if !t.IsMultiValue() {
			if len(raw) < 2 {
				return v, fmt.Errorf("propval: short value too small")
			}
			v.I16 = int16(binary.LittleEndian.Uint16(raw))
			return v, nil
		}
		parts, err := decodeMV(raw)
		if err != nil {
			return v, err
		}
		for _, p := range parts {
			v.MVI16 = append(v.MVI16, int16(binary.LittleEndian.Uint16(p)))
		}
		return v, nil
	case PtLong:
		if !t.IsMultiValue() {
			if len(raw) < 4 {
				return v, fmt.Errorf("propval: long value too small")
			}
			v.I32 = int32(binary.LittleEndian.Uint32(raw))
			return v, nil
		}
		parts, err := decodeMV(raw)
		if err != nil {
			return v, err
		}
		for _, p := range parts {
			v.MVI32 = append(v.MVI32, int32(binary.LittleEndian.Uint32(p)))
		}
		return v, nil
	case PtI8, PtSysTime:
		if !t.IsMultiValue() {
			if len(raw) < 8 {
				return v, fmt.Errorf("propval: i8 value too small")
			}
			n := binary.LittleEndian.Uint64(raw)
			if t&^MvFlag == PtSysTime {
				v.Time = time.Unix(0, int64(n))
			} else {
				v.I64 = int64(n)
			}
			return v, nil
		}
		parts, err := decodeMV(raw)
		if err != nil {
			return v, err
		}
		for _, p := range parts {
			v.MVI64 = append(v.MVI64, int64(binary.LittleEndian.Uint64(p)))
		}
		return v, nil
	case PtBoolean:
		v.Bool = len(raw) > 0 && raw[0] != 0
		return v, nil
	case PtGUID:
		copy(v.GUID[:], raw)
		return v, nil
	case PtString8, PtUnicode:
		if !t.IsMultiValue() {
			v.Str = string(raw)
			return v, nil
		}
		parts, err := decodeMV(raw)
		if err != nil {
			return v, err
		}
		for _, p := range parts {
			v.MVStr = append(v.MVStr, string(p))
		}
		return v, nil
	case PtBinary:
		if !t.IsMultiValue() {
			v.Bin = append([]byte(nil), raw...)
			return v, nil
		}
		parts, err := decodeMV(raw)
		if err != nil {
			return v, err
		}
		v.MVBin = parts
		return v, nil
	default:
		v.Bin = append([]byte(nil), raw...)
		return v, nil
	}
}

func le16(n uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, n); return b }
func le32(n uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, n); return b }
func le64(n uint64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, n); return b }

// encodeMV frames a multi-value array as [u32 count][u32 len, bytes]...
func encodeMV(count int, elem func(i int) []byte) []byte {
	out := le32(uint32(count))
	for i := 0; i < count; i++ {
		e := elem(i)
		out = append(out, le32(uint32(len(e)))...)
		out = append(out, e...)
	}
	return out
}

func decodeMV(raw []byte) ([][]byte, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("propval: mv array too small")
	}
	count := binary.LittleEndian.Uint32(raw)
	raw = raw[4:]
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(raw) < 4 {
			return nil, fmt.Errorf("propval: mv array truncated")
		}
		n := binary.LittleEndian.Uint32(raw)
		raw = raw[4:]
		if uint32(len(raw)) < n {
			return nil, fmt.Errorf("propval: mv array element truncated")
		}
		out = append(out, append([]byte(nil), raw[:n]...))
		raw = raw[n:]
	}
	return out, nil
}
