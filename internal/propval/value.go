package propval

import "time"

// TaggedValue is a tagged union over the MAPI property types this engine
// supports (spec §9 "Polymorphic property values"). Exactly one field is
// meaningful, selected by Tag.PropType().
type TaggedValue struct {
	Tag Tag

	I16  int16
	I32  int32
	I64  int64
	F32  float32
	F64  float64
	Bool bool
	GUID [16]byte
	Time time.Time

	Str string
	Bin []byte

	// MV variants. Exactly one of these is populated when
	// Tag.PropType().IsMultiValue().
	MVI16 []int16
	MVI32 []int32
	MVI64 []int64
	MVStr []string
	MVBin [][]byte
}

// TPROPVAL_ARRAY: an unordered property bag. set_propval is last-write-wins
// by proptag id (the type may legitimately change between writes, e.g.
// PT_UNICODE and PT_STRING8 variants of the same id share one slot, so
// setting one replaces the other).
type Bag struct {
	byID map[uint16]TaggedValue
}

func NewBag() *Bag {
	return &Bag{byID: make(map[uint16]TaggedValue)}
}

// Set is last-write-wins by property id, discarding any previous type
// stored under the same id.
func (b *Bag) Set(v TaggedValue) {
	if b.byID == nil {
		b.byID = make(map[uint16]TaggedValue)
	}
	b.byID[v.Tag.PropID()] = v
}

func (b *Bag) Get(id uint16) (TaggedValue, bool) {
	v, ok := b.byID[id]
	return v, ok
}

func (b *Bag) GetTag(tag Tag) (TaggedValue, bool) {
	v, ok := b.byID[tag.PropID()]
	if !ok || v.Tag.PropType() != tag.PropType() {
		return TaggedValue{}, false
	}
	return v, true
}

func (b *Bag) Remove(id uint16) {
	delete(b.byID, id)
}

func (b *Bag) Len() int { return len(b.byID) }

// Each iterates the bag's id->value pairs in unspecified order.
func (b *Bag) Each(f func(TaggedValue)) {
	for _, v := range b.byID {
		f(v)
	}
}

// Clone returns a deep-enough copy (scalar fields copied, slices
// re-sliced from fresh backing arrays) suitable for handing an instance's
// working copy to a caller without aliasing risk.
func (b *Bag) Clone() *Bag {
	out := NewBag()
	b.Each(func(v TaggedValue) {
		out.Set(cloneValue(v))
	})
	return out
}

func cloneValue(v TaggedValue) TaggedValue {
	cp := v
	if v.Bin != nil {
		cp.Bin = append([]byte(nil), v.Bin...)
	}
	if v.MVBin != nil {
		cp.MVBin = make([][]byte, len(v.MVBin))
		for i, b := range v.MVBin {
			cp.MVBin[i] = append([]byte(nil), b...)
		}
	}
	if v.MVStr != nil {
		cp.MVStr = append([]string(nil), v.MVStr...)
	}
	if v.MVI16 != nil {
		cp.MVI16 = append([]int16(nil), v.MVI16...)
	}
	if v.MVI32 != nil {
		cp.MVI32 = append([]int32(nil), v.MVI32...)
	}
	if v.MVI64 != nil {
		cp.MVI64 = append([]int64(nil), v.MVI64...)
	}
	return cp
}

// PROPTAG_ARRAY: an ordered, index-addressable list of proptags.
type TagArray struct {
	tags []Tag
}

func (a *TagArray) Append(t Tag) {
	a.tags = append(a.tags, t)
}

// AppendUnique appends t only if not already present (by full Tag, i.e.
// id+type).
func (a *TagArray) AppendUnique(t Tag) {
	for _, existing := range a.tags {
		if existing == t {
			return
		}
	}
	a.Append(t)
}

func (a *TagArray) IndexOf(t Tag) int {
	for i, existing := range a.tags {
		if existing == t {
			return i
		}
	}
	return -1
}

func (a *TagArray) Len() int      { return len(a.tags) }
func (a *TagArray) At(i int) Tag  { return a.tags[i] }
func (a *TagArray) Slice() []Tag  { return a.tags }
