package propval

import (
	"strings"
	"time"
)

// RelOp is the relational operator used by PROPERTY and PROPCOMPARE
// restrictions.
type RelOp int

const (
	RelLT RelOp = iota
	RelLE
	RelGT
	RelGE
	RelEQ
	RelNE
	RelRE // "relational-ish" membership, unused placeholder kept for parity with source enum width
)

// FuzzyLevel controls CONTENT restriction matching (spec §4.1).
type FuzzyLevel int

const (
	FuzzyFullString FuzzyLevel = iota
	FuzzySubstring
	FuzzyPrefix
)

// Getter resolves a proptag to its current value for the object under
// evaluation (a message, a folder, or a materialized view-table row). The
// same Restriction tree is evaluated against all three via this one
// callback (spec §9).
type Getter func(tag Tag) (TaggedValue, bool)

// SubGetter resolves the list of sub-object getters for a SUBRESTRICTION
// (recipients or attachments of the message under evaluation).
type SubGetter func() []Getter

// Restriction is a node in a restriction tree. Exactly one of the typed
// fields is meaningful, selected by Kind.
type Restriction struct {
	Kind Kind

	// AND / OR
	Children []Restriction

	// NOT
	Inner *Restriction

	// CONTENT
	ContentTag        Tag
	ContentFuzzy      FuzzyLevel
	ContentIgnoreCase bool
	ContentIgnorePfx  bool // carried with the restriction; evalContent does not read it, so there is no loose matching
	ContentValue      TaggedValue

	// PROPERTY
	PropOp  RelOp
	PropTag Tag
	// PropAnr, when PropTag == PidTagAnr, triggers case-insensitive
	// substring match across a display-name-like surface instead of an
	// exact compare.
	PropAnr  bool
	PropVal  TaggedValue

	// PROPCOMPARE
	CompareOp   RelOp
	CompareTag1 Tag
	CompareTag2 Tag

	// BITMASK
	BitmaskTag       Tag
	BitmaskValue     uint32
	BitmaskNonZero   bool // false = EQZ, true = NEZ

	// SIZE
	SizeTag   Tag
	SizeOp    RelOp
	SizeValue uint32

	// EXIST
	ExistTag Tag

	// SUBRESTRICTION
	SubIsAttachment bool
	SubInner        *Restriction

	// COMMENT
	CommentInner *Restriction
	CommentProps *Bag

	// COUNT
	CountInner *Restriction
	CountLimit uint32
}

type Kind int

const (
	KindAnd Kind = iota
	KindOr
	KindNot
	KindContent
	KindProperty
	KindPropCompare
	KindBitmask
	KindSize
	KindExist
	KindSubRestriction
	KindComment
	KindCount
)

// countState carries the COUNT restriction's "at most N evaluations"
// budget across a single Eval call tree; a restriction instance is
// stateless, so the counter lives on the stack of each top-level Eval
// invocation.
type countState struct {
	remaining map[*Restriction]uint32
}

// Eval evaluates r against get (and, if the tree contains a
// SUBRESTRICTION, subGet for the relevant sub-object kind). It is pure: no
// mutation, no I/O beyond what get/subGet choose to do.
func Eval(r Restriction, get Getter, subGetRecip, subGetAttach SubGetter) bool {
	cs := &countState{remaining: make(map[*Restriction]uint32)}
	return eval(&r, get, subGetRecip, subGetAttach, cs)
}

func eval(r *Restriction, get Getter, subRecip, subAttach SubGetter, cs *countState) bool {
	switch r.Kind {
	case KindAnd:
		for i := range r.Children {
			if !eval(&r.Children[i], get, subRecip, subAttach, cs) {
				return false
			}
		}
		return true
	case KindOr:
		for i := range r.Children {
			if eval(&r.Children[i], get, subRecip, subAttach, cs) {
				return true
			}
		}
		return false
	case KindNot:
		if r.Inner == nil {
			return true
		}
		return !eval(r.Inner, get, subRecip, subAttach, cs)
	case KindContent:
		return evalContent(r, get)
	case KindProperty:
		return evalProperty(r, get)
	case KindPropCompare:
		return evalPropCompare(r, get)
	case KindBitmask:
		return evalBitmask(r, get)
	case KindSize:
		return evalSize(r, get)
	case KindExist:
		_, ok := get(r.ExistTag)
		return ok
	case KindSubRestriction:
		if r.SubInner == nil {
			return false
		}
		var sub SubGetter
		if r.SubIsAttachment {
			sub = subAttach
		} else {
			sub = subRecip
		}
		if sub == nil {
			return false
		}
		for _, g := range sub() {
			if eval(r.SubInner, g, subRecip, subAttach, cs) {
				return true
			}
		}
		return false
	case KindComment:
		if r.CommentInner == nil {
			return true
		}
		return eval(r.CommentInner, get, subRecip, subAttach, cs)
	case KindCount:
		if r.CountInner == nil {
			return true
		}
		left, seen := cs.remaining[r]
		if !seen {
			left = r.CountLimit
		}
		if left == 0 {
			return false
		}
		cs.remaining[r] = left - 1
		return eval(r.CountInner, get, subRecip, subAttach, cs)
	default:
		return false
	}
}

func evalContent(r *Restriction, get Getter) bool {
	v, ok := get(r.ContentTag)
	if !ok {
		return false
	}
	hay := valueString(v)
	needle := valueString(r.ContentValue)
	if r.ContentIgnoreCase {
		hay = strings.ToLower(hay)
		needle = strings.ToLower(needle)
	}
	switch r.ContentFuzzy {
	case FuzzyFullString:
		return hay == needle
	case FuzzyPrefix:
		return strings.HasPrefix(hay, needle)
	default: // FuzzySubstring
		return strings.Contains(hay, needle)
	}
}

func evalProperty(r *Restriction, get Getter) bool {
	if r.PropTag.PropID() == PidTagAnr || r.PropAnr {
		v, ok := get(r.PropTag)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(valueString(v)), strings.ToLower(valueString(r.PropVal)))
	}
	v, ok := get(r.PropTag)
	if !ok {
		return false
	}
	return compareValues(v, r.PropVal, r.PropOp)
}

func evalPropCompare(r *Restriction, get Getter) bool {
	a, ok1 := get(r.CompareTag1)
	b, ok2 := get(r.CompareTag2)
	if !ok1 || !ok2 {
		return false
	}
	return compareValues(a, b, r.CompareOp)
}

func evalBitmask(r *Restriction, get Getter) bool {
	v, ok := get(r.BitmaskTag)
	if !ok {
		return false
	}
	var n uint32
	switch r.BitmaskTag.PropType() {
	case PtLong:
		n = uint32(v.I32)
	case PtShort:
		n = uint32(v.I16)
	default:
		return false
	}
	isZero := n&r.BitmaskValue == 0
	if r.BitmaskNonZero {
		return !isZero
	}
	return isZero
}

func evalSize(r *Restriction, get Getter) bool {
	v, ok := get(r.SizeTag)
	if !ok {
		return false
	}
	sz := uint32(valueSize(v))
	return compareUint32(sz, r.SizeValue, r.SizeOp)
}

func valueSize(v TaggedValue) int {
	switch {
	case v.Bin != nil:
		return len(v.Bin)
	case v.Str != "":
		return len(v.Str)
	default:
		return 0
	}
}

func valueString(v TaggedValue) string {
	if v.Str != "" {
		return v.Str
	}
	return string(v.Bin)
}

func compareUint32(a, b uint32, op RelOp) bool {
	switch op {
	case RelLT:
		return a < b
	case RelLE:
		return a <= b
	case RelGT:
		return a > b
	case RelGE:
		return a >= b
	case RelEQ:
		return a == b
	case RelNE:
		return a != b
	default:
		return false
	}
}

func compareValues(a, b TaggedValue, op RelOp) bool {
	switch a.Tag.PropType() &^ MvFlag {
	case PtLong:
		return compareInt64(int64(a.I32), int64(b.I32), op)
	case PtShort:
		return compareInt64(int64(a.I16), int64(b.I16), op)
	case PtI8:
		return compareInt64(a.I64, b.I64, op)
	case PtBoolean:
		if op == RelEQ {
			return a.Bool == b.Bool
		}
		if op == RelNE {
			return a.Bool != b.Bool
		}
		return false
	case PtSysTime, PtAppTime:
		return compareTime(a.Time, b.Time, op)
	default:
		return compareString(valueString(a), valueString(b), op)
	}
}

func compareInt64(a, b int64, op RelOp) bool {
	switch op {
	case RelLT:
		return a < b
	case RelLE:
		return a <= b
	case RelGT:
		return a > b
	case RelGE:
		return a >= b
	case RelEQ:
		return a == b
	case RelNE:
		return a != b
	default:
		return false
	}
}

func compareTime(a, b time.Time, op RelOp) bool {
	switch op {
	case RelLT:
		return a.Before(b)
	case RelLE:
		return a.Before(b) || a.Equal(b)
	case RelGT:
		return a.After(b)
	case RelGE:
		return a.After(b) || a.Equal(b)
	case RelEQ:
		return a.Equal(b)
	case RelNE:
		return !a.Equal(b)
	default:
		return false
	}
}

func compareString(a, b string, op RelOp) bool {
	switch op {
	case RelLT:
		return a < b
	case RelLE:
		return a <= b
	case RelGT:
		return a > b
	case RelGE:
		return a >= b
	case RelEQ:
		return a == b
	case RelNE:
		return a != b
	default:
		return false
	}
}
