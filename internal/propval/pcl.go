package propval

import (
	"github.com/foxcpp/exmdb/internal/ids"
)

// PCL is the predecessor change list: a set of (GUID, counter) pairs
// serialized to PR_PREDECESSOR_CHANGE_LIST (spec §4.1, §4.3, testable
// property 2). Entries are kept in the order they were parsed or appended,
// and serialization writes them in that order, so a parsed PCL round-trips
// byte-for-byte.
type PCL struct {
	entries []ids.XID
}

// ParsePCL decodes a PR_PREDECESSOR_CHANGE_LIST blob: a concatenation of
// generic XID encodings (17-24 bytes each), with no overall length prefix
// - each entry is self-delimiting via its GUID + counter-length framing,
// mirrored here as a leading 1-byte counter length per entry since the
// generic XID encoding alone is not self-delimiting in a concatenated
// stream.
func ParsePCL(buf []byte) (PCL, error) {
	var p PCL
	for len(buf) > 0 {
		if len(buf) < 17 {
			break
		}
		n := int(buf[0])
		if n < 1 || n > 8 || len(buf) < 1+16+n {
			break
		}
		x, err := ids.UnmarshalGeneric(buf[1 : 1+16+n])
		if err != nil {
			return PCL{}, err
		}
		p.entries = append(p.entries, x)
		buf = buf[1+16+n:]
	}
	return p, nil
}

// Serialize encodes the PCL back to its wire form (1-byte counter length +
// generic XID per entry).
func (p PCL) Serialize() []byte {
	var out []byte
	for _, x := range p.entries {
		enc := x.MarshalGeneric()
		n := len(enc) - 16
		out = append(out, byte(n))
		out = append(out, enc...)
	}
	return out
}

// dominates reports whether a already contains an entry for guid with a
// counter >= the given counter (i.e. x is already implied by a).
func (p PCL) dominates(x ids.XID) bool {
	for _, e := range p.entries {
		if e.GUID == x.GUID && e.Counter >= x.Counter {
			return true
		}
	}
	return false
}

// Append merges x into the PCL: per-GUID, only the highest counter is
// kept (dominated entries are removed). Appending an already-dominated
// XID is a no-op, making Append idempotent (testable property 2).
func (p PCL) Append(x ids.XID) PCL {
	out := PCL{entries: make([]ids.XID, 0, len(p.entries)+1)}
	inserted := false
	for _, e := range p.entries {
		if e.GUID == x.GUID {
			if e.Counter >= x.Counter {
				// existing entry already dominates x; keep as-is.
				out.entries = append(out.entries, e)
				inserted = true
				continue
			}
			// x dominates the existing entry for this GUID; replace.
			if !inserted {
				out.entries = append(out.entries, x)
				inserted = true
			}
			continue
		}
		out.entries = append(out.entries, e)
	}
	if !inserted {
		out.entries = append(out.entries, x)
	}
	return out
}

// CompareResult is the outcome of comparing two PCLs during ICS upload
// conflict detection (spec §4.5 "Contents upload").
type CompareResult int

const (
	CmpEqual CompareResult = iota
	CmpInclude
	CmpIncluded
	CmpConflict
)

// Compare implements pcl_compare(a, b):
//   - EQUAL if the sets are identical;
//   - INCLUDE if a dominates every entry of b (b changed nothing a hadn't
//     already seen for any common GUID AND a has no GUID missing from b
//     that b requires - in the classical PCL semantics, INCLUDE means a
//     is a superset);
//   - INCLUDED if b dominates a (the reverse);
//   - CONFLICT otherwise (divergent history).
func Compare(a, b PCL) CompareResult {
	aIncludesB := true
	for _, x := range b.entries {
		if !a.dominates(x) {
			aIncludesB = false
			break
		}
	}
	bIncludesA := true
	for _, x := range a.entries {
		if !b.dominates(x) {
			bIncludesA = false
			break
		}
	}
	switch {
	case aIncludesB && bIncludesA:
		return CmpEqual
	case aIncludesB:
		return CmpInclude
	case bIncludesA:
		return CmpIncluded
	default:
		return CmpConflict
	}
}

// Len reports the number of distinct-GUID entries, exported for tests.
func (p PCL) Len() int { return len(p.entries) }
