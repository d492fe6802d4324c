package wire

import "sort"

// IDSet is a compressed set of 64-bit identifiers (change numbers or EIDs),
// matching the original's IDSET: used for CNSETSEEN, CNSETSEENFAI,
// CNSETREAD, IDSETGIVEN/IDSETGIVEN1 and deletion sets (spec §4.5, §6).
// Internally kept as sorted disjoint [begin, end) ranges rather than a
// literal bitmap, since mailbox counters are sparse over a 48-bit space.
type IDSet struct {
	ranges []idRange
}

type idRange struct{ begin, end uint64 } // [begin, end)

func NewIDSet() *IDSet { return &IDSet{} }

func (s *IDSet) Add(v uint64) {
	s.AddRange(v, v+1)
}

// AddRange inserts [begin, end), merging with any adjacent or overlapping
// ranges.
func (s *IDSet) AddRange(begin, end uint64) {
	if begin >= end {
		return
	}
	s.ranges = append(s.ranges, idRange{begin, end})
	sort.Slice(s.ranges, func(i, j int) bool { return s.ranges[i].begin < s.ranges[j].begin })

	merged := s.ranges[:0]
	for _, r := range s.ranges {
		if len(merged) > 0 && r.begin <= merged[len(merged)-1].end {
			last := &merged[len(merged)-1]
			if r.end > last.end {
				last.end = r.end
			}
			continue
		}
		merged = append(merged, r)
	}
	s.ranges = merged
}

func (s *IDSet) Contains(v uint64) bool {
	for _, r := range s.ranges {
		if v >= r.begin && v < r.end {
			return true
		}
	}
	return false
}

// Max returns the largest member and true, or (0, false) if empty.
func (s *IDSet) Max() (uint64, bool) {
	if len(s.ranges) == 0 {
		return 0, false
	}
	return s.ranges[len(s.ranges)-1].end - 1, true
}

// Each calls f for every member in ascending order.
func (s *IDSet) Each(f func(uint64)) {
	for _, r := range s.ranges {
		for v := r.begin; v < r.end; v++ {
			f(v)
		}
	}
}

func (s *IDSet) Len() int {
	n := 0
	for _, r := range s.ranges {
		n += int(r.end - r.begin)
	}
	return n
}

// Marshal encodes the set as a range count followed by (begin, end-begin)
// pairs, the engine's own compact wire form for a state-stream payload
// (rather than the original's bitmap-per-replica encoding, which this
// single-replica-per-handle engine has no use for).
func (s *IDSet) Marshal() []byte {
	p := NewPushBuffer()
	p.Uint32(uint32(len(s.ranges)))
	for _, r := range s.ranges {
		p.Uint64(r.begin)
		p.Uint64(r.end - r.begin)
	}
	return p.Bytes()
}

// UnmarshalIDSet decodes a buffer produced by Marshal, used by
// end_state_stream to deserialize the client's accumulated chunks into an
// IDSet registered under the state slot.
func UnmarshalIDSet(data []byte) (*IDSet, error) {
	p := NewPullBuffer(data)
	n, err := p.Uint32()
	if err != nil {
		return nil, err
	}
	s := NewIDSet()
	for i := uint32(0); i < n; i++ {
		begin, err := p.Uint64()
		if err != nil {
			return nil, err
		}
		length, err := p.Uint64()
		if err != nil {
			return nil, err
		}
		s.AddRange(begin, begin+length)
	}
	return s, nil
}
