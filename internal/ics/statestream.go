package ics

import (
	"fmt"
	"sync"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/wire"
)

// StateProp identifies which per-sync state slot a stream targets (spec
// §4.5 "begin_state_stream(proptag)"). Only the five named here carry an
// IDSet payload; the last two are meaningful for contents sync only.
type StateProp uint32

const (
	StateIDSetGiven   StateProp = 0x4017 // META_TAG_IDSETGIVEN
	StateIDSetGiven1  StateProp = 0x4018 // META_TAG_IDSETGIVEN1 (compact form)
	StateCNSetSeen    StateProp = 0x4019
	StateCNSetSeenFAI StateProp = 0x401A
	StateCNSetRead    StateProp = 0x401B
)

// contentsOnlyStates are only valid for a contents-sync state stream (spec
// §4.5: "with contents-only restriction on the last two").
var contentsOnlyStates = map[StateProp]bool{
	StateCNSetSeenFAI: true,
	StateCNSetRead:    true,
}

// StateStream accumulates EXT-encoded chunks for one begin/continue/end
// cycle and decodes them into an IDSet on completion. Its methods take the
// stream's own mutex, so concurrent calls against one StateStream are
// serialized.
type StateStream struct {
	mu       sync.Mutex
	prop     StateProp
	isHier   bool
	chunks   [][]byte
	done     bool
}

// BeginStateStream opens a new accumulation for prop. isHierarchySync
// rejects the contents-only state props (spec §4.5).
func BeginStateStream(prop StateProp, isHierarchySync bool) (*StateStream, error) {
	if isHierarchySync && contentsOnlyStates[prop] {
		return nil, exterrors.New(exterrors.CodeInvalidParam, "property is not valid on a hierarchy sync state stream")
	}
	return &StateStream{prop: prop, isHier: isHierarchySync}, nil
}

// ContinueStateStream appends one more chunk of EXT-encoded data.
func (s *StateStream) ContinueStateStream(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return exterrors.New(exterrors.CodeInvalidParam, "state stream already ended")
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
	return nil
}

// EndStateStream concatenates every chunk fed via ContinueStateStream and
// decodes it as an IDSet (spec §4.5 "end_state_stream").
func (s *StateStream) EndStateStream() (*wire.IDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, exterrors.New(exterrors.CodeInvalidParam, "state stream already ended")
	}
	s.done = true

	total := 0
	for _, c := range s.chunks {
		total += len(c)
	}
	joined := make([]byte, 0, total)
	for _, c := range s.chunks {
		joined = append(joined, c...)
	}
	set, err := wire.UnmarshalIDSet(joined)
	if err != nil {
		return nil, fmt.Errorf("ics: decoding state stream for prop %#x: %w", s.prop, err)
	}
	return set, nil
}

// EncodeStateStream is the download-side counterpart: splits an IDSet's
// wire form into chunkSize-sized pieces the caller feeds to the client one
// continue_state_stream call at a time.
func EncodeStateStream(set *wire.IDSet, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = 1 << 16
	}
	data := set.Marshal()
	var chunks [][]byte
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	if chunks == nil {
		chunks = [][]byte{{}}
	}
	return chunks
}
