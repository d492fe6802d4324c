package ids

import (
	"context"
	"fmt"
	"sync"

	"github.com/foxcpp/exmdb/internal/elog"
)

// RangeReserver persists a reservation of n consecutive counter values and
// returns the first value of the reserved range. Implemented by the
// storage layer against the allocated_eids table (spec §4.2, §4.3).
// is_system distinguishes change-number ranges from message/folder-id
// ranges sharing the same table.
type RangeReserver interface {
	ReserveRange(ctx context.Context, isSystem bool, n uint64) (begin uint64, err error)
}

// DefaultBatchSize is the number of counters reserved per round trip. The
// change-number allocator and the mailbox-wide EID allocator each keep
// their own cursor but share this batch size, bounding SQL round trips
// under heavy load (spec §4.2).
const DefaultBatchSize = 1024

// Allocator hands out monotone 48-bit counters, reserving them from the
// backing store in batches. Safe for concurrent use; a single Allocator is
// meant to be shared by every caller operating against one DB handle.
// Values come straight from the reserved ranges, so zero is handed out only
// if the RangeReserver returns a range starting at zero; storedb's
// ReserveRange starts its first range at 1.
type Allocator struct {
	mu        sync.Mutex
	reserver  RangeReserver
	isSystem  bool
	batchSize uint64
	next      uint64
	end       uint64 // exclusive
	log       elog.Logger
}

// NewChangeNumberAllocator builds the allocator for a mailbox's per-DB
// change-number counter (spec §3 "Change number").
func NewChangeNumberAllocator(reserver RangeReserver, log elog.Logger) *Allocator {
	return &Allocator{reserver: reserver, isSystem: true, batchSize: DefaultBatchSize, log: log}
}

// NewEIDAllocator builds the allocator used for mailbox-wide folder/message
// id allocation (allocate_eid, spec §4.2).
func NewEIDAllocator(reserver RangeReserver, log elog.Logger) *Allocator {
	return &Allocator{reserver: reserver, isSystem: false, batchSize: DefaultBatchSize, log: log}
}

// Allocate returns the next counter value, never reusing one, reserving a
// fresh batch from the backing store when the current one is exhausted.
func (a *Allocator) Allocate(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next >= a.end {
		begin, err := a.reserver.ReserveRange(ctx, a.isSystem, a.batchSize)
		if err != nil {
			return 0, fmt.Errorf("ids: reserve range: %w", err)
		}
		a.next = begin
		a.end = begin + a.batchSize
		a.log.Debugf("reserved allocator range [%d, %d)", a.next, a.end)
	}

	v := a.next
	a.next++
	return v, nil
}

// AllocateN returns n consecutive counter values as [begin, begin+n). It
// may span more than one reserved batch; it never returns a range that
// overlaps one already handed out.
func (a *Allocator) AllocateN(ctx context.Context, n uint64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("ids: AllocateN requires n > 0")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next+n <= a.end {
		v := a.next
		a.next += n
		return v, nil
	}

	// Doesn't fit in the remaining reservation: reserve a fresh range of n
	// counters (or a full batch if n is smaller), abandoning the
	// remainder of the old range rather than splicing two ranges
	// together (change numbers are never reused, but gaps are fine).
	size := n
	if size < a.batchSize {
		size = a.batchSize
	}
	begin, err := a.reserver.ReserveRange(ctx, a.isSystem, size)
	if err != nil {
		return 0, fmt.Errorf("ids: reserve range: %w", err)
	}
	a.next = begin + n
	a.end = begin + size
	return begin, nil
}
