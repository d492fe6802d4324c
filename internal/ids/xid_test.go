package ids

import (
	"context"
	"sync"
	"testing"

	"github.com/foxcpp/exmdb/internal/elog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSourceKeyRoundTrip(t *testing.T) {
	g := uuid.New()
	x := NewSourceKeyXID(g, 0x112233)

	buf := x.MarshalSourceKey()
	require.Len(t, buf, 22)

	got, err := UnmarshalSourceKey(buf)
	require.NoError(t, err)
	require.True(t, x.Equal(got))
}

func TestGenericXIDRoundTrip(t *testing.T) {
	g := uuid.New()
	x := XID{GUID: g, Counter: 42, CounterLen: 3}

	buf := x.MarshalGeneric()
	require.Len(t, buf, 19)

	got, err := UnmarshalGeneric(buf)
	require.NoError(t, err)
	require.True(t, x.Equal(got))
}

func TestAllocatorBatching(t *testing.T) {
	r := &fakeReserver{}
	a := NewChangeNumberAllocator(r, elog.Logger{})

	seen := map[uint64]bool{}
	for i := 0; i < 3000; i++ {
		v, err := a.Allocate(context.Background())
		require.NoError(t, err)
		require.False(t, seen[v], "cn reused: %d", v)
		seen[v] = true
	}
	require.GreaterOrEqual(t, r.calls, 3)
}

type fakeReserver struct {
	mu    sync.Mutex
	next  uint64
	calls int
}

func (f *fakeReserver) ReserveRange(_ context.Context, isSystem bool, n uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	begin := f.next
	f.next += n
	return begin, nil
}
