package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEIDRoundTrip(t *testing.T) {
	e := MakeEID(ReplicaLocal, 0xABCDEF)
	require.Equal(t, ReplicaLocal, e.ReplID())
	require.Equal(t, uint64(0xABCDEF), e.GCValue())

	wire := e.MarshalWire()
	got, ok := UnmarshalEID(wire[:])
	require.True(t, ok)
	require.Equal(t, e, got)
}

func TestEIDWireLayout(t *testing.T) {
	e := MakeEID(2, 1)
	wire := e.MarshalWire()
	require.Equal(t, byte(0), wire[0])
	require.Equal(t, byte(2), wire[1])
	require.Equal(t, byte(1), wire[7])
}
