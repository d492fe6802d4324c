package propval

import (
	"testing"

	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPCLRoundTrip(t *testing.T) {
	g := uuid.New()
	x := ids.NewSourceKeyXID(g, 1)

	var p PCL
	p = p.Append(x)

	out := p.Serialize()
	parsed, err := ParsePCL(out)
	require.NoError(t, err)
	require.Equal(t, p.Serialize(), parsed.Serialize())
}

func TestPCLAppendIdempotent(t *testing.T) {
	g := uuid.New()
	x := ids.NewSourceKeyXID(g, 5)

	var p PCL
	once := p.Append(x)
	twice := once.Append(x)

	require.Equal(t, once.Serialize(), twice.Serialize())
	require.Equal(t, CmpEqual, Compare(once, twice))
}

func TestPCLCompareIncluded(t *testing.T) {
	g := uuid.New()
	x := ids.NewSourceKeyXID(g, 1)

	var p PCL
	appended := p.Append(x)

	require.Equal(t, CmpIncluded, Compare(p, appended))
	require.Equal(t, CmpInclude, Compare(appended, p))
}

func TestPCLConflict(t *testing.T) {
	g1, g2 := uuid.New(), uuid.New()
	var p PCL
	p = p.Append(ids.NewSourceKeyXID(g1, 1))

	other := PCL{}
	other = other.Append(ids.NewSourceKeyXID(g2, 1))

	require.Equal(t, CmpConflict, Compare(p, other))
}

func TestPCLMergeKeepsHighestCounter(t *testing.T) {
	g := uuid.New()
	var p PCL
	p = p.Append(ids.NewSourceKeyXID(g, 1))
	p = p.Append(ids.NewSourceKeyXID(g, 2))

	require.Equal(t, 1, p.Len())
}
