package exmdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/foxcpp/exmdb/exmdb"
	"github.com/foxcpp/exmdb/internal/config"
	"github.com/foxcpp/exmdb/internal/elog"
)

func testLogger() elog.Logger {
	return elog.Logger{Out: elog.DefaultLogger.Out, Name: "test"}
}

func TestCacheGetReturnsSameHandle(t *testing.T) {
	dir := t.TempDir()
	c := exmdb.NewCache(config.StoreConfig{HandleTTL: time.Minute}, testLogger())
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	ctx := context.Background()
	h1, err := c.Get(ctx, dir)
	require.NoError(t, err)
	h2, err := c.Get(ctx, dir)
	require.NoError(t, err)
	require.Same(t, h1, h2)
}

func TestCacheEvict(t *testing.T) {
	dir := t.TempDir()
	c := exmdb.NewCache(config.StoreConfig{HandleTTL: time.Minute}, testLogger())
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	ctx := context.Background()
	h1, err := c.Get(ctx, dir)
	require.NoError(t, err)

	require.NoError(t, c.Evict(dir))

	h2, err := c.Get(ctx, dir)
	require.NoError(t, err)
	require.NotSame(t, h1, h2)
}

func TestCacheDistinctDirsDistinctHandles(t *testing.T) {
	c := exmdb.NewCache(config.StoreConfig{HandleTTL: time.Minute}, testLogger())
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	ctx := context.Background()
	h1, err := c.Get(ctx, t.TempDir())
	require.NoError(t, err)
	h2, err := c.Get(ctx, t.TempDir())
	require.NoError(t, err)
	require.NotSame(t, h1, h2)
}
