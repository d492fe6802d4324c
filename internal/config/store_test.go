package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfg "github.com/foxcpp/exmdb/config"
	"github.com/foxcpp/exmdb/internal/config"
)

func parseBlock(t *testing.T, src string) cfg.Node {
	t.Helper()
	nodes, err := cfg.Read(strings.NewReader(src), "test")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	return nodes[0]
}

func TestParseStoreConfigDefaults(t *testing.T) {
	block := parseBlock(t, "store {\n  data_dir /var/lib/exmdb\n}\n")
	sc, err := config.ParseStoreConfig(block)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/exmdb", sc.DataDir)
	require.Equal(t, 64, sc.BatchThreshold)
	require.Equal(t, 5*time.Minute, sc.HandleTTL)
	require.Equal(t, 0, sc.MaxOpenHandles)
}

func TestParseStoreConfigOverrides(t *testing.T) {
	block := parseBlock(t, `store {
  data_dir /srv/exmdb
  batch_threshold 256
  quota_warn 900000
  quota_hard_limit 1000000
  handle_ttl 30s
  max_open_handles 16
}
`)
	sc, err := config.ParseStoreConfig(block)
	require.NoError(t, err)
	require.Equal(t, "/srv/exmdb", sc.DataDir)
	require.Equal(t, 256, sc.BatchThreshold)
	require.EqualValues(t, 900000, sc.QuotaWarn)
	require.EqualValues(t, 1000000, sc.QuotaHardLimit)
	require.Equal(t, 30*time.Second, sc.HandleTTL)
	require.Equal(t, 16, sc.MaxOpenHandles)
}

func TestParseStoreConfigRequiresDataDir(t *testing.T) {
	block := parseBlock(t, "store {\n  batch_threshold 10\n}\n")
	_, err := config.ParseStoreConfig(block)
	require.Error(t, err)
}
