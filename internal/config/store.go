package config

import (
	"fmt"
	"time"

	cfg "github.com/foxcpp/exmdb/config"
)

// StoreConfig holds the mailbox-store options a db-handle cache needs to
// open and maintain a store (SPEC_FULL.md "Ambient stack... Configuration":
// db path, batch threshold, quota defaults, LRU TTL), parsed the same way
// maddy.ReadGlobals parses the top-level config.Map block.
type StoreConfig struct {
	// DataDir is the directory holding one SQLite file per mailbox store.
	DataDir string

	// BatchThreshold is the number of pending property/content writes a
	// transaction buffers before it is flushed (spec §4.3 instance buffer).
	BatchThreshold int

	// QuotaWarn and QuotaHardLimit are the default per-store quota
	// thresholds (bytes) applied when a store has no explicit override.
	QuotaWarn      int64
	QuotaHardLimit int64

	// HandleTTL is how long an idle db handle is kept open in the cache
	// before being evicted (spec §9 "maintain a... cache of open store
	// handles... evicted after a TTL of inactivity").
	HandleTTL time.Duration

	// MaxOpenHandles bounds the number of concurrently open store handles;
	// 0 means unlimited (internal/limits/limiters.Semaphore no-op case).
	MaxOpenHandles int
}

// ParseStoreConfig binds a "store { ... }" directive block to a
// StoreConfig, following the Map.Custom/Map.Process idiom used by
// maddy.ReadGlobals.
func ParseStoreConfig(block cfg.Node) (StoreConfig, error) {
	sc := StoreConfig{}

	m := cfg.NewMap(nil, &block)
	m.String("data_dir", false, true, "", &sc.DataDir)
	m.Int("batch_threshold", false, false, 64, &sc.BatchThreshold)
	m.Int64("quota_warn", false, false, 0, &sc.QuotaWarn)
	m.Int64("quota_hard_limit", false, false, 0, &sc.QuotaHardLimit)
	m.Duration("handle_ttl", false, false, 5*time.Minute, &sc.HandleTTL)
	m.Int("max_open_handles", false, false, 0, &sc.MaxOpenHandles)
	m.AllowUnknown()

	if _, err := m.Process(); err != nil {
		return StoreConfig{}, fmt.Errorf("config: store block: %w", err)
	}
	return sc, nil
}
