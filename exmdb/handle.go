// Package exmdb wires the property model, identifier service, storage
// layer, instance buffer, ICS engine, view-table engine, and rule engine
// into the single long-lived object an RPC dispatch layer actually holds:
// one DB handle per mailbox directory (spec §2 "the core is a library that
// holds, for each active mailbox directory, one DB handle").
package exmdb

import (
	"context"
	"sync"

	"github.com/foxcpp/exmdb/internal/elog"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/instance"
	"github.com/foxcpp/exmdb/internal/metrics"
	"github.com/foxcpp/exmdb/internal/rules"
	"github.com/foxcpp/exmdb/internal/storedb"
	"github.com/foxcpp/exmdb/internal/viewtable"
)

// Handle is one mailbox's open DB handle: the primary storedb connection,
// the ephemeral tables state store, the instance buffer, and the open
// view-table registry (spec §2, §9 "the DB handle owns the primary
// connection, tables connection, instance list, and table list").
type Handle struct {
	Dir      string
	DB       *storedb.DB
	Instance *instance.Buffer
	State    *viewtable.StateStore

	Collab rules.Collaborators

	mu        sync.Mutex
	nextTable uint32
	tables    map[uint32]interface{}
}

func openHandle(ctx context.Context, dir string, log elog.Logger) (*Handle, error) {
	db, err := storedb.Open(ctx, dir, log)
	if err != nil {
		return nil, err
	}
	if err := db.Provision(ctx); err != nil {
		db.Close()
		return nil, err
	}
	state, err := viewtable.OpenStateStore(ctx, dir)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Handle{
		Dir:      dir,
		DB:       db,
		Instance: instance.NewBuffer(db, log),
		State:    state,
		tables:   make(map[uint32]interface{}),
	}, nil
}

func (h *Handle) close() error {
	h.mu.Lock()
	metrics.ViewTableActiveTables.Sub(float64(len(h.tables)))
	h.tables = nil
	h.mu.Unlock()

	stateErr := h.State.Close()
	dbErr := h.DB.Close()
	if dbErr != nil {
		return dbErr
	}
	return stateErr
}

// AddTable registers an open view-table (content/hierarchy/permission/rule)
// under a fresh table id, as the per-connection table list spec §2/§9
// describe; it is released on UnloadTable or handle eviction.
func (h *Handle) AddTable(t interface{}) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextTable++
	id := h.nextTable
	h.tables[id] = t
	metrics.ViewTableActiveTables.Inc()
	return id
}

// Table looks up a previously registered view-table by id.
func (h *Handle) Table(id uint32) (interface{}, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tables[id]
	return t, ok
}

// UnloadTable releases a view-table id (spec §9 "Instances and tables are
// released on connection close or on explicit unload").
func (h *Handle) UnloadTable(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tables[id]; ok {
		delete(h.tables, id)
		metrics.ViewTableActiveTables.Dec()
	}
}

// DeliverAndEvaluateRules runs the rule engine on a just-delivered or
// just-moved message, wiring this handle's DB and collaborators (spec
// §4.7).
func (h *Handle) DeliverAndEvaluateRules(ctx context.Context, folder, mid ids.EID, deliver rules.DeliveryContext) (rules.Result, error) {
	deliver.Collab = h.Collab
	return rules.Evaluate(ctx, h.DB, folder, mid, deliver)
}
