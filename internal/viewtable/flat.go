package viewtable

import (
	"context"
	"time"

	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/metrics"
	"github.com/foxcpp/exmdb/internal/storedb"
)

// HierarchyTable is the simpler "single flat row per folder" materialization
// spec §4.6 names alongside the content table. It does not support
// categorization or MVI, only a permission-filtered subtree walk.
type HierarchyTable struct {
	Folders []ids.EID
}

// BuildHierarchyTable recursively lists folder ids under root, keyed by
// folder id (spec §4.6 "Hierarchy ... tables are simpler single-flat-row
// materializations keyed by folder id").
func BuildHierarchyTable(ctx context.Context, db *storedb.DB, root ids.EID, username string) (*HierarchyTable, error) {
	start := time.Now()
	defer func() {
		metrics.ViewTableRebuildDuration.WithLabelValues("hierarchy").Observe(time.Since(start).Seconds())
	}()

	t := &HierarchyTable{}
	var walk func(ids.EID) error
	walk = func(id ids.EID) error {
		rights, err := db.EffectiveRights(ctx, id, username)
		if err != nil {
			return err
		}
		if rights&(storedb.RightVisible|storedb.RightReadAny|storedb.RightOwner) == 0 {
			return nil
		}
		t.Folders = append(t.Folders, id)
		children, err := db.Children(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return t, nil
}

// PermissionTable is a flat materialization keyed by member id.
type PermissionTable struct {
	Rows []storedb.Permission
}

func BuildPermissionTable(ctx context.Context, db *storedb.DB, folder ids.EID) (*PermissionTable, error) {
	rows, err := db.Permissions(ctx, folder)
	if err != nil {
		return nil, err
	}
	return &PermissionTable{Rows: rows}, nil
}

// RuleTable is a flat materialization keyed by rule id.
type RuleTable struct {
	Rows []storedb.RuleRow
}

func BuildRuleTable(ctx context.Context, db *storedb.DB, folder ids.EID) (*RuleTable, error) {
	rows, err := db.Rules(ctx, folder)
	if err != nil {
		return nil, err
	}
	return &RuleTable{Rows: rows}, nil
}
