package ics

import (
	"context"
	"time"

	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/metrics"
	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
	"github.com/foxcpp/exmdb/internal/wire"
)

// strippedHierarchyProps are proptags the client cannot consume from a
// hierarchy download row (spec §4.5: "Strip proptags the client cannot
// consume").
var strippedHierarchyProps = map[uint16]bool{
	0x6707: true, // PROP_TAG_FOLDERPATHNAME
	0x66B9: true, // local-only message/folder counters
	0x66BA: true,
	0x6648: true, // hierarchy change number (internal bookkeeping only)
}

// HierarchyDownloadParams configures a subtree enumeration (spec §4.5
// "Hierarchy download").
type HierarchyDownloadParams struct {
	Root     ids.EID
	Username string
	IsPublic bool
}

// HierarchyFolderRow is one emitted folder, with the client-unconsumable
// proptags already stripped.
type HierarchyFolderRow struct {
	FolderID ids.EID
	ParentID ids.EID
	ChangeNum uint64
	Props    *propval.Bag
}

// HierarchyDownload recursively enumerates folders under root, filtering by
// visibility/read-any/owner permission and injecting canonical entryids for
// the private-store well-known folders (spec §4.5).
func HierarchyDownload(ctx context.Context, db *storedb.DB, p HierarchyDownloadParams) ([]HierarchyFolderRow, error) {
	start := time.Now()
	defer func() {
		metrics.ICSDownloadDuration.WithLabelValues("hierarchy").Observe(time.Since(start).Seconds())
	}()

	var out []HierarchyFolderRow
	var walk func(ids.EID) error
	walk = func(id ids.EID) error {
		rights, err := db.EffectiveRights(ctx, id, p.Username)
		if err != nil {
			return err
		}
		if rights&(storedb.RightVisible|storedb.RightReadAny|storedb.RightOwner) == 0 {
			return nil
		}

		f, err := db.GetFolder(ctx, id)
		if err != nil {
			return err
		}
		props, err := db.FolderProps(ctx, id)
		if err != nil {
			return err
		}
		stripped := propval.NewBag()
		props.Each(func(v propval.TaggedValue) {
			if strippedHierarchyProps[v.Tag.PropID()] {
				return
			}
			stripped.Set(v)
		})
		injectWellKnownEntryIDs(id, stripped, p.IsPublic)

		out = append(out, HierarchyFolderRow{FolderID: id, ParentID: f.ParentID, ChangeNum: f.ChangeNum, Props: stripped})

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
	if err := walk(p.Root); err != nil {
		return nil, err
	}
	return out, nil
}

// PidTagEntryID is the generic entry-id property id; canonical private-store
// well-known folders get a synthesized value injected by the hierarchy
// download so legacy MAPI clients (which locate special folders by entryid,
// not just by id) can find them (spec §4.5).
const pidTagEntryID = 0x0FFF

// injectWellKnownEntryIDs synthesizes PR_ENTRYID for the folders spec §4.5
// names (drafts, contacts, calendar, journal, notes, tasks, conflicts,
// sync-issues, local/server failures, junk) plus the conversation-actions
// persistdata blob and free-busy entryid. The entryid's wire form is simply
// the folder's EID here - this engine has no long-term-id/provider-GUID
// indirection layer above storedb, so the canonical constant IS the stable
// identifier.
func injectWellKnownEntryIDs(id ids.EID, props *propval.Bag, isPublic bool) {
	if isPublic {
		return
	}
	wellKnown := map[ids.EID]bool{
		storedb.FolderDrafts: true, storedb.FolderContacts: true, storedb.FolderCalendar: true,
		storedb.FolderJournal: true, storedb.FolderNotes: true, storedb.FolderTasks: true,
		storedb.FolderConflicts: true, storedb.FolderSyncIssues: true,
		storedb.FolderLocalFailures: true, storedb.FolderServerFailures: true,
		storedb.FolderJunk: true, storedb.FolderConversationActionSettings: true,
		storedb.FolderLocalFreebusy: true,
	}
	if !wellKnown[id] {
		return
	}
	enc := id.MarshalWire()
	props.Set(propval.TaggedValue{Tag: propval.MakeTag(pidTagEntryID, propval.PtBinary), Bin: enc[:]})
}

// HierarchyDeletions computes the IDSETDELETED meta-tag payload: folder ids
// the client's given set names that are no longer reachable from root
// (spec §4.5 "Serialize deletions via an IDSET of removed folder ids").
func HierarchyDeletions(ctx context.Context, db *storedb.DB, root ids.EID, given *wire.IDSet) (*wire.IDSet, error) {
	rows, err := HierarchyDownload(ctx, db, HierarchyDownloadParams{Root: root})
	if err != nil {
		return nil, err
	}
	present := make(map[ids.EID]bool, len(rows))
	for _, r := range rows {
		present[r.FolderID] = true
	}
	deleted := wire.NewIDSet()
	given.Each(func(v uint64) {
		if !present[ids.EID(v)] {
			deleted.Add(v)
		}
	})
	return deleted, nil
}
