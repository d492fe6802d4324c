package ics

import (
	"context"
	"database/sql"

	"github.com/foxcpp/exmdb/internal/exterrors"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/metrics"
	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
)

// HeaderQuartet is the exactly-four header propvals every contents/hierarchy
// upload carries (spec §4.5).
type HeaderQuartet struct {
	SourceKey             []byte
	LastModificationTime  propval.TaggedValue
	ChangeKey             propval.TaggedValue
	PredecessorChangeList []byte
}

func (h HeaderQuartet) values() []propval.TaggedValue {
	return []propval.TaggedValue{
		h.LastModificationTime,
		h.ChangeKey,
		{Tag: propval.MakeTag(uint16(propval.PidTagPredecessorChangeList), propval.PtBinary), Bin: h.PredecessorChangeList},
	}
}

// ImportFlagFailOnConflict mirrors the upload's conflict-handling switch
// (spec §4.5 "CONFLICT under FAIL_ON_CONFLICT -> return conflict").
const ImportFlagFailOnConflict uint32 = 0x1

func resolvePCLCompare(db *storedb.DB, existingProps *propval.Bag, incoming []byte) (propval.CompareResult, propval.PCL, error) {
	incomingPCL, err := propval.ParsePCL(incoming)
	if err != nil {
		return 0, propval.PCL{}, exterrors.New(exterrors.CodeInvalidParam, "malformed predecessor change list")
	}
	var existingPCL propval.PCL
	if v, ok := existingProps.GetTag(propval.MakeTag(uint16(propval.PidTagPredecessorChangeList), propval.PtBinary)); ok {
		existingPCL, _ = propval.ParsePCL(v.Bin)
	}
	return propval.Compare(existingPCL, incomingPCL), incomingPCL, nil
}

// ContentsUploadParams is the input to ContentsUpload.
type ContentsUploadParams struct {
	Folder       ids.EID
	ImportFlags  uint32
	Header       HeaderQuartet
	MessageProps []propval.TaggedValue
}

// ContentsUpload implements the contents-upload half of spec §4.5: decode
// SOURCE_KEY, verify store GUID, resolve (or create) the MID, run PCL
// compare, and accept the header propvals onto the message row. Returns the
// MID for the caller to open as a writable message instance.
func ContentsUpload(ctx context.Context, db *storedb.DB, p ContentsUploadParams) (ids.EID, error) {
	xid, err := ids.UnmarshalSourceKey(p.Header.SourceKey)
	if err != nil {
		return 0, exterrors.New(exterrors.CodeInvalidParam, "malformed source key")
	}

	storeGUID, err := db.MailboxGUID(ctx)
	if err != nil {
		return 0, err
	}
	if xid.GUID != storeGUID {
		return 0, exterrors.New(exterrors.CodeSyncIgnore, "source key GUID does not belong to this store")
	}

	mid := ids.MakeEID(ids.ReplicaLocal, xid.Counter)
	_, getErr := db.GetMessage(ctx, mid)
	isNew := getErr != nil

	if !isNew {
		existingProps, err := db.MessageProps(ctx, mid)
		if err != nil {
			return 0, err
		}
		cmp, _, err := resolvePCLCompare(db, existingProps, p.Header.PredecessorChangeList)
		if err != nil {
			return 0, err
		}
		switch cmp {
		case propval.CmpInclude, propval.CmpEqual:
			return mid, exterrors.New(exterrors.CodeSyncIgnore, "no new changes in uploaded predecessor change list")
		case propval.CmpConflict:
			if p.ImportFlags&ImportFlagFailOnConflict != 0 {
				return 0, exterrors.New(exterrors.CodeSyncConflict, "predecessor change list diverged")
			}
		}
	} else {
		if _, err := db.CreateMessage(ctx, storedb.CreateMessageParams{ID: mid, ParentFID: p.Folder}); err != nil {
			return 0, err
		}
	}

	vals := append(append([]propval.TaggedValue{}, p.Header.values()...), p.MessageProps...)
	err = db.Tx(ctx, func(tx *sql.Tx) error {
		if !isNew {
			if _, err := db.TouchMessage(ctx, tx, mid); err != nil {
				return err
			}
		}
		return db.SetMessageProps(ctx, tx, mid, vals)
	})
	if err != nil {
		return 0, err
	}
	metrics.ICSUploadedChanges.WithLabelValues("contents").Inc()
	return mid, nil
}

// HierarchyUploadParams is the input to HierarchyUpload.
type HierarchyUploadParams struct {
	ParentSourceKey []byte
	Header          HeaderQuartet
	DisplayName     string
	Username        string
	IsPublic        bool
}

// HierarchyUpload implements the hierarchy-upload half of spec §4.5: resolve
// the parent, and either create a fresh subfolder (requires
// RightCreateSubfolder) or PCL-compare against an existing one, enforce
// RightOwner, and move it if the parent changed (rejecting public-store
// moves and moves of well-known folders).
func HierarchyUpload(ctx context.Context, db *storedb.DB, p HierarchyUploadParams) (ids.EID, error) {
	parentXID, err := ids.UnmarshalSourceKey(p.ParentSourceKey)
	if err != nil {
		return 0, exterrors.New(exterrors.CodeInvalidParam, "malformed parent source key")
	}
	storeGUID, err := db.MailboxGUID(ctx)
	if err != nil {
		return 0, err
	}
	if parentXID.GUID != storeGUID {
		return 0, exterrors.New(exterrors.CodeSyncIgnore, "parent source key GUID does not belong to this store")
	}
	parent := ids.MakeEID(ids.ReplicaLocal, parentXID.Counter)

	xid, err := ids.UnmarshalSourceKey(p.Header.SourceKey)
	if err != nil {
		return 0, exterrors.New(exterrors.CodeInvalidParam, "malformed source key")
	}
	if xid.GUID != storeGUID {
		return 0, exterrors.New(exterrors.CodeSyncIgnore, "source key GUID does not belong to this store")
	}
	folder := ids.MakeEID(ids.ReplicaLocal, xid.Counter)

	existing, getErr := db.GetFolder(ctx, folder)
	if getErr != nil {
		rights, err := db.EffectiveRights(ctx, parent, p.Username)
		if err != nil {
			return 0, err
		}
		if rights&(storedb.RightCreateSubfolder|storedb.RightOwner) == 0 {
			return 0, exterrors.New(exterrors.CodeAccessDenied, "missing create-subfolder right on parent")
		}
		if _, err := db.CreateFolder(ctx, parent, storedb.FolderGeneric); err != nil {
			return 0, err
		}
		vals := append(append([]propval.TaggedValue{}, p.Header.values()...),
			propval.TaggedValue{Tag: propval.MakeTag(uint16(propval.PidTagDisplayName), propval.PtUnicode), Str: p.DisplayName})
		if _, err := db.SetFolderProps(ctx, folder, vals); err != nil {
			return 0, err
		}
		metrics.ICSUploadedChanges.WithLabelValues("hierarchy").Inc()
		return folder, nil
	}

	rights, err := db.EffectiveRights(ctx, folder, p.Username)
	if err != nil {
		return 0, err
	}
	if rights&storedb.RightOwner == 0 {
		return 0, exterrors.New(exterrors.CodeAccessDenied, "missing owner right on folder")
	}

	existingProps, err := db.FolderProps(ctx, folder)
	if err != nil {
		return 0, err
	}
	cmp, _, err := resolvePCLCompare(db, existingProps, p.Header.PredecessorChangeList)
	if err != nil {
		return 0, err
	}
	if cmp == propval.CmpInclude || cmp == propval.CmpEqual {
		return folder, exterrors.New(exterrors.CodeSyncIgnore, "no new changes in uploaded predecessor change list")
	}

	if existing.ParentID != parent {
		if p.IsPublic {
			return 0, exterrors.New(exterrors.CodeNotSupported, "public-store folder moves are not supported")
		}
		if isWellKnownFolder(folder) {
			return 0, exterrors.New(exterrors.CodeAccessDenied, "cannot move a well-known folder")
		}
		if err := db.MoveFolder(ctx, folder, parent); err != nil {
			return 0, err
		}
	}

	vals := append(append([]propval.TaggedValue{}, p.Header.values()...),
		propval.TaggedValue{Tag: propval.MakeTag(uint16(propval.PidTagDisplayName), propval.PtUnicode), Str: p.DisplayName})
	if _, err := db.SetFolderProps(ctx, folder, vals); err != nil {
		return 0, err
	}
	metrics.ICSUploadedChanges.WithLabelValues("hierarchy").Inc()
	return folder, nil
}

func isWellKnownFolder(id ids.EID) bool {
	if id == storedb.FolderRoot {
		return true
	}
	for _, f := range privateWellKnownFolders {
		if f == id {
			return true
		}
	}
	return false
}

var privateWellKnownFolders = []ids.EID{
	storedb.FolderDeferredAction, storedb.FolderSpoolerQueue, storedb.FolderIPMSubtree,
	storedb.FolderInbox, storedb.FolderOutbox, storedb.FolderSent, storedb.FolderDeletedItems,
	storedb.FolderCommonViews, storedb.FolderSchedule, storedb.FolderFinder, storedb.FolderViews,
	storedb.FolderShortcuts, storedb.FolderDrafts, storedb.FolderContacts, storedb.FolderCalendar,
	storedb.FolderJournal, storedb.FolderNotes, storedb.FolderTasks, storedb.FolderJunk,
	storedb.FolderConflicts, storedb.FolderSyncIssues, storedb.FolderLocalFailures,
	storedb.FolderServerFailures, storedb.FolderConversationActionSettings, storedb.FolderIMContactList,
	storedb.FolderQuickContacts, storedb.FolderLocalFreebusy,
}
