package ics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foxcpp/exmdb/internal/elog"
	"github.com/foxcpp/exmdb/internal/ics"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
	"github.com/foxcpp/exmdb/internal/wire"
)

func openTestDB(t *testing.T) *storedb.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := storedb.Open(context.Background(), dir, elog.Logger{Out: elog.DefaultLogger.Out, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Provision(context.Background()))
	return db
}

func TestContentsDownloadChgVsGiven(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	cn, err := db.CreateMessage(ctx, storedb.CreateMessageParams{ID: mid, ParentFID: storedb.FolderInbox})
	require.NoError(t, err)

	given := wire.NewIDSet()
	seen := wire.NewIDSet()
	res, err := ics.ContentsDownload(ctx, db, ics.ContentsDownloadParams{
		Folder: storedb.FolderInbox,
		Given:  given, Seen: seen, SeenFAI: wire.NewIDSet(), Read: wire.NewIDSet(),
		SyncFlags: ics.SyncNormal,
	})
	require.NoError(t, err)
	require.Contains(t, res.ChgMessages, mid)
	require.Equal(t, cn, res.LastChangenum)

	// Second pass with the message already given and seen: no longer "chg".
	given.Add(uint64(mid))
	seen.Add(cn)
	res2, err := ics.ContentsDownload(ctx, db, ics.ContentsDownloadParams{
		Folder: storedb.FolderInbox,
		Given:  given, Seen: seen, SeenFAI: wire.NewIDSet(), Read: wire.NewIDSet(),
		SyncFlags: ics.SyncNormal,
	})
	require.NoError(t, err)
	require.NotContains(t, res2.ChgMessages, mid)
	require.Contains(t, res2.GivenMessages, mid)
}

func TestContentsDownloadDeletedVsNolonger(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	keep, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	_, err = db.CreateMessage(ctx, storedb.CreateMessageParams{ID: keep, ParentFID: storedb.FolderInbox})
	require.NoError(t, err)

	ghost := keep + 1000 // never created: simulates a hard-deleted message
	given := wire.NewIDSet()
	given.Add(uint64(keep))
	given.Add(uint64(ghost))

	res, err := ics.ContentsDownload(ctx, db, ics.ContentsDownloadParams{
		Folder: storedb.FolderInbox,
		Given:  given, Seen: wire.NewIDSet(), SeenFAI: wire.NewIDSet(), Read: wire.NewIDSet(),
		SyncFlags: ics.SyncNormal,
	})
	require.NoError(t, err)
	require.Contains(t, res.DeletedMessages, ghost)
	require.NotContains(t, res.NolongerMessages, ghost)
}

func TestHierarchyDownloadStripsInternalProps(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	sub, err := db.CreateFolder(ctx, storedb.FolderInbox, storedb.FolderGeneric)
	require.NoError(t, err)
	_, err = db.SetFolderProps(ctx, sub, []propval.TaggedValue{
		{Tag: propval.MakeTag(0x6707, propval.PtUnicode), Str: "should not leak"},
		{Tag: propval.MakeTag(uint16(propval.PidTagDisplayName), propval.PtUnicode), Str: "Sub"},
	})
	require.NoError(t, err)

	rows, err := ics.HierarchyDownload(ctx, db, ics.HierarchyDownloadParams{Root: storedb.FolderInbox})
	require.NoError(t, err)

	var found bool
	for _, r := range rows {
		if r.FolderID != sub {
			continue
		}
		found = true
		_, hasStripped := r.Props.Get(0x6707)
		require.False(t, hasStripped)
		name, ok := r.Props.Get(uint16(propval.PidTagDisplayName))
		require.True(t, ok)
		require.Equal(t, "Sub", name.Str)
	}
	require.True(t, found)
}

func TestHierarchyUploadCreateAndMove(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SetPermission(ctx, storedb.FolderInbox, storedb.Permission{
		MemberID: 1, Username: "alice", Rights: storedb.RightCreateSubfolder | storedb.RightOwner,
	}))
	require.NoError(t, db.SetPermission(ctx, storedb.FolderDrafts, storedb.Permission{
		MemberID: 1, Username: "alice", Rights: storedb.RightCreateSubfolder | storedb.RightOwner,
	}))

	storeGUID, err := db.MailboxGUID(ctx)
	require.NoError(t, err)

	newFID, err := db.NewMessageID(ctx) // reuse allocator: any fresh 64-bit id works as a folder id placeholder
	require.NoError(t, err)
	xid := ids.XID{GUID: storeGUID, Counter: uint64(newFID), CounterLen: 6}

	folder, err := ics.HierarchyUpload(ctx, db, ics.HierarchyUploadParams{
		ParentSourceKey: ids.XID{GUID: storeGUID, Counter: uint64(storedb.FolderInbox), CounterLen: 6}.MarshalSourceKey(),
		Header: ics.HeaderQuartet{
			SourceKey:             xid.MarshalSourceKey(),
			LastModificationTime:  propval.TaggedValue{Tag: propval.MakeTag(uint16(propval.PidTagLastModificationTime), propval.PtUnicode)},
			ChangeKey:             propval.TaggedValue{Tag: propval.MakeTag(uint16(propval.PidTagChangeKey), propval.PtBinary), Bin: []byte{1, 2, 3}},
			PredecessorChangeList: propval.PCL{}.Serialize(),
		},
		DisplayName: "New Folder",
		Username:    "alice",
	})
	require.NoError(t, err)

	f, err := db.GetFolder(ctx, folder)
	require.NoError(t, err)
	require.Equal(t, storedb.FolderInbox, f.ParentID)

	// Re-upload with the parent changed to Drafts moves it.
	moved, err := ics.HierarchyUpload(ctx, db, ics.HierarchyUploadParams{
		ParentSourceKey: ids.XID{GUID: storeGUID, Counter: uint64(storedb.FolderDrafts), CounterLen: 6}.MarshalSourceKey(),
		Header: ics.HeaderQuartet{
			SourceKey:             xid.MarshalSourceKey(),
			LastModificationTime:  propval.TaggedValue{Tag: propval.MakeTag(uint16(propval.PidTagLastModificationTime), propval.PtUnicode)},
			ChangeKey:             propval.TaggedValue{Tag: propval.MakeTag(uint16(propval.PidTagChangeKey), propval.PtBinary), Bin: []byte{1, 2, 3, 4}},
			PredecessorChangeList: propval.PCL{}.Serialize(),
		},
		DisplayName: "New Folder",
		Username:    "alice",
	})
	require.NoError(t, err)
	require.Equal(t, folder, moved)

	f2, err := db.GetFolder(ctx, folder)
	require.NoError(t, err)
	require.Equal(t, storedb.FolderDrafts, f2.ParentID)
}

func TestStateStreamRoundTrip(t *testing.T) {
	set := wire.NewIDSet()
	set.AddRange(10, 20)
	set.Add(100)

	chunks := ics.EncodeStateStream(set, 3)
	require.Greater(t, len(chunks), 1)

	stream, err := ics.BeginStateStream(ics.StateIDSetGiven, false)
	require.NoError(t, err)
	for _, c := range chunks {
		require.NoError(t, stream.ContinueStateStream(c))
	}
	got, err := stream.EndStateStream()
	require.NoError(t, err)
	require.True(t, got.Contains(15))
	require.True(t, got.Contains(100))
	require.False(t, got.Contains(20))
}

func TestStateStreamRejectsContentsOnlyOnHierarchy(t *testing.T) {
	_, err := ics.BeginStateStream(ics.StateCNSetRead, true)
	require.Error(t, err)
}
