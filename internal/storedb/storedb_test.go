package storedb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/foxcpp/exmdb/internal/elog"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(context.Background(), dir, elog.Logger{Out: elog.DefaultLogger.Out, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestProvisionIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Provision(ctx))
	inbox, err := db.GetFolder(ctx, FolderInbox)
	require.NoError(t, err)
	require.Equal(t, FolderIPMSubtree, inbox.ParentID)

	require.NoError(t, db.Provision(ctx))
	children, err := db.Children(ctx, FolderIPMSubtree)
	require.NoError(t, err)
	require.Len(t, children, len(privateWellKnownUnderSubtree))
}

func TestFolderCreateMoveCycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Provision(ctx))

	sub1, err := db.CreateFolder(ctx, FolderInbox, FolderGeneric)
	require.NoError(t, err)
	sub2, err := db.CreateFolder(ctx, sub1, FolderGeneric)
	require.NoError(t, err)

	// Moving sub1 under its own descendant sub2 would create a cycle.
	err = db.MoveFolder(ctx, sub1, sub2)
	require.Error(t, err)

	require.NoError(t, db.MoveFolder(ctx, sub2, FolderInbox))
	f, err := db.GetFolder(ctx, sub2)
	require.NoError(t, err)
	require.Equal(t, FolderInbox, f.ParentID)
}

func TestFolderWellKnownCannotMove(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Provision(ctx))

	sub, err := db.CreateFolder(ctx, FolderInbox, FolderGeneric)
	require.NoError(t, err)
	err = db.MoveFolder(ctx, FolderInbox, sub)
	require.Error(t, err)
}

func TestMessageCreateReadDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Provision(ctx))

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	cn, err := db.CreateMessage(ctx, CreateMessageParams{ID: mid, ParentFID: FolderInbox})
	require.NoError(t, err)
	require.NotZero(t, cn)

	m, err := db.GetMessage(ctx, mid)
	require.NoError(t, err)
	require.Equal(t, FolderInbox, m.ParentFID)
	require.False(t, m.IsDeleted)

	require.NoError(t, db.DeleteMessage(ctx, mid, false))
	_, err = db.GetMessage(ctx, mid)
	require.Error(t, err)
}

func TestMessagePropertiesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Provision(ctx))

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	_, err = db.CreateMessage(ctx, CreateMessageParams{ID: mid, ParentFID: FolderInbox})
	require.NoError(t, err)

	subjTag := propval.MakeTag(0x0037, propval.PtUnicode)
	err = db.Tx(ctx, func(tx *sql.Tx) error {
		return db.SetMessageProps(ctx, tx, mid, []propval.TaggedValue{
			{Tag: subjTag, Str: "hello world"},
		})
	})
	require.NoError(t, err)

	bag, err := db.MessageProps(ctx, mid)
	require.NoError(t, err)
	v, ok := bag.GetTag(subjTag)
	require.True(t, ok)
	require.Equal(t, "hello world", v.Str)
}

func TestMoveCopyMessage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Provision(ctx))

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	_, err = db.CreateMessage(ctx, CreateMessageParams{ID: mid, ParentFID: FolderInbox})
	require.NoError(t, err)

	dstMID, err := db.MoveCopyMessage(ctx, MoveCopyParams{
		SrcFolder: FolderInbox, DstFolder: FolderDrafts, IsOwner: true, IsMove: false, IsPublic: false,
	}, mid)
	require.NoError(t, err)
	require.NotEqual(t, mid, dstMID)

	// original still present (copy, not move)
	_, err = db.GetMessage(ctx, mid)
	require.NoError(t, err)

	dst, err := db.GetMessage(ctx, dstMID)
	require.NoError(t, err)
	require.Equal(t, FolderDrafts, dst.ParentFID)

	mvMID, err := db.MoveCopyMessage(ctx, MoveCopyParams{
		SrcFolder: FolderInbox, DstFolder: FolderDrafts, IsOwner: true, IsMove: true, IsPublic: false,
	}, mid)
	require.NoError(t, err)
	_, err = db.GetMessage(ctx, mvMID)
	require.NoError(t, err)
	_, err = db.GetMessage(ctx, mid)
	require.Error(t, err)
}

func TestCanMoveCopyPermissionMatrix(t *testing.T) {
	p := MoveCopyParams{IsMove: true}
	err := CanMoveCopy(p, 0, 0)
	require.Error(t, err)

	err = CanMoveCopy(p, 0, RightCreate)
	require.Error(t, err) // no ownership/delete rights on source

	err = CanMoveCopy(p, RightDeleteOwned, RightCreate)
	require.NoError(t, err)
}

func TestQuotaKilobyteLimit(t *testing.T) {
	bag := propval.NewBag()
	tag := propval.MakeTag(0x666A, propval.PtLong)
	bag.Set(propval.TaggedValue{Tag: tag, I32: 100}) // 100KB limit

	require.NoError(t, CheckQuota(bag, 1000, 0, QuotaDelivery))
	err := CheckQuota(bag, 200*1024, 0, QuotaDelivery)
	require.Error(t, err)
}

func TestReadStatePrivateVsPublic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Provision(ctx))

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	_, err = db.CreateMessage(ctx, CreateMessageParams{ID: mid, ParentFID: FolderInbox})
	require.NoError(t, err)

	_, err = db.SetReadState(ctx, mid, "", true, false)
	require.NoError(t, err)
	read, err := db.ReadState(ctx, mid, "", false)
	require.NoError(t, err)
	require.True(t, read)

	_, err = db.SetReadState(ctx, mid, "alice", true, true)
	require.NoError(t, err)
	read, err = db.ReadState(ctx, mid, "alice", true)
	require.NoError(t, err)
	require.True(t, read)
	read, err = db.ReadState(ctx, mid, "bob", true)
	require.NoError(t, err)
	require.False(t, read)
}

func TestPermissionsSyntheticMembers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Provision(ctx))

	require.NoError(t, db.SetPermission(ctx, FolderInbox, Permission{MemberID: MemberDefault, Username: "", Rights: RightReadAny}))
	rights, err := db.EffectiveRights(ctx, FolderInbox, "carol")
	require.NoError(t, err)
	require.Equal(t, RightReadAny, rights)

	require.NoError(t, db.SetPermission(ctx, FolderInbox, Permission{MemberID: 42, Username: "carol", Rights: RightOwner}))
	rights, err = db.EffectiveRights(ctx, FolderInbox, "carol")
	require.NoError(t, err)
	require.Equal(t, RightReadAny|RightOwner, rights)
}

func TestNamedPropertyAllocation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	g := uuid.New()
	id1, err := db.ResolveNamedProp(ctx, NamedPropKey{GUID: g, Kind: NamedPropByName, Name: "x-custom"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, int(id1), propidBase)

	id2, err := db.ResolveNamedProp(ctx, NamedPropKey{GUID: g, Kind: NamedPropByName, Name: "x-custom"})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	key, ok, err := db.LookupNamedProp(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x-custom", key.Name)
}

func TestReplicaIDAllocation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	g1 := uuid.New()
	id1, err := db.ReplicaIDFor(ctx, g1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, int(id1), 3)

	id1Again, err := db.ReplicaIDFor(ctx, g1)
	require.NoError(t, err)
	require.Equal(t, id1, id1Again)

	got, err := db.ReplicaGUID(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, g1, got)
}

func TestCidStoreTextAndBinaryBlobs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cid, err := db.PutTextBlob(ctx, 1252, []byte("hello"))
	require.NoError(t, err)
	cp, data, err := db.GetTextBlob(cid)
	require.NoError(t, err)
	require.Equal(t, uint32(1252), cp)
	require.Equal(t, []byte("hello"), data)

	bcid, err := db.PutBinaryBlob(ctx, []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	bdata, err := db.GetBinaryBlob(bcid)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, bdata)

	require.NoError(t, db.ReleaseBlob(ctx, bcid))
	swept, err := db.SweepOrphanBlobs(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, swept)
	_, err = db.GetBinaryBlob(bcid)
	require.Error(t, err)
}

func TestSearchFolderMembership(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Provision(ctx))

	sf, err := db.CreateFolder(ctx, FolderInbox, FolderSearch)
	require.NoError(t, err)

	err = db.SetSearchCriteria(ctx, sf, SearchFolderDef{Flags: SearchFlagStatic})
	require.NoError(t, err)

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	_, err = db.CreateMessage(ctx, CreateMessageParams{ID: mid, ParentFID: FolderInbox})
	require.NoError(t, err)

	require.NoError(t, db.AddSearchMember(ctx, sf, mid))
	members, err := db.SearchMembers(ctx, sf)
	require.NoError(t, err)
	require.Equal(t, []ids.EID{mid}, members)

	require.NoError(t, db.RemoveSearchMember(ctx, sf, mid))
	members, err = db.SearchMembers(ctx, sf)
	require.NoError(t, err)
	require.Empty(t, members)

	scope, err := db.SearchScopeFolders(ctx, []ids.EID{FolderIPMSubtree}, true)
	require.NoError(t, err)
	require.Contains(t, scope, FolderInbox)
}
