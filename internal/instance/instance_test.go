package instance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foxcpp/exmdb/internal/elog"
	"github.com/foxcpp/exmdb/internal/instance"
	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
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

func subjectTag() propval.Tag { return propval.MakeTag(0x0037, propval.PtUnicode) }

func TestNewMessageInstanceFlush(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	buf := instance.NewBuffer(db, elog.Logger{Out: elog.DefaultLogger.Out, Name: "test"})

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)

	inst, err := buf.LoadMessageInstance(ctx, storedb.FolderInbox, mid, true)
	require.NoError(t, err)

	err = buf.SetInstanceProperties(inst, []propval.TaggedValue{
		{Tag: subjectTag(), Str: "hello"},
	})
	require.NoError(t, err)

	flushed, err := buf.FlushInstance(ctx, inst)
	require.NoError(t, err)
	require.Equal(t, mid, flushed)

	props, err := db.MessageProps(ctx, mid)
	require.NoError(t, err)
	v, ok := props.GetTag(subjectTag())
	require.True(t, ok)
	require.Equal(t, "hello", v.Str)
}

func TestReadonlyPropsRejected(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	buf := instance.NewBuffer(db, elog.Logger{Out: elog.DefaultLogger.Out, Name: "test"})

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	inst, err := buf.LoadMessageInstance(ctx, storedb.FolderInbox, mid, true)
	require.NoError(t, err)

	err = buf.SetInstanceProperties(inst, []propval.TaggedValue{
		{Tag: propval.MakeTag(propval.PidTagMessageSize, propval.PtLong), I32: 12345},
	})
	require.NoError(t, err)

	content, err := buf.ReadMessageInstance(inst)
	require.NoError(t, err)
	_, ok := content.Props.Get(propval.PidTagMessageSize)
	require.False(t, ok)
}

func TestStringVariantDropsSibling(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	buf := instance.NewBuffer(db, elog.Logger{Out: elog.DefaultLogger.Out, Name: "test"})

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	inst, err := buf.LoadMessageInstance(ctx, storedb.FolderInbox, mid, true)
	require.NoError(t, err)

	require.NoError(t, buf.SetInstanceProperties(inst, []propval.TaggedValue{
		{Tag: propval.MakeTag(0x0037, propval.PtString8), Str: "ascii subject"},
	}))
	require.NoError(t, buf.SetInstanceProperties(inst, []propval.TaggedValue{
		{Tag: propval.MakeTag(0x0037, propval.PtUnicode), Str: "unicode subject"},
	}))

	content, err := buf.ReadMessageInstance(inst)
	require.NoError(t, err)
	_, hasString8 := content.Props.GetTag(propval.MakeTag(0x0037, propval.PtString8))
	require.False(t, hasString8)
	v, hasUnicode := content.Props.GetTag(propval.MakeTag(0x0037, propval.PtUnicode))
	require.True(t, hasUnicode)
	require.Equal(t, "unicode subject", v.Str)
}

func TestEmbeddedMessageInstanceFlush(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	buf := instance.NewBuffer(db, elog.Logger{Out: elog.DefaultLogger.Out, Name: "test"})

	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	msgInst, err := buf.LoadMessageInstance(ctx, storedb.FolderInbox, mid, true)
	require.NoError(t, err)

	require.NoError(t, buf.WriteMessageInstance(msgInst, propval.NewBag(), nil, []*instance.AttachmentContent{
		{AttachNum: 0, Props: propval.NewBag()},
	}, true))

	attInst, err := buf.LoadAttachmentInstance(msgInst, 0)
	require.NoError(t, err)

	embInst, err := buf.LoadEmbeddedInstance(ctx, attInst, true)
	require.NoError(t, err)
	require.NoError(t, buf.SetInstanceProperties(embInst, []propval.TaggedValue{
		{Tag: subjectTag(), Str: "embedded subject"},
	}))

	require.True(t, buf.CheckInstanceCycle(msgInst, embInst))
	require.False(t, buf.CheckInstanceCycle(embInst, msgInst))

	_, err = buf.FlushInstance(ctx, msgInst)
	require.NoError(t, err)

	atts, err := db.Attachments(ctx, mid)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	require.NotZero(t, atts[0].EmbeddedMID)

	embProps, err := db.MessageProps(ctx, atts[0].EmbeddedMID)
	require.NoError(t, err)
	v, ok := embProps.GetTag(subjectTag())
	require.True(t, ok)
	require.Equal(t, "embedded subject", v.Str)
}
