package rules_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foxcpp/exmdb/internal/elog"
	"github.com/foxcpp/exmdb/internal/ids"
	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/rules"
	"github.com/foxcpp/exmdb/internal/storedb"
)

const subjectPropID = 0x0037

func openTestDB(t *testing.T) *storedb.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := storedb.Open(context.Background(), dir, elog.Logger{Out: elog.DefaultLogger.Out, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Provision(context.Background()))
	return db
}

func deliverMessage(t *testing.T, db *storedb.DB, folder ids.EID, subject string) ids.EID {
	t.Helper()
	ctx := context.Background()
	mid, err := db.NewMessageID(ctx)
	require.NoError(t, err)
	_, err = db.CreateMessage(ctx, storedb.CreateMessageParams{ID: mid, ParentFID: folder})
	require.NoError(t, err)
	err = db.Tx(ctx, func(tx *sql.Tx) error {
		return db.SetMessageProps(ctx, tx, mid, []propval.TaggedValue{
			{Tag: propval.MakeTag(subjectPropID, propval.PtUnicode), Str: subject},
		})
	})
	require.NoError(t, err)
	return mid
}

func subjectContainsRule(t *testing.T, needle string, actions []rules.Action) storedb.RuleRow {
	t.Helper()
	cond, err := rules.EncodeCondition(propval.Restriction{
		Kind:              propval.KindContent,
		ContentTag:        propval.MakeTag(subjectPropID, propval.PtUnicode),
		ContentFuzzy:      propval.FuzzySubstring,
		ContentIgnoreCase: true,
		ContentValue:      propval.TaggedValue{Tag: propval.MakeTag(subjectPropID, propval.PtUnicode), Str: needle},
	}, nil)
	require.NoError(t, err)
	acts, err := rules.EncodeActions(actions, nil)
	require.NoError(t, err)
	return storedb.RuleRow{
		Sequence:  0,
		State:     0x1, // ENABLED
		Condition: cond,
		Actions:   acts,
	}
}

// TestRuleMove mirrors spec §8 S2: a MOVE rule on the inbox relocates the
// message into the destination folder and leaves nothing behind.
func TestRuleMove(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dest, err := db.CreateFolder(ctx, storedb.FolderIPMSubtree, storedb.FolderGeneric)
	require.NoError(t, err)

	row := subjectContainsRule(t, "Hi", []rules.Action{{Op: rules.OpMove, DestFolder: dest}})
	_, err = db.AddRule(ctx, storedb.FolderInbox, row)
	require.NoError(t, err)

	mid := deliverMessage(t, db, storedb.FolderInbox, "Hi there")

	res, err := rules.Evaluate(ctx, db, storedb.FolderInbox, mid, rules.DeliveryContext{})
	require.NoError(t, err)
	require.True(t, res.Deleted)

	inInbox, err := db.MessagesInFolder(ctx, storedb.FolderInbox, nil, false)
	require.NoError(t, err)
	require.Empty(t, inInbox)

	inDest, err := db.MessagesInFolder(ctx, dest, nil, false)
	require.NoError(t, err)
	require.Len(t, inDest, 1)

	deferred, err := db.MessagesInFolder(ctx, storedb.FolderDeferredAction, nil, false)
	require.NoError(t, err)
	require.Empty(t, deferred)
}

// TestRuleMoveIdempotent mirrors spec §8 testable property 8: delivering
// two distinct messages through the same MOVE rule yields two messages in
// the destination and zero in the inbox.
func TestRuleMoveIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dest, err := db.CreateFolder(ctx, storedb.FolderIPMSubtree, storedb.FolderGeneric)
	require.NoError(t, err)

	row := subjectContainsRule(t, "Hi", []rules.Action{{Op: rules.OpMove, DestFolder: dest}})
	_, err = db.AddRule(ctx, storedb.FolderInbox, row)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		mid := deliverMessage(t, db, storedb.FolderInbox, "Hi there")
		_, err := rules.Evaluate(ctx, db, storedb.FolderInbox, mid, rules.DeliveryContext{})
		require.NoError(t, err)
	}

	inInbox, err := db.MessagesInFolder(ctx, storedb.FolderInbox, nil, false)
	require.NoError(t, err)
	require.Empty(t, inInbox)

	inDest, err := db.MessagesInFolder(ctx, dest, nil, false)
	require.NoError(t, err)
	require.Len(t, inDest, 2)
}

func TestRuleTagAndMarkRead(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	const flagPropID = 0x6000
	row := subjectContainsRule(t, "Hi", []rules.Action{
		{Op: rules.OpTag, TagValue: propval.TaggedValue{Tag: propval.MakeTag(flagPropID, propval.PtBoolean), Bool: true}},
		{Op: rules.OpMarkAsRead},
	})
	_, err := db.AddRule(ctx, storedb.FolderInbox, row)
	require.NoError(t, err)

	mid := deliverMessage(t, db, storedb.FolderInbox, "Hi there")
	res, err := rules.Evaluate(ctx, db, storedb.FolderInbox, mid, rules.DeliveryContext{})
	require.NoError(t, err)
	require.False(t, res.Deleted)

	props, err := db.MessageProps(ctx, mid)
	require.NoError(t, err)
	v, ok := props.GetTag(propval.MakeTag(flagPropID, propval.PtBoolean))
	require.True(t, ok)
	require.True(t, v.Bool)

	read, err := db.ReadState(ctx, mid, "", false)
	require.NoError(t, err)
	require.True(t, read)
}

// TestRuleNoMatchLeavesMessage verifies a rule whose condition does not
// match takes no action.
func TestRuleNoMatchLeavesMessage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dest, err := db.CreateFolder(ctx, storedb.FolderIPMSubtree, storedb.FolderGeneric)
	require.NoError(t, err)

	row := subjectContainsRule(t, "Hi", []rules.Action{{Op: rules.OpMove, DestFolder: dest}})
	_, err = db.AddRule(ctx, storedb.FolderInbox, row)
	require.NoError(t, err)

	mid := deliverMessage(t, db, storedb.FolderInbox, "Something else")
	res, err := rules.Evaluate(ctx, db, storedb.FolderInbox, mid, rules.DeliveryContext{})
	require.NoError(t, err)
	require.False(t, res.Deleted)

	inInbox, err := db.MessagesInFolder(ctx, storedb.FolderInbox, nil, false)
	require.NoError(t, err)
	require.Len(t, inInbox, 1)
}

func TestRuleDisabledIsSkipped(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	dest, err := db.CreateFolder(ctx, storedb.FolderIPMSubtree, storedb.FolderGeneric)
	require.NoError(t, err)

	row := subjectContainsRule(t, "Hi", []rules.Action{{Op: rules.OpMove, DestFolder: dest}})
	row.State = 0 // not ENABLED
	_, err = db.AddRule(ctx, storedb.FolderInbox, row)
	require.NoError(t, err)

	mid := deliverMessage(t, db, storedb.FolderInbox, "Hi there")
	res, err := rules.Evaluate(ctx, db, storedb.FolderInbox, mid, rules.DeliveryContext{})
	require.NoError(t, err)
	require.False(t, res.Deleted)
}
