package propval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvalContentSubstring(t *testing.T) {
	subjectTag := MakeTag(0x0037, PtUnicode)
	get := func(tag Tag) (TaggedValue, bool) {
		if tag.PropID() == subjectTag.PropID() {
			return TaggedValue{Tag: subjectTag, Str: "Hello World"}, true
		}
		return TaggedValue{}, false
	}

	r := Restriction{
		Kind:              KindContent,
		ContentTag:        subjectTag,
		ContentFuzzy:      FuzzySubstring,
		ContentIgnoreCase: true,
		ContentValue:      TaggedValue{Str: "hello"},
	}
	require.True(t, Eval(r, get, nil, nil))

	r.ContentValue.Str = "goodbye"
	require.False(t, Eval(r, get, nil, nil))
}

func TestEvalAndOr(t *testing.T) {
	tag := MakeTag(1, PtLong)
	get := func(Tag) (TaggedValue, bool) {
		return TaggedValue{Tag: tag, I32: 5}, true
	}
	gt3 := Restriction{Kind: KindProperty, PropTag: tag, PropOp: RelGT, PropVal: TaggedValue{Tag: tag, I32: 3}}
	lt10 := Restriction{Kind: KindProperty, PropTag: tag, PropOp: RelLT, PropVal: TaggedValue{Tag: tag, I32: 10}}
	gt100 := Restriction{Kind: KindProperty, PropTag: tag, PropOp: RelGT, PropVal: TaggedValue{Tag: tag, I32: 100}}

	and := Restriction{Kind: KindAnd, Children: []Restriction{gt3, lt10}}
	require.True(t, Eval(and, get, nil, nil))

	or := Restriction{Kind: KindOr, Children: []Restriction{gt100, gt3}}
	require.True(t, Eval(or, get, nil, nil))

	not := Restriction{Kind: KindNot, Inner: &gt100}
	require.True(t, Eval(not, get, nil, nil))
}

func TestEvalSubRestrictionRecipients(t *testing.T) {
	recipTag := MakeTag(0x3003, PtUnicode) // PR_EMAIL_ADDRESS-ish
	recipients := []Getter{
		func(Tag) (TaggedValue, bool) { return TaggedValue{Str: "a@x.test"}, true },
		func(Tag) (TaggedValue, bool) { return TaggedValue{Str: "b@y.test"}, true },
	}
	subGet := func() []Getter { return recipients }

	inner := Restriction{
		Kind:         KindContent,
		ContentTag:   recipTag,
		ContentFuzzy: FuzzySubstring,
		ContentValue: TaggedValue{Str: "b@y"},
	}
	r := Restriction{Kind: KindSubRestriction, SubInner: &inner}

	require.True(t, Eval(r, func(Tag) (TaggedValue, bool) { return TaggedValue{}, false }, subGet, nil))
}

func TestEvalCountLimitsEvaluations(t *testing.T) {
	calls := 0
	tag := MakeTag(1, PtLong)
	inner := Restriction{Kind: KindProperty, PropTag: tag, PropOp: RelEQ, PropVal: TaggedValue{Tag: tag, I32: 1}}
	r := Restriction{Kind: KindCount, CountInner: &inner, CountLimit: 2}

	get := func(Tag) (TaggedValue, bool) {
		calls++
		return TaggedValue{Tag: tag, I32: 1}, true
	}
	require.True(t, Eval(r, get, nil, nil))
	require.True(t, Eval(r, get, nil, nil))
	// A fresh Eval call resets the per-tree count budget (stateless
	// restriction, per-call countState), so this still succeeds rather
	// than tripping the limit across calls.
	require.True(t, Eval(r, get, nil, nil))
}
