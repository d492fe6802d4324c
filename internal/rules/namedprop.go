package rules

import (
	"context"

	"github.com/foxcpp/exmdb/internal/propval"
	"github.com/foxcpp/exmdb/internal/storedb"
)

// resolveNamedProps builds the local-id -> mailbox-local-id map an extended
// rule's embedded named-property block describes, creating any propid the
// mailbox has not seen before (spec §4.7 "Named properties in rules").
func resolveNamedProps(ctx context.Context, db *storedb.DB, refs []NamedPropRef) (map[uint16]uint16, error) {
	out := make(map[uint16]uint16, len(refs))
	for _, ref := range refs {
		resolved, err := db.ResolveNamedProp(ctx, storedb.NamedPropKey{
			GUID: ref.GUID,
			Kind: ref.Kind,
			LID:  ref.LID,
			Name: ref.Name,
		})
		if err != nil {
			return nil, err
		}
		out[ref.LocalID] = resolved
	}
	return out, nil
}

// rewriteTag maps tag to its mailbox-local propid if tag's property id
// appears in m, preserving the original type.
func rewriteTag(tag propval.Tag, m map[uint16]uint16) propval.Tag {
	if local, ok := m[tag.PropID()]; ok {
		return propval.MakeTag(local, tag.PropType())
	}
	return tag
}

func rewriteValue(v propval.TaggedValue, m map[uint16]uint16) propval.TaggedValue {
	v.Tag = rewriteTag(v.Tag, m)
	return v
}

// rewriteRestriction rewrites every proptag reference inside r in place,
// recursing through every nested restriction kind.
func rewriteRestriction(r *propval.Restriction, m map[uint16]uint16) {
	if r == nil {
		return
	}
	r.ContentTag = rewriteTag(r.ContentTag, m)
	r.ContentValue = rewriteValue(r.ContentValue, m)
	r.PropTag = rewriteTag(r.PropTag, m)
	r.PropVal = rewriteValue(r.PropVal, m)
	r.CompareTag1 = rewriteTag(r.CompareTag1, m)
	r.CompareTag2 = rewriteTag(r.CompareTag2, m)
	r.BitmaskTag = rewriteTag(r.BitmaskTag, m)
	r.SizeTag = rewriteTag(r.SizeTag, m)
	r.ExistTag = rewriteTag(r.ExistTag, m)

	for i := range r.Children {
		rewriteRestriction(&r.Children[i], m)
	}
	rewriteRestriction(r.Inner, m)
	rewriteRestriction(r.SubInner, m)
	rewriteRestriction(r.CommentInner, m)
	rewriteRestriction(r.CountInner, m)
}

// rewriteActions rewrites the OP_TAG proptag of every action in place.
func rewriteActions(actions []Action, m map[uint16]uint16) {
	for i := range actions {
		if actions[i].Op == OpTag {
			actions[i].TagValue = rewriteValue(actions[i].TagValue, m)
		}
	}
}

// rewriteRule applies the mailbox-local named-property rewrite to an
// extended rule's condition and actions, in place. Standard rules (no
// NamedProps) are left untouched.
func rewriteRule(ctx context.Context, db *storedb.DB, r *Rule) error {
	if len(r.NamedProps) == 0 {
		return nil
	}
	m, err := resolveNamedProps(ctx, db, r.NamedProps)
	if err != nil {
		return err
	}
	rewriteRestriction(&r.Condition, m)
	rewriteActions(r.Actions, m)
	return nil
}
