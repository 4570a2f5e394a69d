package ot

import "sort"

// Transform rebases two concurrent operations past each other.
//
// Given operations a and b produced against the same document state, it
// returns (a', b') such that applying a then b' yields the same text as
// applying b then a'. A nil result means the operation was absorbed by its
// counterpart and must be dropped. aHasPriority breaks position ties in
// favour of a.
//
// If both operations carry the same id the second is redundant and is
// returned absent.
func Transform(a, b Operation, aHasPriority bool) (*Operation, *Operation) {
	if a.ID != "" && a.ID == b.ID {
		return &a, nil
	}
	if a.Kind == KindRetain || b.Kind == KindRetain {
		return &a, &b
	}

	switch a.Kind {
	case KindInsert:
		switch b.Kind {
		case KindInsert:
			transformInsertInsert(&a, &b, aHasPriority)
		case KindDelete:
			transformInsertDelete(&a, &b)
		case KindReplace:
			transformInsertReplace(&a, &b)
		}
	case KindDelete:
		switch b.Kind {
		case KindInsert:
			transformInsertDelete(&b, &a)
		case KindDelete:
			transformDeleteDelete(&a, &b)
		case KindReplace:
			transformDeleteReplace(&a, &b)
		}
	case KindReplace:
		switch b.Kind {
		case KindInsert:
			transformInsertReplace(&b, &a)
		case KindDelete:
			transformDeleteReplace(&b, &a)
		case KindReplace:
			return transformReplaceReplace(a, b, aHasPriority)
		}
	}

	return absorbZero(a), absorbZero(b)
}

// transformInsertInsert shifts the later insert right by the earlier one's
// content length. Ties are broken by priority.
func transformInsertInsert(a, b *Operation, aHasPriority bool) {
	if a.Position < b.Position || (a.Position == b.Position && aHasPriority) {
		b.Position += len(a.Content)
	} else {
		a.Position += len(b.Content)
	}
}

// transformInsertDelete rebases an insert against a delete. An insert that
// falls inside the deleted range is clamped to the start of that range.
func transformInsertDelete(ins, del *Operation) {
	switch {
	case ins.Position <= del.Position:
		del.Position += len(ins.Content)
	case ins.Position >= del.End():
		ins.Position -= del.Length
	default:
		ins.Position = del.Position
	}
}

// transformInsertReplace rebases an insert against a replace. An insert that
// fell inside the replaced range lands immediately after the replacement
// content.
func transformInsertReplace(ins, rep *Operation) {
	switch {
	case ins.Position <= rep.Position:
		rep.Position += len(ins.Content)
	case ins.Position >= rep.End():
		ins.Position += rep.NetDelta()
	default:
		ins.Position = rep.Position + len(rep.Content)
	}
}

// transformDeleteDelete resolves two concurrent deletes. Overlapping ranges
// each lose the overlap; a side reduced to zero length is absorbed.
func transformDeleteDelete(a, b *Operation) {
	switch {
	case a.End() <= b.Position:
		b.Position -= a.Length
	case b.End() <= a.Position:
		a.Position -= b.Length
	default:
		overlap := min(a.End(), b.End()) - max(a.Position, b.Position)
		start := min(a.Position, b.Position)
		a.Length -= overlap
		b.Length -= overlap
		a.Position = start
		b.Position = start
	}
}

// transformDeleteReplace resolves a delete against a replace. Non-overlapping
// ranges shift by the other side's net length change. On overlap the replace
// survives with its span trimmed; the delete loses the overlap and is
// absorbed once empty.
func transformDeleteReplace(del, rep *Operation) {
	switch {
	case del.End() <= rep.Position:
		rep.Position -= del.Length
	case rep.End() <= del.Position:
		del.Position += rep.NetDelta()
	default:
		overlap := min(del.End(), rep.End()) - max(del.Position, rep.Position)
		start := min(del.Position, rep.Position)
		del.Length -= overlap
		rep.Length -= overlap
		del.Position = start
		rep.Position = start
	}
}

// transformReplaceReplace resolves two concurrent replaces. Overlapping
// replaces cannot both survive; the priority side wins unchanged.
func transformReplaceReplace(a, b Operation, aHasPriority bool) (*Operation, *Operation) {
	switch {
	case a.End() <= b.Position:
		b.Position += a.NetDelta()
	case b.End() <= a.Position:
		a.Position += b.NetDelta()
	default:
		if aHasPriority {
			return &a, nil
		}
		return nil, &b
	}
	return &a, &b
}

// absorbZero drops deletes and replaces whose span was reduced to nothing,
// and inserts left without content.
func absorbZero(op Operation) *Operation {
	switch op.Kind {
	case KindDelete, KindReplace:
		if op.Length <= 0 {
			return nil
		}
	case KindInsert:
		if op.Content == "" {
			return nil
		}
	}
	return &op
}

// TransformAgainst rebases op past every operation in history that is
// strictly earlier in (timestamp, userID) order. History entries that are not
// earlier are skipped; they will be transformed against op when their own
// turn comes. A nil result means op was absorbed (or is a duplicate of an
// operation already in history).
func TransformAgainst(op Operation, history []Operation) *Operation {
	ordered := make([]Operation, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Before(ordered[j])
	})

	current := &op
	for _, h := range ordered {
		if h.ID != "" && h.ID == op.ID {
			return nil
		}
		if !h.Before(*current) {
			continue
		}
		current, _ = Transform(*current, h, false)
		if current == nil {
			return nil
		}
	}
	return current
}
