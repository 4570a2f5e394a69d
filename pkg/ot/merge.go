package ot

import "sort"

// Merge folds a batch of operations from a single user into fewer operations
// where consecutive edits form a contiguous range. The input is ordered by
// position, then timestamp. Two inserts merge when the second starts exactly
// where the first ended; two deletes merge when they share a position (a
// forward-delete run). Replace operations never merge.
func Merge(ops []Operation) []Operation {
	if len(ops) <= 1 {
		out := make([]Operation, len(ops))
		copy(out, ops)
		return out
	}

	sorted := make([]Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	merged := make([]Operation, 0, len(sorted))
	merged = append(merged, sorted[0])

	for _, op := range sorted[1:] {
		last := &merged[len(merged)-1]
		if canMerge(*last, op) {
			switch op.Kind {
			case KindInsert:
				last.Content += op.Content
			case KindDelete:
				last.Length += op.Length
			}
			continue
		}
		merged = append(merged, op)
	}

	return merged
}

// canMerge reports whether next can be folded into prev.
func canMerge(prev, next Operation) bool {
	if prev.UserID != next.UserID || prev.Kind != next.Kind {
		return false
	}
	switch prev.Kind {
	case KindInsert:
		return prev.Position+len(prev.Content) == next.Position
	case KindDelete:
		return prev.Position == next.Position
	default:
		return false
	}
}
