package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userOp(op Operation, user string, ts int64) Operation {
	op.UserID = user
	op.Timestamp = ts
	return op
}

func TestMergeContiguousInserts(t *testing.T) {
	// A typing burst: five single characters at advancing positions.
	ops := []Operation{
		userOp(ins(5, "h"), "u1", 1),
		userOp(ins(6, "e"), "u1", 2),
		userOp(ins(7, "l"), "u1", 3),
		userOp(ins(8, "l"), "u1", 4),
		userOp(ins(9, "o"), "u1", 5),
	}

	merged := Merge(ops)
	require.Len(t, merged, 1)
	assert.Equal(t, KindInsert, merged[0].Kind)
	assert.Equal(t, 5, merged[0].Position)
	assert.Equal(t, "hello", merged[0].Content)
}

func TestMergeForwardDeleteRun(t *testing.T) {
	ops := []Operation{
		userOp(del(3, 1), "u1", 1),
		userOp(del(3, 1), "u1", 2),
		userOp(del(3, 2), "u1", 3),
	}

	merged := Merge(ops)
	require.Len(t, merged, 1)
	assert.Equal(t, 3, merged[0].Position)
	assert.Equal(t, 4, merged[0].Length)
}

func TestMergeKeepsNonContiguousOps(t *testing.T) {
	ops := []Operation{
		userOp(ins(0, "a"), "u1", 1),
		userOp(ins(5, "b"), "u1", 2),
	}
	assert.Len(t, Merge(ops), 2)
}

func TestMergeNeverMergesReplace(t *testing.T) {
	ops := []Operation{
		userOp(repl(0, 1, "a"), "u1", 1),
		userOp(repl(1, 1, "b"), "u1", 2),
	}
	assert.Len(t, Merge(ops), 2)
}

func TestMergeNeverMergesAcrossUsers(t *testing.T) {
	ops := []Operation{
		userOp(ins(0, "a"), "u1", 1),
		userOp(ins(1, "b"), "u2", 2),
	}
	assert.Len(t, Merge(ops), 2)
}

func TestMergeSortsByPositionThenTimestamp(t *testing.T) {
	// Arrival order is scrambled; merge must reassemble the burst.
	ops := []Operation{
		userOp(ins(7, "l"), "u1", 3),
		userOp(ins(5, "h"), "u1", 1),
		userOp(ins(8, "o"), "u1", 4),
		userOp(ins(6, "e"), "u1", 2),
	}
	merged := Merge(ops)
	require.Len(t, merged, 1)
	assert.Equal(t, "helo", merged[0].Content)
}

// Merging must not change the effect: applying the raw sequence equals
// applying the merged sequence.
func TestMergePreservesEffect(t *testing.T) {
	s := "0123456789"
	bursts := [][]Operation{
		{
			userOp(ins(2, "a"), "u1", 1),
			userOp(ins(3, "b"), "u1", 2),
			userOp(ins(4, "c"), "u1", 3),
		},
		{
			userOp(del(4, 1), "u1", 1),
			userOp(del(4, 1), "u1", 2),
		},
		{
			userOp(repl(0, 2, "zz"), "u1", 1),
		},
	}

	for _, burst := range bursts {
		raw, err := ApplyAll(s, burst)
		require.NoError(t, err)
		folded, err := ApplyAll(s, Merge(burst))
		require.NoError(t, err)
		assert.Equal(t, raw, folded)
	}
}

func TestMergeEmptyAndSingle(t *testing.T) {
	assert.Empty(t, Merge(nil))
	single := []Operation{userOp(ins(0, "x"), "u1", 1)}
	assert.Equal(t, single, Merge(single))
}
