package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDueIndex_NextOrdersAscending(t *testing.T) {
	idx := newDueIndex()
	idx.Upsert("c", 300)
	idx.Upsert("a", 100)
	idx.Upsert("b", 200)

	assert.Equal(t, []string{"a", "b", "c"}, idx.Next(0))
}

func TestDueIndex_TieBreaksOnSubID(t *testing.T) {
	idx := newDueIndex()
	idx.Upsert("zeta", 100)
	idx.Upsert("alpha", 100)

	assert.Equal(t, []string{"alpha", "zeta"}, idx.Next(0))
}

func TestDueIndex_UpsertMovesExistingEntry(t *testing.T) {
	idx := newDueIndex()
	idx.Upsert("a", 100)
	idx.Upsert("b", 200)
	idx.Upsert("a", 300)

	assert.Equal(t, []string{"b", "a"}, idx.Next(0))
	assert.Equal(t, 2, idx.Len())
}

func TestDueIndex_RemoveDropsEntry(t *testing.T) {
	idx := newDueIndex()
	idx.Upsert("a", 100)
	idx.Upsert("b", 200)

	idx.Remove("a")

	assert.Equal(t, []string{"b"}, idx.Next(0))
	assert.Equal(t, 1, idx.Len())

	// Removing an absent SubId is a no-op, not an error.
	idx.Remove("does-not-exist")
	assert.Equal(t, 1, idx.Len())
}

func TestDueIndex_PeekDueOnlyReturnsElapsed(t *testing.T) {
	idx := newDueIndex()
	idx.Upsert("past", 100)
	idx.Upsert("future", 999)

	assert.Equal(t, []string{"past"}, idx.PeekDue(500, 0))
}

func TestDueIndex_LimitTruncates(t *testing.T) {
	idx := newDueIndex()
	idx.Upsert("a", 100)
	idx.Upsert("b", 200)
	idx.Upsert("c", 300)

	assert.Equal(t, []string{"a", "b"}, idx.Next(2))
}
