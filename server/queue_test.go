package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaitingQueue(t *testing.T) {
	var q waitingQueue

	assert.True(t, q.enqueue("a"))
	assert.True(t, q.enqueue("b"))
	assert.False(t, q.enqueue("a"), "an id is queued at most once")
	assert.True(t, q.enqueue("c"))
	assert.Equal(t, []string{"a", "b", "c"}, q.snapshot())

	assert.True(t, q.dequeue("b"))
	assert.False(t, q.dequeue("b"))
	assert.Equal(t, 2, q.len())

	id, ok := q.popFront()
	assert.True(t, ok)
	assert.Equal(t, "a", id)
	id, _ = q.popFront()
	assert.Equal(t, "c", id)

	_, ok = q.popFront()
	assert.False(t, ok)
	assert.False(t, q.contains("a"))
}

func TestPairTable(t *testing.T) {
	pairs := make(pairTable)
	pairs.pair("a", "b")

	partner, ok := pairs.partnerOf("a")
	assert.True(t, ok)
	assert.Equal(t, "b", partner)
	partner, _ = pairs.partnerOf("b")
	assert.Equal(t, "a", partner)

	partner, ok = pairs.unpair("b")
	assert.True(t, ok)
	assert.Equal(t, "a", partner)

	_, ok = pairs.partnerOf("a")
	assert.False(t, ok, "unpairing one side removes both")
	_, ok = pairs.unpair("a")
	assert.False(t, ok)
}
