package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUCache_GetMissOnEmpty(t *testing.T) {
	t.Parallel()

	c := newLRUCache(2)

	_, ok := c.get("a")
	assert.False(t, ok)
}

func TestLRUCache_PutThenGet(t *testing.T) {
	t.Parallel()

	c := newLRUCache(2)
	c.put("a", "1")

	value, ok := c.get("a")
	require := assert.New(t)
	require.True(ok)
	require.Equal("1", value)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := newLRUCache(2)
	c.put("a", "1")
	c.put("b", "2")
	c.put("c", "3") // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok)

	_, ok = c.get("b")
	assert.True(t, ok)

	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestLRUCache_GetPromotesToMostRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := newLRUCache(2)
	c.put("a", "1")
	c.put("b", "2")

	c.get("a") // promote "a"
	c.put("c", "3") // should evict "b", not "a"

	_, ok := c.get("a")
	assert.True(t, ok)

	_, ok = c.get("b")
	assert.False(t, ok)
}

func TestLRUCache_DeleteRemovesEntry(t *testing.T) {
	t.Parallel()

	c := newLRUCache(2)
	c.put("a", "1")
	c.delete("a")

	_, ok := c.get("a")
	assert.False(t, ok)
}

func TestLRUCache_PutOverwritesExistingKeyWithoutGrowing(t *testing.T) {
	t.Parallel()

	c := newLRUCache(2)
	c.put("a", "1")
	c.put("a", "2")

	value, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", value)
	assert.Equal(t, 1, c.ll.Len())
}
