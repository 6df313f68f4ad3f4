package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	_, ok := c.Get("a") // a is now most recent
	require.True(t, ok)

	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())

	hits, misses, evictions := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, int64(1), evictions)
}

func TestLRUUpdateExisting(t *testing.T) {
	c := NewLRU[int, string](1)
	c.Set(1, "x")
	c.Set(1, "y")
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "y", v)
	assert.Equal(t, 1, c.Len())

	c.Delete(1)
	assert.Equal(t, 0, c.Len())
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRU[int, int](16)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Set(i%32, w)
				c.Get((i + w) % 32)
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
