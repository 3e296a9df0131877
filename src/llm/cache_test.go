package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCacheEvictsOldest(t *testing.T) {
	c := newResponseCache(2, time.Minute)
	c.Set("a", "first")
	c.Set("b", "second")
	c.Set("a", "first again")
	assert.Equal(t, 2, c.Len(), "overwriting does not evict")

	c.Set("c", "third")
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok, "oldest insertion evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "first again", v)
}

func TestResponseCacheExpires(t *testing.T) {
	c := newResponseCache(4, 20*time.Millisecond)
	c.Set("k", "v")
	_, ok := c.Get("k")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCacheKeyDependsOnModel(t *testing.T) {
	assert.Equal(t, cacheKey("m", "s", "p"), cacheKey("m", "s", "p"))
	assert.NotEqual(t, cacheKey("m1", "s", "p"), cacheKey("m2", "s", "p"))
	assert.NotEqual(t, cacheKey("m", "s", "p1"), cacheKey("m", "s", "p2"))
}
