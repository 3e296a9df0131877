package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// responseCache keeps full responses by prompt. go-cache expires entries by
// TTL; the size bound is enforced here by evicting the oldest insertion.
type responseCache struct {
	mu    sync.Mutex
	items *cache.Cache
	max   int
	seq   uint64
}

type cachedResponse struct {
	text string
	seq  uint64
}

func newResponseCache(max int, ttl time.Duration) *responseCache {
	cleanup := 10 * time.Minute
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &responseCache{items: cache.New(ttl, cleanup), max: max}
}

func cacheKey(model, system, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + system + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

func (c *responseCache) Get(key string) (string, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return "", false
	}
	return v.(cachedResponse).text, true
}

func (c *responseCache) Set(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.items.Items()
	if _, exists := live[key]; !exists && len(live) >= c.max {
		oldestKey, oldestSeq := "", ^uint64(0)
		for k, item := range live {
			if s := item.Object.(cachedResponse).seq; s < oldestSeq {
				oldestKey, oldestSeq = k, s
			}
		}
		c.items.Delete(oldestKey)
	}
	c.seq++
	c.items.SetDefault(key, cachedResponse{text: text, seq: c.seq})
}

func (c *responseCache) Len() int {
	return len(c.items.Items())
}
