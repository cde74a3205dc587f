package gossip

import (
	"container/list"
	"crypto/sha256"
	"sync"
)

const defaultReplayCacheCap = 8192

// ReplayCache is a bounded FIFO of recently seen message-id digests. It
// answers "have I seen this exact message before" without retaining the
// message bytes themselves.
type ReplayCache struct {
	mu  sync.Mutex
	cap int
	ll  *list.List
	set map[[32]byte]*list.Element
}

func NewReplayCache(cap int) *ReplayCache {
	if cap <= 0 {
		cap = defaultReplayCacheCap
	}
	return &ReplayCache{
		cap: cap,
		ll:  list.New(),
		set: make(map[[32]byte]*list.Element, cap),
	}
}

func MessageID(payload []byte) [32]byte {
	return sha256.Sum256(payload)
}

// SeenOrInsert reports whether id was already present; if not, it inserts
// it, evicting the oldest entry once the cache is at capacity.
func (c *ReplayCache) SeenOrInsert(id [32]byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.set[id]; ok {
		return true
	}
	el := c.ll.PushBack(id)
	c.set[id] = el
	if c.ll.Len() > c.cap {
		oldest := c.ll.Front()
		c.ll.Remove(oldest)
		delete(c.set, oldest.Value.([32]byte))
	}
	return false
}
