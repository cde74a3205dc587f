package gossip

import (
	"sync"
	"time"

	"github.com/tidechain/tide-node/reputation"
)

// peerRateLimiter is a 1-second-window counter whose cap is recomputed
// every call from the peer's current reputation score.
type peerRateLimiter struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

func newPeerRateLimiter() *peerRateLimiter {
	return &peerRateLimiter{}
}

func (r *peerRateLimiter) allow(now time.Time, baseLimit int, score int) bool {
	limit := reputation.EffectiveRateLimit(baseLimit, score)
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Sub(r.windowStart) >= time.Second {
		r.windowStart = now
		r.count = 0
	}
	if r.count >= limit {
		return false
	}
	r.count++
	return true
}
