package gossip

import (
	"testing"
	"time"
)

func TestPeerRateLimiterAllowsUpToLimit(t *testing.T) {
	r := newPeerRateLimiter()
	now := time.Now()
	for i := 0; i < 5; i++ {
		if !r.allow(now, 5, 0) {
			t.Fatalf("call %d should be allowed within base limit", i)
		}
	}
	if r.allow(now, 5, 0) {
		t.Fatalf("6th call should be rejected once the window is exhausted")
	}
}

func TestPeerRateLimiterResetsAfterWindow(t *testing.T) {
	r := newPeerRateLimiter()
	now := time.Now()
	for i := 0; i < 3; i++ {
		r.allow(now, 3, 0)
	}
	if r.allow(now, 3, 0) {
		t.Fatalf("window should be exhausted")
	}
	if !r.allow(now.Add(2*time.Second), 3, 0) {
		t.Fatalf("a new window should allow traffic again")
	}
}

func TestPeerRateLimiterScalesWithReputation(t *testing.T) {
	r := newPeerRateLimiter()
	now := time.Now()
	// score <= -100 scales base/4; base 8 => effective 2.
	for i := 0; i < 2; i++ {
		if !r.allow(now, 8, -150) {
			t.Fatalf("call %d should be allowed under throttled limit", i)
		}
	}
	if r.allow(now, 8, -150) {
		t.Fatalf("throttled peer should be capped at base/4")
	}
}
