package gossip

import (
	"testing"
	"time"
)

func TestBackoffNotActiveInitially(t *testing.T) {
	b := NewBackoffState()
	if b.Active("peer1", time.Now()) {
		t.Fatalf("fresh peer should not be in backoff")
	}
}

func TestBackoffBumpActivatesWindow(t *testing.T) {
	b := NewBackoffState()
	now := time.Now()
	b.Bump("peer1", now, 10, 1000)
	if !b.Active("peer1", now) {
		t.Fatalf("peer should be in backoff immediately after a bump")
	}
	if b.Active("peer1", now.Add(10*time.Second)) {
		t.Fatalf("backoff window should have expired by 10s for a single bump")
	}
}

func TestBackoffStrikesCappedAt100(t *testing.T) {
	b := NewBackoffState()
	now := time.Now()
	for i := 0; i < 20; i++ {
		b.Bump("peer1", now, 10, 0)
	}
	st := b.states["peer1"]
	if st.strikes != 100 {
		t.Fatalf("strikes should be capped at 100, got %d", st.strikes)
	}
}

func TestJitterMsDeterministic(t *testing.T) {
	a := jitterMs("peer1", 5, 1000)
	b := jitterMs("peer1", 5, 1000)
	if a != b {
		t.Fatalf("jitter should be deterministic for identical inputs")
	}
	if a >= 250 {
		t.Fatalf("jitter must stay under 250ms, got %d", a)
	}
}
