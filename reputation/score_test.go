package reputation

import (
	"testing"
	"time"
)

func TestBanAtThresholdAndExponentialBackoff(t *testing.T) {
	s := New(DefaultParams())
	now := time.Unix(0, 0)

	d := s.ObserveBad("peer1", now, 150)
	if d != Ban {
		t.Fatalf("expected ban after crossing threshold, got %v", d)
	}
	firstBan := s.CurrentScore("peer1", now)
	_ = firstBan

	// Still banned just before the window expires.
	if d := s.ObserveBad("peer1", now.Add(29*time.Second), 1); d != Ban {
		t.Fatalf("expected still banned, got %v", d)
	}

	// Ban expires; next violation bans again at double the backoff.
	past := now.Add(31 * time.Second)
	d2 := s.ObserveBad("peer1", past, 150)
	if d2 != Ban {
		t.Fatalf("expected second ban, got %v", d2)
	}
	if !s.IsBanned("peer1", past.Add(31*time.Second)) {
		// level 2 backoff is 60s, so 31s after the second ban it should still be banned.
		t.Fatalf("expected level-2 ban to still be active at +31s")
	}
}

func TestDecayTowardZero(t *testing.T) {
	s := New(DefaultParams())
	now := time.Unix(0, 0)
	s.ObserveGood("peer1", now, 10)
	later := now.Add(10 * time.Minute)
	score := s.CurrentScore("peer1", later)
	if score != 0 {
		t.Fatalf("expected score to decay to 0 after 10 minutes, got %d", score)
	}
}

func TestAllowThrottleBanDecisions(t *testing.T) {
	s := New(DefaultParams())
	now := time.Unix(0, 0)
	if d := s.ObserveGood("peer1", now, 0); d != Allow {
		t.Fatalf("expected Allow for non-negative score, got %v", d)
	}
	if d := s.ObserveBad("peer2", now, 10); d != Throttle {
		t.Fatalf("expected Throttle for negative score above ban threshold, got %v", d)
	}
}

func TestEffectiveRateLimitPiecewise(t *testing.T) {
	cases := []struct {
		score int
		base  int
		want  int
	}{
		{-200, 100, 25},
		{-50, 100, 50},
		{0, 100, 100},
		{49, 100, 100},
		{100, 100, 200},
		{199, 100, 400},
		{0, 1, 1},
	}
	for _, c := range cases {
		got := EffectiveRateLimit(c.base, c.score)
		if got != c.want {
			t.Fatalf("EffectiveRateLimit(%d, %d) = %d, want %d", c.base, c.score, got, c.want)
		}
	}
}
