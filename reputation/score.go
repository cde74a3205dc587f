package reputation

import (
	"sync"
	"time"
)

// Params tunes score clamping, decay, and ban backoff.
type Params struct {
	BanThreshold  int // score <= this => ban
	GoodThreshold int // not read by Score or EffectiveRateLimit
	MaxScore      int
	MinScore      int
	DecayPerMin   int
	BanBaseSecs   uint64
	BanMaxSecs    uint64
}

func DefaultParams() Params {
	return Params{
		BanThreshold:  -100,
		GoodThreshold: 50,
		MaxScore:      200,
		MinScore:      -200,
		DecayPerMin:   2,
		BanBaseSecs:   30,
		BanMaxSecs:    3600,
	}
}

// Decision is the enforcement action a caller should take after an
// observation is applied.
type Decision int

const (
	Allow Decision = iota
	Throttle
	Ban
)

type peerState struct {
	score       int
	lastDecay   time.Time
	bannedUntil time.Time
	banLevel    uint32
}

// Score tracks a per-peer integer reputation with time-based decay and
// escalating ban backoff. Safe for concurrent use.
type Score struct {
	params Params
	mu     sync.Mutex
	peers  map[string]*peerState
}

func New(params Params) *Score {
	return &Score{params: params, peers: make(map[string]*peerState)}
}

// IsBanned reports whether peer is currently serving a ban.
func (s *Score) IsBanned(peer string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entryLocked(peer)
	s.decayLocked(st, now)
	return !st.bannedUntil.IsZero() && now.Before(st.bannedUntil)
}

// ObserveGood records positive behavior and returns the resulting decision.
func (s *Score) ObserveGood(peer string, now time.Time, delta int) Decision {
	if delta < 0 {
		delta = -delta
	}
	return s.apply(peer, now, delta)
}

// ObserveBad records negative behavior and returns the resulting decision.
func (s *Score) ObserveBad(peer string, now time.Time, delta int) Decision {
	if delta < 0 {
		delta = -delta
	}
	return s.apply(peer, now, -delta)
}

// CurrentScore returns peer's score after applying decay.
func (s *Score) CurrentScore(peer string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entryLocked(peer)
	s.decayLocked(st, now)
	return st.score
}

func (s *Score) entryLocked(peer string) *peerState {
	st, ok := s.peers[peer]
	if !ok {
		st = &peerState{lastDecay: time.Time{}}
		s.peers[peer] = st
	}
	return st
}

func (s *Score) apply(peer string, now time.Time, delta int) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entryLocked(peer)
	s.decayLocked(st, now)

	if !st.bannedUntil.IsZero() {
		if now.Before(st.bannedUntil) {
			return Ban
		}
		st.bannedUntil = time.Time{}
	}

	st.score = clamp(st.score+delta, s.params.MinScore, s.params.MaxScore)

	if st.score <= s.params.BanThreshold {
		st.banLevel++
		secs := backoffSecs(s.params.BanBaseSecs, s.params.BanMaxSecs, st.banLevel)
		st.bannedUntil = now.Add(time.Duration(secs) * time.Second)
		return Ban
	}
	if st.score < 0 {
		return Throttle
	}
	return Allow
}

func (s *Score) decayLocked(st *peerState, now time.Time) {
	if st.lastDecay.IsZero() {
		st.lastDecay = now
		return
	}
	if now.Before(st.lastDecay) {
		st.lastDecay = now
		return
	}
	mins := int(now.Sub(st.lastDecay) / time.Minute)
	if mins <= 0 {
		return
	}
	st.lastDecay = st.lastDecay.Add(time.Duration(mins) * time.Minute)
	d := s.params.DecayPerMin * mins
	if st.score > 0 {
		st.score -= d
		if st.score < 0 {
			st.score = 0
		}
	} else if st.score < 0 {
		st.score += d
		if st.score > 0 {
			st.score = 0
		}
	}
}

func backoffSecs(base, cap uint64, level uint32) uint64 {
	pow := level - 1
	if pow > 16 {
		pow = 16
	}
	v := base << pow
	if v > cap || v < base {
		v = cap
	}
	return v
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// EffectiveRateLimit scales a base per-second rate limit by a peer's score,
// per the piecewise reputation curve.
func EffectiveRateLimit(base int, score int) int {
	var scaled int
	switch {
	case score <= -100:
		scaled = base / 4
	case score < 0:
		scaled = base / 2
	case score < 50:
		scaled = base
	case score < 150:
		scaled = base * 2
	default:
		scaled = base * 4
	}
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}
