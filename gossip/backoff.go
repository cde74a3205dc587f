package gossip

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"
)

// BackoffState tracks per-peer strike weight and the resulting drop window.
type BackoffState struct {
	mu      sync.Mutex
	states  map[string]*peerBackoff
}

type peerBackoff struct {
	until   time.Time
	strikes int
}

func NewBackoffState() *BackoffState {
	return &BackoffState{states: make(map[string]*peerBackoff)}
}

// Active reports whether peer is currently inside its backoff window.
func (b *BackoffState) Active(peer string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[peer]
	if !ok {
		return false
	}
	return now.Before(st.until)
}

// Bump adds weight strikes for peer and recomputes its backoff window using
// a jitter term derived deterministically from (peer, strikes, uptime) so
// independent nodes converge on the same schedule given the same history.
func (b *BackoffState) Bump(peer string, now time.Time, weight int, uptimeMs uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[peer]
	if !ok {
		st = &peerBackoff{}
		b.states[peer] = st
	}
	st.strikes += weight
	if st.strikes > 100 {
		st.strikes = 100
	}
	exp := st.strikes / 5
	if exp > 8 {
		exp = 8
	}
	baseMs := uint64(50) << uint(exp)
	if baseMs > 5000 {
		baseMs = 5000
	}
	jitter := jitterMs(peer, st.strikes, uptimeMs)
	st.until = now.Add(time.Duration(baseMs+jitter) * time.Millisecond)
}

func jitterMs(peer string, strikes int, uptimeMs uint64) uint64 {
	h := sha256.New()
	h.Write([]byte(peer))
	var strikesBuf [8]byte
	binary.BigEndian.PutUint64(strikesBuf[:], uint64(strikes))
	h.Write(strikesBuf[:])
	var uptimeBuf [8]byte
	binary.BigEndian.PutUint64(uptimeBuf[:], uptimeMs)
	h.Write(uptimeBuf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]) % 250
}
