package gossip

import (
	"crypto/ed25519"
	"encoding/hex"
	"net"
	"sync"
	"time"

	"github.com/tidechain/tide-node/consensus"
	"github.com/tidechain/tide-node/reputation"
)

// Config tunes a Transport's admission policy.
type Config struct {
	Topic              string
	MaxPeersPerIP      int
	BasePeerRatePerSec int
	Allowlist          map[string]bool // hex-encoded ed25519 public keys; nil/empty means "allow all"
	ReplayCacheCap     int
	ReputationParams   reputation.Params

	// ProductionProfile drops legacy (all-zero replay-field) consensus
	// votes at the transport layer, before they reach signature
	// verification, shifting the cost of the downgrade-replay DoS class
	// away from the finalizer.
	ProductionProfile bool
}

func DefaultConfig(topic string) Config {
	return Config{
		Topic:              topic,
		MaxPeersPerIP:      4,
		BasePeerRatePerSec: 64,
		ReplayCacheCap:     defaultReplayCacheCap,
		ReputationParams:   reputation.DefaultParams(),
	}
}

type peerConn struct {
	session *Session
	ip      string
	limiter *peerRateLimiter
}

// Transport is the authenticated gossip layer binding peer sessions,
// replay suppression, backoff, rate limiting, and reputation into one
// admission pipeline in front of the consensus Finalizer.
type Transport struct {
	cfg       Config
	identity  *Identity
	finalizer *consensus.Finalizer

	replay   *ReplayCache
	backoff  *BackoffState
	score    *reputation.Score

	mu        sync.Mutex
	peers     map[string]*peerConn // keyed by hex peer id
	ipCounts  map[string]int
}

func NewTransport(cfg Config, identity *Identity, finalizer *consensus.Finalizer) *Transport {
	if cfg.ReplayCacheCap <= 0 {
		cfg.ReplayCacheCap = defaultReplayCacheCap
	}
	return &Transport{
		cfg:       cfg,
		identity:  identity,
		finalizer: finalizer,
		replay:    NewReplayCache(cfg.ReplayCacheCap),
		backoff:   NewBackoffState(),
		score:     reputation.New(cfg.ReputationParams),
		peers:     make(map[string]*peerConn),
		ipCounts:  make(map[string]int),
	}
}

func peerKey(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// AdmitInbound performs the full inbound policy pipeline after a session is
// established: allowlist check, per-IP cap, ban check, and backoff check.
// On success it registers the peer and returns its rate limiter; the caller
// drives the read loop with HandleInboundMessage.
func (t *Transport) AdmitInbound(session *Session, remoteAddr net.Addr) (*peerRateLimiter, error) {
	peer := peerKey(session.PeerID)
	now := time.Now()

	if len(t.cfg.Allowlist) > 0 && !t.cfg.Allowlist[peer] {
		return nil, transportErr(ErrDisallowed, "peer not in allowlist")
	}
	if t.score.IsBanned(peer, now) {
		return nil, transportErr(ErrBanned, "peer is banned")
	}
	if t.backoff.Active(peer, now) {
		return nil, transportErr(ErrRateLimited, "peer is in backoff window")
	}

	ip := hostOf(remoteAddr)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.peers[peer]; !exists {
		if ip != "" && t.ipCounts[ip] >= t.cfg.MaxPeersPerIP {
			return nil, transportErr(ErrDisallowed, "too many peers from this IP")
		}
		t.ipCounts[ip]++
	}
	pc := &peerConn{session: session, ip: ip, limiter: newPeerRateLimiter()}
	t.peers[peer] = pc
	return pc.limiter, nil
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// RemovePeer releases the IP-cap slot held by peer's connection.
func (t *Transport) RemovePeer(pub ed25519.PublicKey) {
	peer := peerKey(pub)
	t.mu.Lock()
	defer t.mu.Unlock()
	pc, ok := t.peers[peer]
	if !ok {
		return
	}
	if pc.ip != "" {
		t.ipCounts[pc.ip]--
		if t.ipCounts[pc.ip] <= 0 {
			delete(t.ipCounts, pc.ip)
		}
	}
	delete(t.peers, peer)
}

// HandleInboundMessage runs one payload through the full admission
// pipeline: size cap, rate limit, replay suppression, canonical decode,
// and (for votes) handoff to the finalizer. Good and bad observations are
// fed back into both the reputation score and the backoff state.
func (t *Transport) HandleInboundMessage(pub ed25519.PublicKey, limiter *peerRateLimiter, payload []byte) (*consensus.Commit, error) {
	peer := peerKey(pub)
	now := time.Now()

	if len(payload) > consensus.MaxWireMessageBytes {
		t.punish(peer, now, 20)
		return nil, transportErr(ErrOversize, "message exceeds wire size cap")
	}

	score := t.score.CurrentScore(peer, now)
	if !limiter.allow(now, t.cfg.BasePeerRatePerSec, score) {
		t.punish(peer, now, 5)
		return nil, transportErr(ErrRateLimited, "peer exceeded its message rate")
	}

	id := MessageID(payload)
	if t.replay.SeenOrInsert(id) {
		return nil, transportErr(ErrReplayed, "duplicate message")
	}

	msg, err := consensus.Decode(payload, consensus.MaxWireMessageBytes)
	if err != nil {
		t.punish(peer, now, 10)
		return nil, transportErr(ErrDecode, err.Error())
	}

	if t.cfg.ProductionProfile && msg.Kind == consensus.MsgKindVote && msg.Vote.Meta.IsLegacy() {
		t.punish(peer, now, 10)
		return nil, transportErr(ErrDecode, "legacy vote rejected under production profile")
	}

	t.reward(peer, now, 1)
	switch msg.Kind {
	case consensus.MsgKindVote:
		commit, verr := t.finalizer.ProcessVoteVerified(*msg.Vote)
		if verr != nil {
			t.punish(peer, now, 15)
			return nil, verr
		}
		return commit, nil
	case consensus.MsgKindCommit:
		if verr := t.finalizer.ProcessCommitVerified(*msg.Commit); verr != nil {
			t.punish(peer, now, 15)
			return nil, verr
		}
		return nil, nil
	default:
		t.punish(peer, now, 10)
		return nil, transportErr(ErrDecode, "unknown message kind")
	}
}

func (t *Transport) punish(peer string, now time.Time, weight int) {
	t.score.ObserveBad(peer, now, weight)
	uptimeMs := uint64(now.Sub(processStart).Milliseconds())
	t.backoff.Bump(peer, now, weight, uptimeMs)
}

func (t *Transport) reward(peer string, now time.Time, delta int) {
	t.score.ObserveGood(peer, now, delta)
}

// PublishVote canonically encodes and size-checks a vote for outbound send;
// callers are responsible for writing the result to each peer Session.
func PublishVote(v consensus.Vote) ([]byte, error) {
	b := consensus.EncodeVote(v)
	if len(b) > consensus.MaxWireMessageBytes {
		return nil, transportErr(ErrOversize, "encoded vote exceeds wire size cap")
	}
	return b, nil
}

// PublishCommit canonically encodes and size-checks a commit for outbound
// send.
func PublishCommit(c consensus.Commit) ([]byte, error) {
	b := consensus.EncodeCommit(c)
	if len(b) > consensus.MaxWireMessageBytes {
		return nil, transportErr(ErrOversize, "encoded commit exceeds wire size cap")
	}
	return b, nil
}

var processStart = time.Now()
