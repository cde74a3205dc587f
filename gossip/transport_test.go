package gossip

import (
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/tidechain/tide-node/consensus"
)

func signTestVote(t *testing.T, priv ed25519.PrivateKey, v consensus.Vote) consensus.Vote {
	t.Helper()
	transcript := consensus.VoteSigningBytesAuto(v.Height, v.Round, v.Meta, v.BlockHash, v.Voter)
	v.Signature = ed25519.Sign(priv, transcript)
	return v
}

func newSingleValidatorTransport(t *testing.T) (*Transport, ed25519.PrivateKey, consensus.ValidatorId) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate validator key: %v", err)
	}
	voter := consensus.ValidatorId(pub)
	finalizer := consensus.NewFinalizer(consensus.DefaultTideConfig([]consensus.ValidatorId{voter}), nil, nil)

	idPub, idPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate identity key: %v", err)
	}
	identity := &Identity{Public: idPub, Private: idPriv}

	transport := NewTransport(DefaultConfig("tide-test"), identity, finalizer)
	return transport, priv, voter
}

func TestHandleInboundMessageBuildsCommitAtThreshold(t *testing.T) {
	transport, priv, voter := newSingleValidatorTransport(t)

	vote := signTestVote(t, priv, consensus.Vote{
		Height:    1,
		Round:     0,
		BlockHash: consensus.Hash{0xAA},
		Voter:     voter,
	})
	payload, err := PublishVote(vote)
	if err != nil {
		t.Fatalf("publish vote: %v", err)
	}

	limiter := newPeerRateLimiter()
	commit, err := transport.HandleInboundMessage(ed25519.PublicKey(voter), limiter, payload)
	if err != nil {
		t.Fatalf("handle inbound message: %v", err)
	}
	if commit == nil {
		t.Fatalf("expected a commit at threshold 1")
	}
	if len(commit.Signatures) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(commit.Signatures))
	}
}

func TestHandleInboundMessageRejectsReplayedPayload(t *testing.T) {
	transport, priv, voter := newSingleValidatorTransport(t)
	vote := signTestVote(t, priv, consensus.Vote{
		Height:    1,
		BlockHash: consensus.Hash{0xBB},
		Voter:     voter,
	})
	payload, _ := PublishVote(vote)
	limiter := newPeerRateLimiter()

	if _, err := transport.HandleInboundMessage(ed25519.PublicKey(voter), limiter, payload); err != nil {
		t.Fatalf("first delivery should succeed: %v", err)
	}
	if _, err := transport.HandleInboundMessage(ed25519.PublicKey(voter), limiter, payload); err == nil {
		t.Fatalf("duplicate payload should be rejected as a replay")
	}
}

func TestHandleInboundMessageRejectsOversizePayload(t *testing.T) {
	transport, _, voter := newSingleValidatorTransport(t)
	oversized := make([]byte, consensus.MaxWireMessageBytes+1)
	limiter := newPeerRateLimiter()
	if _, err := transport.HandleInboundMessage(ed25519.PublicKey(voter), limiter, oversized); err == nil {
		t.Fatalf("oversized payload should be rejected")
	}
}

func TestHandleInboundMessagePunishesBadSignature(t *testing.T) {
	transport, _, voter := newSingleValidatorTransport(t)
	badVote := consensus.Vote{
		Height:    1,
		BlockHash: consensus.Hash{0xCC},
		Voter:     voter,
		Signature: make([]byte, 64),
	}
	payload, _ := PublishVote(badVote)
	limiter := newPeerRateLimiter()
	if _, err := transport.HandleInboundMessage(ed25519.PublicKey(voter), limiter, payload); err == nil {
		t.Fatalf("expected bad signature to be rejected")
	}
	score := transport.score.CurrentScore(peerKey(ed25519.PublicKey(voter)), time.Now())
	if score >= 0 {
		t.Fatalf("reputation should have been penalized, got score %d", score)
	}
}

func TestAdmitInboundEnforcesAllowlist(t *testing.T) {
	transport, _, _ := newSingleValidatorTransport(t)
	allowedPub, _, _ := ed25519.GenerateKey(nil)
	transport.cfg.Allowlist = map[string]bool{peerKey(allowedPub): true}

	deniedPub, _, _ := ed25519.GenerateKey(nil)
	fakeSession := &Session{PeerID: deniedPub}
	if _, err := transport.AdmitInbound(fakeSession, fakeAddr("10.0.0.1:9000")); err == nil {
		t.Fatalf("non-allowlisted peer should be rejected")
	}

	allowedSession := &Session{PeerID: allowedPub}
	if _, err := transport.AdmitInbound(allowedSession, fakeAddr("10.0.0.2:9000")); err != nil {
		t.Fatalf("allowlisted peer should be admitted: %v", err)
	}
}

func TestHandleInboundMessageDropsLegacyVoteUnderProductionProfile(t *testing.T) {
	transport, priv, voter := newSingleValidatorTransport(t)
	transport.cfg.ProductionProfile = true

	vote := signTestVote(t, priv, consensus.Vote{
		Height:    1,
		BlockHash: consensus.Hash{0xDD},
		Voter:     voter,
	})
	payload, err := PublishVote(vote)
	if err != nil {
		t.Fatalf("publish vote: %v", err)
	}

	limiter := newPeerRateLimiter()
	commit, err := transport.HandleInboundMessage(ed25519.PublicKey(voter), limiter, payload)
	if err == nil {
		t.Fatalf("expected legacy vote to be rejected under production profile")
	}
	if commit != nil {
		t.Fatalf("expected no commit for a dropped legacy vote")
	}
}

type fakeAddr string

func (f fakeAddr) Network() string { return "tcp" }
func (f fakeAddr) String() string  { return string(f) }

var _ net.Addr = fakeAddr("")
