package consensus

import (
	"sort"
	"sync"

	"github.com/tidechain/tide-node/keystore"
)

// Slashing is notified when a validator is caught double-voting. A
// NoopSlashing is wired by default; a staking subsystem can supply its own.
type Slashing interface {
	OnDoubleVote(offender ValidatorId)
}

type NoopSlashing struct{}

func (NoopSlashing) OnDoubleVote(ValidatorId) {}

// Clock returns the current wall-clock time in milliseconds since the Unix
// epoch. Tests substitute a deterministic clock; a zero return is treated
// as "unavailable" and rejects non-legacy votes conservatively.
type Clock func() uint64

// TideConfig parameterizes freshness and replay enforcement.
type TideConfig struct {
	Validators     []ValidatorId
	MaxClockSkewMs uint64
	MaxTTLMs       uint64
	RequireEpoch   bool
}

// DefaultTideConfig returns the non-production-profile defaults.
func DefaultTideConfig(validators []ValidatorId) TideConfig {
	return TideConfig{
		Validators:     validators,
		MaxClockSkewMs: 10_000,
		MaxTTLMs:       60_000,
		RequireEpoch:   false,
	}
}

type replayState struct {
	epoch        uint64
	lastCounter  uint64
	lastSentTsMs uint64
}

type voteRecord struct {
	blockHash Hash
	signature Signature
	meta      VoteMeta
}

type roundVotes map[string]voteRecord // keyed by string(voter bytes)

// Finalizer ingests votes and commits for a single validator set and
// produces a Commit as soon as one (block_hash, meta) group reaches
// threshold. It holds no notion of height pipelining: votes for every
// (height, round) it has seen stay in memory for the Finalizer's lifetime,
// and nothing prunes them.
type Finalizer struct {
	cfg      TideConfig
	slashing Slashing
	clock    Clock

	mu     sync.Mutex
	votes  map[uint64]map[uint64]roundVotes
	replay map[string]replayState
}

func NewFinalizer(cfg TideConfig, slashing Slashing, clock Clock) *Finalizer {
	if slashing == nil {
		slashing = NoopSlashing{}
	}
	if clock == nil {
		clock = func() uint64 { return 0 }
	}
	return &Finalizer{
		cfg:      cfg,
		slashing: slashing,
		clock:    clock,
		votes:    make(map[uint64]map[uint64]roundVotes),
		replay:   make(map[string]replayState),
	}
}

// Threshold returns floor(2N/3)+1 for the configured validator set.
func (f *Finalizer) Threshold() int {
	return threshold(len(f.cfg.Validators))
}

func threshold(n int) int {
	return (2*n)/3 + 1
}

func (f *Finalizer) isValidator(id ValidatorId) bool {
	for _, v := range f.cfg.Validators {
		if string(v) == string(id) {
			return true
		}
	}
	return false
}

// ProcessVoteVerified ingests an already-decoded vote, enforcing
// membership, freshness, replay, signature, and double-vote rules in that
// order. It returns the assembled Commit if this vote completed the
// threshold, or nil if not (a nil Commit with a nil error is the common
// case).
func (f *Finalizer) ProcessVoteVerified(v Vote) (*Commit, error) {
	if !f.isValidator(v.Voter) {
		return nil, tideErr(ErrUnknownValidator, "voter not in validator set")
	}
	if err := f.checkFreshness(v.Meta); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkReplayLocked(v.Voter, v.Meta); err != nil {
		return nil, err
	}
	pub, ok := v.Voter.AsPublicKeyBytes()
	if !ok {
		return nil, tideErr(ErrBadSignature, "voter id is not a 32-byte public key")
	}
	transcript := VoteSigningBytesAuto(v.Height, v.Round, v.Meta, v.BlockHash, v.Voter)
	if !keystore.VerifySignature(pub, transcript, v.Signature) {
		return nil, tideErr(ErrBadSignature, "vote signature verification failed")
	}

	f.recordReplayLocked(v.Voter, v.Meta)
	return f.processVoteInnerLocked(v)
}

// checkFreshness applies the non-legacy freshness rules. Legacy votes
// (all-zero meta) bypass freshness entirely.
func (f *Finalizer) checkFreshness(meta VoteMeta) error {
	if meta.IsLegacy() {
		return nil
	}
	if uint64(meta.TTLMs) > f.cfg.MaxTTLMs {
		return tideErr(ErrReplay, "ttl exceeds maximum")
	}
	now := f.clock()
	if now == 0 {
		return tideErr(ErrReplay, "local clock unavailable")
	}
	if meta.SentTsMs != 0 {
		var skew uint64
		if now > meta.SentTsMs {
			skew = now - meta.SentTsMs
		} else {
			skew = meta.SentTsMs - now
		}
		if skew > f.cfg.MaxClockSkewMs {
			return tideErr(ErrReplay, "clock skew exceeds maximum")
		}
	}
	if meta.SentTsMs != 0 && meta.TTLMs != 0 {
		if now > meta.SentTsMs+uint64(meta.TTLMs)+f.cfg.MaxClockSkewMs {
			return tideErr(ErrReplay, "message expired")
		}
	}
	return nil
}

// checkReplayLocked applies the replay-counter rules. Caller holds f.mu.
func (f *Finalizer) checkReplayLocked(voter ValidatorId, meta VoteMeta) error {
	if meta.IsLegacy() {
		if f.cfg.RequireEpoch {
			return tideErr(ErrReplay, "legacy messages rejected under require-epoch")
		}
		return nil
	}
	if f.cfg.RequireEpoch && meta.Epoch == 0 {
		return tideErr(ErrReplay, "epoch 0 rejected under require-epoch")
	}
	prev, ok := f.replay[string(voter)]
	if !ok || prev.epoch != meta.Epoch {
		return nil
	}
	if meta.MsgCounter != 0 && meta.MsgCounter <= prev.lastCounter {
		return tideErr(ErrReplay, "message counter did not advance")
	}
	if meta.SentTsMs != 0 && prev.lastSentTsMs != 0 && meta.SentTsMs < prev.lastSentTsMs {
		return tideErr(ErrReplay, "sent timestamp regressed")
	}
	return nil
}

func (f *Finalizer) recordReplayLocked(voter ValidatorId, meta VoteMeta) {
	if meta.IsLegacy() {
		return
	}
	f.replay[string(voter)] = replayState{
		epoch:        meta.Epoch,
		lastCounter:  meta.MsgCounter,
		lastSentTsMs: meta.SentTsMs,
	}
}

// processVoteInnerLocked records the vote and checks for threshold. Caller
// holds f.mu.
func (f *Finalizer) processVoteInnerLocked(v Vote) (*Commit, error) {
	byRound, ok := f.votes[v.Height]
	if !ok {
		byRound = make(map[uint64]roundVotes)
		f.votes[v.Height] = byRound
	}
	rv, ok := byRound[v.Round]
	if !ok {
		rv = make(roundVotes)
		byRound[v.Round] = rv
	}

	key := string(v.Voter)
	if existing, ok := rv[key]; ok {
		if existing.blockHash == v.BlockHash && existing.meta == v.Meta {
			return nil, nil
		}
		f.slashing.OnDoubleVote(v.Voter)
		return nil, tideErr(ErrDoubleVote, "voter signed two distinct messages at the same height/round")
	}
	rv[key] = voteRecord{blockHash: v.BlockHash, signature: v.Signature, meta: v.Meta}

	// Only the vote that brings its (block_hash, meta) group to exactly the
	// threshold emits a commit; later matching votes are accepted silently.
	matching := 0
	for _, rec := range rv {
		if rec.blockHash == v.BlockHash && rec.meta == v.Meta {
			matching++
		}
	}
	if matching != threshold(len(f.cfg.Validators)) {
		return nil, nil
	}
	return f.tryBuildCommitLocked(v.Height, v.Round, rv)
}

type voteGroupKey struct {
	blockHash Hash
	meta      VoteMeta
}

func (f *Finalizer) tryBuildCommitLocked(height, round uint64, rv roundVotes) (*Commit, error) {
	need := threshold(len(f.cfg.Validators))
	groups := make(map[voteGroupKey][]SignerEntry)
	order := make([]voteGroupKey, 0, len(rv))
	for voterStr, rec := range rv {
		gk := voteGroupKey{blockHash: rec.blockHash, meta: rec.meta}
		if _, seen := groups[gk]; !seen {
			order = append(order, gk)
		}
		groups[gk] = append(groups[gk], SignerEntry{Voter: ValidatorId(voterStr), Signature: rec.signature})
	}
	for _, gk := range order {
		entries := groups[gk]
		if len(entries) < need {
			continue
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Voter.Less(entries[j].Voter)
		})
		return &Commit{
			Height:     height,
			Round:      round,
			Meta:       gk.meta,
			BlockHash:  gk.blockHash,
			Signatures: entries,
		}, nil
	}
	return nil, nil
}

// ProcessCommitVerified validates a pre-assembled Commit arriving over
// gossip (rather than built locally from votes).
func (f *Finalizer) ProcessCommitVerified(c Commit) error {
	if err := f.checkFreshness(c.Meta); err != nil {
		return err
	}
	if f.cfg.RequireEpoch && c.Meta.Epoch == 0 {
		return tideErr(ErrReplay, "epoch 0 rejected under require-epoch")
	}
	need := threshold(len(f.cfg.Validators))
	if len(c.Signatures) < need {
		return tideErr(ErrNotEnoughVotes, "commit has fewer signatures than threshold")
	}
	seen := make(map[string]bool, len(c.Signatures))
	for _, entry := range c.Signatures {
		key := string(entry.Voter)
		if seen[key] {
			return tideErr(ErrNotEnoughVotes, "commit signatures contain a duplicate voter")
		}
		seen[key] = true
		if !f.isValidator(entry.Voter) {
			return tideErr(ErrUnknownValidator, "commit signer not in validator set")
		}
		pub, ok := entry.Voter.AsPublicKeyBytes()
		if !ok {
			return tideErr(ErrBadSignature, "signer id is not a 32-byte public key")
		}
		transcript := VoteSigningBytesAuto(c.Height, c.Round, c.Meta, c.BlockHash, entry.Voter)
		if !keystore.VerifySignature(pub, transcript, entry.Signature) {
			return tideErr(ErrBadSignature, "commit signature verification failed")
		}
	}
	return nil
}
