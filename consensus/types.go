package consensus

import "bytes"

// Hash is a 32-byte content digest, compared lexicographically.
type Hash [32]byte

func (h Hash) Less(o Hash) bool {
	return bytes.Compare(h[:], o[:]) < 0
}

// Signature is an opaque signature byte string. The Ed25519 backend this
// repository ships produces and expects exactly 64 bytes.
type Signature []byte

// ValidatorId is an opaque validator identity. When its length is 32 it
// doubles as an Ed25519 public key.
type ValidatorId []byte

func (v ValidatorId) AsPublicKeyBytes() ([32]byte, bool) {
	var out [32]byte
	if len(v) != 32 {
		return out, false
	}
	copy(out[:], v)
	return out, true
}

func (v ValidatorId) Less(o ValidatorId) bool {
	return bytes.Compare(v, o) < 0
}

// VoteMeta is the replay-window metadata sealed into a v2 vote's signature.
// The all-zero value marks a legacy (v1) vote.
type VoteMeta struct {
	Epoch      uint64
	MsgCounter uint64
	SentTsMs   uint64
	TTLMs      uint32
}

// IsLegacy reports whether m selects the v1 (unsealed) signing transcript.
func (m VoteMeta) IsLegacy() bool {
	return m.Epoch == 0 && m.MsgCounter == 0 && m.SentTsMs == 0 && m.TTLMs == 0
}

// Vote is a single validator's vote for a block at a given height/round.
type Vote struct {
	Height    uint64
	Round     uint64
	Meta      VoteMeta
	BlockHash Hash
	Voter     ValidatorId
	Signature Signature
}

// Commit bundles the signatures that reached threshold for one
// (height, round, block_hash, meta) tuple.
type Commit struct {
	Height     uint64
	Round      uint64
	Meta       VoteMeta
	BlockHash  Hash
	Signatures []SignerEntry
}

// SignerEntry is one (validator, signature) pair inside a Commit. Commit's
// Signatures slice is kept sorted by ValidatorId so two independently built
// commits over the same signer set encode identically.
type SignerEntry struct {
	Voter     ValidatorId
	Signature Signature
}

// MsgKind discriminates the wire union carried by the gossip transport.
type MsgKind uint8

const (
	MsgKindVote   MsgKind = 1
	MsgKindCommit MsgKind = 2
)

// WireMessage is the decoded form of one on-wire consensus message.
type WireMessage struct {
	Kind   MsgKind
	Vote   *Vote
	Commit *Commit
}
