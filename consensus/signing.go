package consensus

// Domain-separated signing transcripts. These bytes are part of the wire
// protocol: changing either prefix is a hard fork.
const (
	voteDomainV1 = "Amunchain-Tide-Vote-v1"
	voteDomainV2 = "Amunchain-Tide-Vote-v2"
)

// VoteSigningBytesV1 builds the legacy (unsealed) vote transcript.
func VoteSigningBytesV1(height, round uint64, blockHash Hash, voter ValidatorId) []byte {
	out := make([]byte, 0, len(voteDomainV1)+8+8+32+8+len(voter))
	out = append(out, voteDomainV1...)
	out = AppendU64(out, height)
	out = AppendU64(out, round)
	out = append(out, blockHash[:]...)
	out = append(out, EncodeValidatorId(voter)...)
	return out
}

// VoteSigningBytesV2 builds the sealed vote transcript, binding the replay
// metadata into the signature.
func VoteSigningBytesV2(height, round uint64, meta VoteMeta, blockHash Hash, voter ValidatorId) []byte {
	out := make([]byte, 0, len(voteDomainV2)+8+8+8+8+8+4+32+8+len(voter))
	out = append(out, voteDomainV2...)
	out = AppendU64(out, height)
	out = AppendU64(out, round)
	out = AppendU64(out, meta.Epoch)
	out = AppendU64(out, meta.MsgCounter)
	out = AppendU64(out, meta.SentTsMs)
	out = AppendU32(out, meta.TTLMs)
	out = append(out, blockHash[:]...)
	out = append(out, EncodeValidatorId(voter)...)
	return out
}

// VoteSigningBytesAuto selects v1 or v2 per the all-zero-meta rule.
func VoteSigningBytesAuto(height, round uint64, meta VoteMeta, blockHash Hash, voter ValidatorId) []byte {
	if meta.IsLegacy() {
		return VoteSigningBytesV1(height, round, blockHash, voter)
	}
	return VoteSigningBytesV2(height, round, meta, blockHash, voter)
}
