package consensus

import "testing"

func TestVoteRoundTrip(t *testing.T) {
	v := Vote{
		Height:    42,
		Round:     1,
		Meta:      VoteMeta{Epoch: 3, MsgCounter: 7, SentTsMs: 123456, TTLMs: 30000},
		BlockHash: Hash{0xaa, 0xbb},
		Voter:     ValidatorId([]byte{1, 2, 3, 4}),
		Signature: Signature([]byte{5, 6, 7, 8}),
	}
	encoded := EncodeVote(v)
	decoded, err := DecodeVote(encoded, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Height != v.Height || decoded.Round != v.Round || decoded.Meta != v.Meta || decoded.BlockHash != v.BlockHash {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, v)
	}
}

func TestCommitRoundTrip(t *testing.T) {
	c := Commit{
		Height:    1,
		Round:     0,
		BlockHash: Hash{1},
		Signatures: []SignerEntry{
			{Voter: ValidatorId([]byte{1}), Signature: Signature([]byte{0xaa})},
			{Voter: ValidatorId([]byte{2}), Signature: Signature([]byte{0xbb})},
		},
	}
	encoded := EncodeCommit(c)
	decoded, err := DecodeCommit(encoded, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Signatures) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(decoded.Signatures))
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	v := Vote{Voter: ValidatorId([]byte{1}), Signature: Signature([]byte{2})}
	encoded := append(EncodeVote(v), 0xff)
	if _, err := DecodeVote(encoded, 0); err == nil {
		t.Fatalf("expected trailing-byte rejection")
	}
}

func TestDecodeRejectsOversizeMessage(t *testing.T) {
	v := Vote{Voter: ValidatorId([]byte{1}), Signature: Signature([]byte{2})}
	encoded := EncodeVote(v)
	if _, err := Decode(encoded, len(encoded)-1); err == nil {
		t.Fatalf("expected oversize rejection")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	v := Vote{Voter: ValidatorId([]byte{1}), Signature: Signature([]byte{2})}
	encoded := EncodeVote(v)
	if _, err := DecodeVote(encoded[:len(encoded)-2], 0); err == nil {
		t.Fatalf("expected truncation rejection")
	}
}

func TestDecodeWrongKind(t *testing.T) {
	c := Commit{BlockHash: Hash{1}}
	encoded := EncodeCommit(c)
	if _, err := DecodeVote(encoded, 0); err == nil {
		t.Fatalf("expected kind mismatch error")
	}
}
