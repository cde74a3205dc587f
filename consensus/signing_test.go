package consensus

import "testing"

func TestSigningTranscriptAutoSelect(t *testing.T) {
	blockHash := Hash{1}
	voter := ValidatorId([]byte{1, 2, 3})

	legacy := VoteSigningBytesAuto(1, 0, VoteMeta{}, blockHash, voter)
	v1 := VoteSigningBytesV1(1, 0, blockHash, voter)
	if string(legacy) != string(v1) {
		t.Fatalf("legacy meta should select v1 transcript")
	}

	sealed := VoteSigningBytesAuto(1, 0, VoteMeta{Epoch: 1, MsgCounter: 1, SentTsMs: 1, TTLMs: 1}, blockHash, voter)
	v2 := VoteSigningBytesV2(1, 0, VoteMeta{Epoch: 1, MsgCounter: 1, SentTsMs: 1, TTLMs: 1}, blockHash, voter)
	if string(sealed) != string(v2) {
		t.Fatalf("non-legacy meta should select v2 transcript")
	}
	if string(v1) == string(v2) {
		t.Fatalf("v1 and v2 transcripts must never collide")
	}
}

func TestSigningTranscriptsAreDomainSeparated(t *testing.T) {
	blockHash := Hash{1}
	voter := ValidatorId([]byte{9})
	a := VoteSigningBytesV1(1, 0, blockHash, voter)
	b := VoteSigningBytesV1(1, 1, blockHash, voter)
	if string(a) == string(b) {
		t.Fatalf("transcripts for different rounds must differ")
	}
}
