package consensus

import "fmt"

// MaxWireMessageBytes is the maximum permitted size of one on-wire
// consensus message, enforced by the gossip transport before decode and
// again here as a decoder-internal cap.
const MaxWireMessageBytes = 256 * 1024

// EncodeValidatorId returns the canonical length-prefixed encoding of a
// ValidatorId's raw bytes. Used both on the wire and inside signing
// transcripts, so a transcript stays unambiguous regardless of id length.
func EncodeValidatorId(v ValidatorId) []byte {
	return AppendLenBytes(nil, v)
}

func encodeMeta(dst []byte, m VoteMeta) []byte {
	dst = AppendU64(dst, m.Epoch)
	dst = AppendU64(dst, m.MsgCounter)
	dst = AppendU64(dst, m.SentTsMs)
	dst = AppendU32(dst, m.TTLMs)
	return dst
}

func decodeMeta(c *cursor) (VoteMeta, error) {
	var m VoteMeta
	var err error
	if m.Epoch, err = c.readU64(); err != nil {
		return m, err
	}
	if m.MsgCounter, err = c.readU64(); err != nil {
		return m, err
	}
	if m.SentTsMs, err = c.readU64(); err != nil {
		return m, err
	}
	v32, err := c.readU32()
	if err != nil {
		return m, err
	}
	m.TTLMs = v32
	return m, nil
}

// EncodeVote serializes a Vote into its canonical byte representation.
func EncodeVote(v Vote) []byte {
	out := make([]byte, 0, 128)
	out = append(out, byte(MsgKindVote))
	out = AppendU64(out, v.Height)
	out = AppendU64(out, v.Round)
	out = encodeMeta(out, v.Meta)
	out = append(out, v.BlockHash[:]...)
	out = AppendLenBytes(out, v.Voter)
	out = AppendLenBytes(out, v.Signature)
	return out
}

// EncodeCommit serializes a Commit into its canonical byte representation.
// Signatures must already be sorted by ValidatorId (the finalizer
// guarantees this on assembly).
func EncodeCommit(c Commit) []byte {
	out := make([]byte, 0, 128)
	out = append(out, byte(MsgKindCommit))
	out = AppendU64(out, c.Height)
	out = AppendU64(out, c.Round)
	out = encodeMeta(out, c.Meta)
	out = append(out, c.BlockHash[:]...)
	out = AppendU64(out, uint64(len(c.Signatures)))
	for _, e := range c.Signatures {
		out = AppendLenBytes(out, e.Voter)
		out = AppendLenBytes(out, e.Signature)
	}
	return out
}

// Decode parses a canonical on-wire message, enforcing the byte cap both on
// the raw input and on every internal container length, and rejecting any
// trailing bytes.
func Decode(b []byte, cap int) (WireMessage, error) {
	var out WireMessage
	if cap <= 0 {
		cap = MaxWireMessageBytes
	}
	if len(b) > cap {
		return out, &TideError{Code: ErrCodec, Msg: fmt.Sprintf("message of %d bytes exceeds cap %d", len(b), cap)}
	}
	c := newCursor(b)
	kind, err := c.readU8()
	if err != nil {
		return out, err
	}
	switch MsgKind(kind) {
	case MsgKindVote:
		v, err := decodeVoteBody(c, uint64(cap))
		if err != nil {
			return out, err
		}
		out.Kind = MsgKindVote
		out.Vote = v
	case MsgKindCommit:
		cm, err := decodeCommitBody(c, uint64(cap))
		if err != nil {
			return out, err
		}
		out.Kind = MsgKindCommit
		out.Commit = cm
	default:
		return out, &TideError{Code: ErrCodec, Msg: fmt.Sprintf("unknown message kind %d", kind)}
	}
	if !c.finished() {
		return out, tideErr(ErrCodec, "trailing bytes")
	}
	return out, nil
}

// DecodeVote decodes a single Vote message, rejecting any other kind.
func DecodeVote(b []byte, cap int) (*Vote, error) {
	msg, err := Decode(b, cap)
	if err != nil {
		return nil, err
	}
	if msg.Kind != MsgKindVote {
		return nil, tideErr(ErrCodec, "expected vote message")
	}
	return msg.Vote, nil
}

// DecodeCommit decodes a single Commit message, rejecting any other kind.
func DecodeCommit(b []byte, cap int) (*Commit, error) {
	msg, err := Decode(b, cap)
	if err != nil {
		return nil, err
	}
	if msg.Kind != MsgKindCommit {
		return nil, tideErr(ErrCodec, "expected commit message")
	}
	return msg.Commit, nil
}

func decodeVoteBody(c *cursor, cap uint64) (*Vote, error) {
	v := &Vote{}
	var err error
	if v.Height, err = c.readU64(); err != nil {
		return nil, err
	}
	if v.Round, err = c.readU64(); err != nil {
		return nil, err
	}
	if v.Meta, err = decodeMeta(c); err != nil {
		return nil, err
	}
	hb, err := c.readExact(32)
	if err != nil {
		return nil, err
	}
	copy(v.BlockHash[:], hb)
	voter, err := c.readLenBytes(cap)
	if err != nil {
		return nil, err
	}
	v.Voter = ValidatorId(append([]byte(nil), voter...))
	sig, err := c.readLenBytes(cap)
	if err != nil {
		return nil, err
	}
	v.Signature = Signature(append([]byte(nil), sig...))
	return v, nil
}

func decodeCommitBody(c *cursor, cap uint64) (*Commit, error) {
	cm := &Commit{}
	var err error
	if cm.Height, err = c.readU64(); err != nil {
		return nil, err
	}
	if cm.Round, err = c.readU64(); err != nil {
		return nil, err
	}
	if cm.Meta, err = decodeMeta(c); err != nil {
		return nil, err
	}
	hb, err := c.readExact(32)
	if err != nil {
		return nil, err
	}
	copy(cm.BlockHash[:], hb)
	n, err := c.readU64()
	if err != nil {
		return nil, err
	}
	if n > cap {
		return nil, &TideError{Code: ErrCodec, Msg: fmt.Sprintf("signature count %d exceeds cap", n)}
	}
	cm.Signatures = make([]SignerEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		voter, err := c.readLenBytes(cap)
		if err != nil {
			return nil, err
		}
		sig, err := c.readLenBytes(cap)
		if err != nil {
			return nil, err
		}
		cm.Signatures = append(cm.Signatures, SignerEntry{
			Voter:     ValidatorId(append([]byte(nil), voter...)),
			Signature: Signature(append([]byte(nil), sig...)),
		})
	}
	return cm, nil
}
