package gossip

import (
	"encoding/binary"
	"fmt"
)

// PingPayload and PongPayload keep the transport's liveness probe apart from
// consensus traffic; both encode as an 8-byte nonce.
type PingPayload struct {
	Nonce uint64
}

func EncodePingPayload(p PingPayload) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], p.Nonce)
	return out[:]
}

func DecodePingPayload(b []byte) (PingPayload, error) {
	if len(b) != 8 {
		return PingPayload{}, fmt.Errorf("gossip: ping payload must be 8 bytes")
	}
	return PingPayload{Nonce: binary.BigEndian.Uint64(b)}, nil
}

type PongPayload struct {
	Nonce uint64
}

func EncodePongPayload(p PongPayload) []byte {
	return EncodePingPayload(PingPayload{Nonce: p.Nonce})
}

func DecodePongPayload(b []byte) (PongPayload, error) {
	p, err := DecodePingPayload(b)
	if err != nil {
		return PongPayload{}, err
	}
	return PongPayload{Nonce: p.Nonce}, nil
}
