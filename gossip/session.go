package gossip

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/chacha20poly1305"
)

// Session wraps a net.Conn with an authenticated encrypted channel: an
// ephemeral X25519 key exchange, authenticated by signing the ephemeral
// public key with the node's persistent Ed25519 identity, feeding a
// ChaCha20-Poly1305 AEAD that frames every subsequent message.
type Session struct {
	conn     net.Conn
	sendAEAD *aeadStream
	recvAEAD *aeadStream
	PeerID   ed25519.PublicKey
}

type aeadStream struct {
	aead    interface {
		Seal(dst, nonce, plaintext, ad []byte) []byte
		Open(dst, nonce, ciphertext, ad []byte) ([]byte, error)
		NonceSize() int
		Overhead() int
	}
	sendCounter uint64
}

func (s *aeadStream) nonce() []byte {
	n := make([]byte, s.aead.NonceSize())
	binary.BigEndian.PutUint64(n[s.aead.NonceSize()-8:], s.sendCounter)
	s.sendCounter++
	return n
}

// handshakeMessage is exchanged once by both sides to agree session keys.
type handshakeMessage struct {
	EphemeralPub [32]byte
	Signature    []byte // ed25519 signature over EphemeralPub by the sender's persistent identity
}

func encodeHandshake(m handshakeMessage) []byte {
	out := make([]byte, 0, 32+8+len(m.Signature))
	out = append(out, m.EphemeralPub[:]...)
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(m.Signature)))
	out = append(out, lenBuf[:]...)
	out = append(out, m.Signature...)
	return out
}

func decodeHandshake(b []byte) (handshakeMessage, error) {
	var m handshakeMessage
	if len(b) < 40 {
		return m, fmt.Errorf("gossip: handshake message truncated")
	}
	copy(m.EphemeralPub[:], b[:32])
	sigLen := binary.BigEndian.Uint64(b[32:40])
	if uint64(len(b)-40) != sigLen {
		return m, fmt.Errorf("gossip: handshake signature length mismatch")
	}
	m.Signature = b[40:]
	return m, nil
}

// EstablishSession runs the mutual handshake over conn and returns an
// encrypted Session. initiator determines send/receive key ordering only;
// both sides authenticate symmetrically.
func EstablishSession(conn net.Conn, id *Identity, initiator bool) (*Session, error) {
	curve := ecdh.X25519()
	ourEphemeral, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, transportErr(ErrIo, "generate ephemeral key: "+err.Error())
	}
	ourPubBytes := ourEphemeral.PublicKey().Bytes()
	var ourPub [32]byte
	copy(ourPub[:], ourPubBytes)
	sig := ed25519.Sign(id.Private, ourPub[:])

	ourMsg := encodeHandshake(handshakeMessage{EphemeralPub: ourPub, Signature: sig})
	if err := writeFrame(conn, ourMsg); err != nil {
		return nil, err
	}
	peerRaw, err := readFrame(conn, 1024)
	if err != nil {
		return nil, err
	}
	peerMsg, err := decodeHandshake(peerRaw)
	if err != nil {
		return nil, transportErr(ErrDecode, err.Error())
	}

	peerEphemeral, err := curve.NewPublicKey(peerMsg.EphemeralPub[:])
	if err != nil {
		return nil, transportErr(ErrDecode, "invalid peer ephemeral key: "+err.Error())
	}
	shared, err := ourEphemeral.ECDH(peerEphemeral)
	if err != nil {
		return nil, transportErr(ErrIo, "ecdh: "+err.Error())
	}

	// One key per direction, so both sides' nonce counters can start at zero
	// without reusing a (key, nonce) pair.
	i2r := sha256.Sum256(append([]byte("tide-session-i2r"), shared...))
	r2i := sha256.Sum256(append([]byte("tide-session-r2i"), shared...))
	sendKey, recvKey := i2r, r2i
	if !initiator {
		sendKey, recvKey = r2i, i2r
	}
	sendAEAD, err := chacha20poly1305.New(sendKey[:])
	if err != nil {
		return nil, transportErr(ErrIo, "init send aead: "+err.Error())
	}
	recvAEAD, err := chacha20poly1305.New(recvKey[:])
	if err != nil {
		return nil, transportErr(ErrIo, "init recv aead: "+err.Error())
	}

	return &Session{
		conn:     conn,
		sendAEAD: &aeadStream{aead: sendAEAD},
		recvAEAD: &aeadStream{aead: recvAEAD},
	}, nil
}

func (s *Session) Send(plaintext []byte) error {
	nonce := s.sendAEAD.nonce()
	ciphertext := s.sendAEAD.aead.Seal(nil, nonce, plaintext, nil)
	framed := append(append([]byte(nil), nonce...), ciphertext...)
	return writeFrame(s.conn, framed)
}

func (s *Session) Recv(maxLen int) ([]byte, error) {
	framed, err := readFrame(s.conn, maxLen+s.recvAEAD.aead.NonceSize()+s.recvAEAD.aead.Overhead())
	if err != nil {
		return nil, err
	}
	nonceSize := s.recvAEAD.aead.NonceSize()
	if len(framed) < nonceSize {
		return nil, transportErr(ErrDecode, "frame shorter than nonce")
	}
	nonce := framed[:nonceSize]
	ciphertext := framed[nonceSize:]
	plaintext, err := s.recvAEAD.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, transportErr(ErrBadSignature, "aead open: "+err.Error())
	}
	return plaintext, nil
}

func writeFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return transportErr(ErrIo, "write frame length: "+err.Error())
	}
	if _, err := w.Write(b); err != nil {
		return transportErr(ErrIo, "write frame body: "+err.Error())
	}
	return nil
}

func readFrame(r io.Reader, maxLen int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, transportErr(ErrIo, "read frame length: "+err.Error())
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int(n) > maxLen {
		return nil, transportErr(ErrOversize, "frame exceeds cap")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, transportErr(ErrIo, "read frame body: "+err.Error())
	}
	return buf, nil
}
