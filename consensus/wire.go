package consensus

import (
	"encoding/binary"
	"fmt"
)

// cursor is a forward-only reader over a fixed byte slice. All canonical
// decoding goes through it so truncation and trailing-byte checks live in
// one place.
type cursor struct {
	b   []byte
	pos int
}

func newCursor(b []byte) *cursor {
	return &cursor{b: b, pos: 0}
}

func (c *cursor) remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *cursor) finished() bool {
	return c.pos == len(c.b)
}

func (c *cursor) readExact(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, tideErr(ErrCodec, "truncated")
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *cursor) readU8() (byte, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readU32() (uint32, error) {
	b, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursor) readU64() (uint64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// readLenBytes reads a fixed-width u64 length prefix followed by that many
// bytes. maxLen bounds the length to defend against container-size bombs
// inside an otherwise within-cap message.
func (c *cursor) readLenBytes(maxLen uint64) ([]byte, error) {
	n, err := c.readU64()
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, &TideError{Code: ErrCodec, Msg: fmt.Sprintf("container length %d exceeds cap %d", n, maxLen)}
	}
	return c.readExact(int(n))
}
