package consensus

import "encoding/binary"

// AppendU32 appends v as a 4-byte big-endian value to dst.
func AppendU32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendU64 appends v as an 8-byte big-endian value to dst.
func AppendU64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendLenBytes appends a fixed-width u64 length prefix followed by b.
func AppendLenBytes(dst []byte, b []byte) []byte {
	dst = AppendU64(dst, uint64(len(b)))
	return append(dst, b...)
}
