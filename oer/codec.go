// Package oer implements the subset of ITU-T X.696 Octet Encoding Rules
// used by the wire packets exchanged between connectors: variable-length
// unsigned integers, variable- and fixed-length octet strings, and
// big-endian fixed-width unsigned integers.
//
// Every Read* function takes the source buffer and a cursor offset and
// returns the decoded value plus the number of bytes consumed; every
// Write* function appends to a growable buffer. Reads never copy octet
// string payloads: the returned slices alias the input buffer, so
// mutating the source after a read is observable in the result. This is
// a deliberate contract, not an incidental optimization — callers that
// need an owned copy must clone explicitly.
package oer

import "encoding/binary"

// maxVarUIntLen is the largest number of trailing bytes a VarUInt length
// prefix may declare (a uint64 occupies at most 8 bytes).
const maxVarUIntLen = 8

// ReadVarUInt decodes a variable-length unsigned integer starting at
// buf[offset]. If the first byte's high bit is clear, that byte alone is
// the value. Otherwise the low seven bits name a length L in [1,8], and
// the following L bytes are a big-endian unsigned integer.
func ReadVarUInt(buf []byte, offset int) (uint64, int, error) {
	if offset < 0 || offset >= len(buf) {
		return 0, 0, newUnderflow("ReadVarUInt")
	}

	b0 := buf[offset]
	if b0 < 0x80 {
		return uint64(b0), 1, nil
	}

	length := int(b0 & 0x7f)
	if length == 0 || length > maxVarUIntLen {
		return 0, 0, newOutOfRange("ReadVarUInt")
	}
	if offset+1+length > len(buf) {
		return 0, 0, newUnderflow("ReadVarUInt")
	}

	var value uint64
	for _, b := range buf[offset+1 : offset+1+length] {
		value = value<<8 | uint64(b)
	}

	return value, length + 1, nil
}

// WriteVarUInt appends the minimal VarUInt encoding of v to dst and
// returns the extended slice. Values <= 127 take one byte; larger values
// take the smallest big-endian width that holds them, prefixed by
// 0x80|L.
func WriteVarUInt(dst []byte, v uint64) []byte {
	if v < 0x80 {
		return append(dst, byte(v))
	}

	length := minimalUintLen(v)
	dst = append(dst, 0x80|byte(length))

	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[8-length:]...)
}

// minimalUintLen returns the smallest number of bytes needed to hold v in
// a big-endian unsigned representation, in [1,8].
func minimalUintLen(v uint64) int {
	n := 1
	for v >= 1<<8 {
		v >>= 8
		n++
	}
	return n
}

// ReadVarOctetString decodes a VarUInt length prefix followed by that
// many octets, returning a zero-copy view over buf.
func ReadVarOctetString(buf []byte, offset int) ([]byte, int, error) {
	length, n, err := ReadVarUInt(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	start := offset + n
	end := start + int(length)
	if end < start || end > len(buf) {
		return nil, 0, newUnderflow("ReadVarOctetString")
	}

	return buf[start:end:end], end - offset, nil
}

// WriteVarOctetString appends a VarUInt length prefix and the payload
// itself to dst.
func WriteVarOctetString(dst []byte, payload []byte) []byte {
	dst = WriteVarUInt(dst, uint64(len(payload)))
	return append(dst, payload...)
}

// ReadOctetString returns a zero-copy, n-byte view of buf starting at
// offset.
func ReadOctetString(buf []byte, offset, n int) ([]byte, int, error) {
	end := offset + n
	if offset < 0 || end < offset || end > len(buf) {
		return nil, 0, newUnderflow("ReadOctetString")
	}
	return buf[offset:end:end], n, nil
}

// WriteOctetString appends the fixed-length payload verbatim.
func WriteOctetString(dst []byte, payload []byte) []byte {
	return append(dst, payload...)
}

// ReadUInt8 decodes a single big-endian byte.
func ReadUInt8(buf []byte, offset int) (uint8, int, error) {
	if offset < 0 || offset >= len(buf) {
		return 0, 0, newUnderflow("ReadUInt8")
	}
	return buf[offset], 1, nil
}

// WriteUInt8 appends a single byte. v is always representable in a byte,
// so this never fails.
func WriteUInt8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

// ReadUInt16 decodes a big-endian uint16.
func ReadUInt16(buf []byte, offset int) (uint16, int, error) {
	if offset < 0 || offset+2 > len(buf) {
		return 0, 0, newUnderflow("ReadUInt16")
	}
	return binary.BigEndian.Uint16(buf[offset : offset+2]), 2, nil
}

// WriteUInt16 appends a big-endian uint16.
func WriteUInt16(dst []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(dst, tmp[:]...)
}

// ReadUInt32 decodes a big-endian uint32.
func ReadUInt32(buf []byte, offset int) (uint32, int, error) {
	if offset < 0 || offset+4 > len(buf) {
		return 0, 0, newUnderflow("ReadUInt32")
	}
	return binary.BigEndian.Uint32(buf[offset : offset+4]), 4, nil
}

// WriteUInt32 appends a big-endian uint32.
func WriteUInt32(dst []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}

// ReadUInt64 decodes a big-endian uint64.
func ReadUInt64(buf []byte, offset int) (uint64, int, error) {
	if offset < 0 || offset+8 > len(buf) {
		return 0, 0, newUnderflow("ReadUInt64")
	}
	return binary.BigEndian.Uint64(buf[offset : offset+8]), 8, nil
}

// WriteUInt64 appends a big-endian uint64.
func WriteUInt64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

// ReadString decodes a VarOctetString and interprets it as UTF-8. Unlike
// ReadVarOctetString, the result does not alias buf: converting the view
// to a string copies its bytes, so later mutation of buf is not
// observable in the returned string.
func ReadString(buf []byte, offset int) (string, int, error) {
	raw, n, err := ReadVarOctetString(buf, offset)
	if err != nil {
		return "", 0, err
	}
	return string(raw), n, nil
}

// WriteString appends s as a VarOctetString.
func WriteString(dst []byte, s string) []byte {
	return WriteVarOctetString(dst, []byte(s))
}
