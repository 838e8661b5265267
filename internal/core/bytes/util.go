package bytes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxVarIntLen is the maximum number of bytes a 32 bit VarInt can occupy.
const MaxVarIntLen = 5

var (
	// ErrVarIntTooLong is returned when a VarInt continues past MaxVarIntLen bytes.
	ErrVarIntTooLong = errors.New("varint is too long")
	// ErrStringTooLong is returned when a string's declared length exceeds the caller's limit.
	ErrStringTooLong = errors.New("string is too long")
)

// ReadVarInt decodes a protocol VarInt (LEB128, 7 bits per byte, least significant
// group first) and returns the value along with the number of bytes consumed.
func ReadVarInt(r io.ByteReader) (int32, int, error) {
	var value uint32
	for i := 0; i < MaxVarIntLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, i, err
		}

		value |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			return int32(value), i + 1, nil
		}
	}
	return 0, MaxVarIntLen, ErrVarIntTooLong
}

// AppendVarInt appends the VarInt encoding of v to b.
func AppendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		b = append(b, byte(u)|0x80)
		u >>= 7
	}
	return append(b, byte(u))
}

// WriteVarInt writes the VarInt encoding of v to w.
func WriteVarInt(w io.Writer, v int32) error {
	_, err := w.Write(AppendVarInt(make([]byte, 0, MaxVarIntLen), v))
	return err
}

// VarIntSize returns the number of bytes needed to encode v.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

// Reader is what the decoding helpers need from their input.
type Reader interface {
	io.Reader
	io.ByteReader
}

// ReadString reads a VarInt length-prefixed UTF-8 string. Strings whose declared
// byte length is negative or greater than maxLen are rejected before any of the
// string body is read.
func ReadString(r Reader, maxLen int) (string, error) {
	n, _, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("negative string length %d", n)
	}
	if int(n) > maxLen {
		return "", fmt.Errorf("%w: %d > %d", ErrStringTooLong, n, maxLen)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteString writes str with a VarInt byte-length prefix.
func WriteString(w io.Writer, str string) error {
	if err := WriteVarInt(w, int32(len(str))); err != nil {
		return err
	}
	_, err := io.WriteString(w, str)
	return err
}

// ReadUint16 reads a big endian unsigned short.
func ReadUint16(r io.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// WriteUint16 writes v as a big endian unsigned short.
func WriteUint16(w io.Writer, v uint16) error {
	return binary.Write(w, binary.BigEndian, v)
}

// ReadInt64 reads a big endian signed long.
func ReadInt64(r io.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

// WriteInt64 writes v as a big endian signed long.
func WriteInt64(w io.Writer, v int64) error {
	return binary.Write(w, binary.BigEndian, v)
}
