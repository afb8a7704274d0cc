// Package row encodes and decodes the fixed-schema user record stored by the table.
//
// A row is always RowSize bytes on disk:
//
//	offset 0   id        int32, little-endian
//	offset 4   username  32 bytes, zero padded
//	offset 36  email     255 bytes, zero padded
//
// There is no per-row header and no padding between fields.
package row

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	IDSize       = 4
	UsernameSize = 32
	EmailSize    = 255

	IDOffset       = 0
	UsernameOffset = IDOffset + IDSize
	EmailOffset    = UsernameOffset + UsernameSize

	RowSize = IDSize + UsernameSize + EmailSize
)

var (
	ErrRowTooLong  = errors.New("string is too long")
	ErrNegativeID  = errors.New("id must be positive")
	ErrShortBuffer = errors.New("buffer shorter than row size")
)

// Row is one logical record of the table.
type Row struct {
	ID       int32
	Username string
	Email    string
}

func (r Row) String() string {
	return fmt.Sprintf("(%d, %s, %s)", r.ID, r.Username, r.Email)
}

// Validate reports whether r can be stored without truncation.
func (r *Row) Validate() error {
	if r.ID < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeID, r.ID)
	}
	if len(r.Username) > UsernameSize {
		return fmt.Errorf("%w: username is %d bytes, max %d", ErrRowTooLong, len(r.Username), UsernameSize)
	}
	if len(r.Email) > EmailSize {
		return fmt.Errorf("%w: email is %d bytes, max %d", ErrRowTooLong, len(r.Email), EmailSize)
	}
	return nil
}

// Serialize writes r into the first RowSize bytes of dst. Fields longer than
// their fixed width are truncated so they never spill into the next field.
func Serialize(r *Row, dst []byte) error {
	if len(dst) < RowSize {
		return fmt.Errorf("%w: got %d bytes, need %d", ErrShortBuffer, len(dst), RowSize)
	}
	binary.LittleEndian.PutUint32(dst[IDOffset:IDOffset+IDSize], uint32(r.ID))
	putPadded(dst[UsernameOffset:UsernameOffset+UsernameSize], r.Username)
	putPadded(dst[EmailOffset:EmailOffset+EmailSize], r.Email)
	return nil
}

// Deserialize reads the row stored in the first RowSize bytes of src into r.
func Deserialize(src []byte, r *Row) error {
	if len(src) < RowSize {
		return fmt.Errorf("%w: got %d bytes, need %d", ErrShortBuffer, len(src), RowSize)
	}
	r.ID = int32(binary.LittleEndian.Uint32(src[IDOffset : IDOffset+IDSize]))
	r.Username = getPadded(src[UsernameOffset : UsernameOffset+UsernameSize])
	r.Email = getPadded(src[EmailOffset : EmailOffset+EmailSize])
	return nil
}

// Encode returns the fixed-width encoding of r.
func Encode(r *Row) [RowSize]byte {
	var buf [RowSize]byte
	_ = Serialize(r, buf[:]) // cannot fail, buf is exactly RowSize
	return buf
}

// Decode is the inverse of Encode.
func Decode(src []byte) (Row, error) {
	var r Row
	err := Deserialize(src, &r)
	return r, err
}

func putPadded(field []byte, s string) {
	n := copy(field, s)
	clear(field[n:])
}

// getPadded strips the zero padding. Zero bytes at the end of the original
// value are indistinguishable from padding and are dropped with it. Each
// maximal invalid UTF-8 subsequence becomes one U+FFFD.
func getPadded(field []byte) string {
	field = bytes.TrimRight(field, "\x00")
	if utf8.Valid(field) {
		return string(field)
	}
	var sb strings.Builder
	sb.Grow(len(field))
	for len(field) > 0 {
		r, size := utf8.DecodeRune(field)
		if r == utf8.RuneError && size <= 1 {
			sb.WriteRune(utf8.RuneError)
			field = field[invalidPrefixLen(field):]
			continue
		}
		sb.Write(field[:size])
		field = field[size:]
	}
	return sb.String()
}

// invalidPrefixLen returns the length of the maximal subpart of the
// ill-formed sequence at the start of b: the lead byte plus the continuation
// bytes that could still have completed it.
func invalidPrefixLen(b []byte) int {
	lo, hi := byte(0x80), byte(0xBF)
	var need int
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c == 0xF4:
		need, hi = 3, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	default:
		return 1
	}
	n := 1
	for ; n <= need && n < len(b); n++ {
		if b[n] < lo || b[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return n
}
