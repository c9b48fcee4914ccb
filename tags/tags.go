// Package tags reads and writes the name/value tag block carried by ANS-104
// data items.
//
// The block is an Avro style array of records. It is a sequence of blocks,
// each introduced by a zigzag varint count. A positive count n is followed
// by n records. A negative count -n is followed by a byte size (which we
// ignore) and then n records. A count of 0 ends the array. Each record is two
// strings, the name and then the value, where a string is a length followed
// by that many bytes of UTF-8.
//
// The varints used here follow ANS-104 and carry at most 28 bits of payload,
// so no more than four bytes are read for any single long.
package tags

import (
	"errors"
	"unicode/utf8"
)

// A Tag is a single name/value pair. The order of tags inside an item is
// significant and is preserved by both Decode and Encode.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var (
	// ErrExpectedLong means the input ended where the length of a string
	// was expected.
	ErrExpectedLong = errors.New("tags: expected long, found end of input")

	// ErrInvalidLength means a string length was negative or ran past the
	// end of the input.
	ErrInvalidLength = errors.New("tags: invalid string length")

	// ErrInvalidUTF8 means the bytes of a name or value are not UTF-8.
	ErrInvalidUTF8 = errors.New("tags: invalid UTF-8 in string")

	// ErrTooLong means Encode was given a value that does not fit in the
	// 28 bit long used by the format.
	ErrTooLong = errors.New("tags: value too long to encode")
)

// the number of payload bits a long may carry
const longBits = 28

// Decode parses the tag block in buf. An empty buf, or one which ends where a
// block count is expected, is not an error; it just means there are no more
// tags. The returned slice is never nil.
func Decode(buf []byte) ([]Tag, error) {
	r := &reader{buf: buf}
	result := make([]Tag, 0)
	for {
		n, ok := r.readLong()
		if !ok || n == 0 {
			return result, nil
		}
		if n < 0 {
			// the block byte size follows the count. we don't need it.
			n = -n
			r.skipLong()
		}
		for i := int64(0); i < n; i++ {
			name, err := r.readString()
			if err != nil {
				return nil, err
			}
			value, err := r.readString()
			if err != nil {
				return nil, err
			}
			result = append(result, Tag{Name: name, Value: value})
		}
	}
}

type reader struct {
	buf []byte
	pos int
}

// readLong returns the next zigzag encoded long. The boolean is false if the
// input ended before a complete long could be read.
func (r *reader) readLong() (int64, bool) {
	var n int64
	var shift uint
	for r.pos < len(r.buf) {
		b := r.buf[r.pos]
		r.pos++
		n |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 || shift >= longBits {
			return (n >> 1) ^ -(n & 1), true
		}
	}
	return 0, false
}

// skipLong advances past one long without decoding it.
func (r *reader) skipLong() {
	for r.pos < len(r.buf) && r.buf[r.pos]&0x80 != 0 {
		r.pos++
	}
	// step over the final byte of the long
	if r.pos < len(r.buf) {
		r.pos++
	}
}

func (r *reader) readString() (string, error) {
	length, ok := r.readLong()
	if !ok {
		return "", ErrExpectedLong
	}
	if length < 0 || length > int64(len(r.buf)-r.pos) {
		return "", ErrInvalidLength
	}
	b := r.buf[r.pos : r.pos+int(length)]
	r.pos += int(length)
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// Encode returns the tag block for list as a single block followed by the
// terminating zero count. An empty list encodes to no bytes at all, which is
// how ANS-104 items without tags are written.
func Encode(list []Tag) ([]byte, error) {
	if len(list) == 0 {
		return nil, nil
	}
	buf, err := appendLong(nil, int64(len(list)))
	if err != nil {
		return nil, err
	}
	for _, tag := range list {
		if buf, err = appendString(buf, tag.Name); err != nil {
			return nil, err
		}
		if buf, err = appendString(buf, tag.Value); err != nil {
			return nil, err
		}
	}
	return appendLong(buf, 0)
}

func appendString(buf []byte, s string) ([]byte, error) {
	buf, err := appendLong(buf, int64(len(s)))
	if err != nil {
		return nil, err
	}
	return append(buf, s...), nil
}

func appendLong(buf []byte, v int64) ([]byte, error) {
	zz := uint64((v << 1) ^ (v >> 63))
	if zz >= 1<<longBits {
		return nil, ErrTooLong
	}
	for zz >= 0x80 {
		buf = append(buf, byte(zz)|0x80)
		zz >>= 7
	}
	return append(buf, byte(zz)), nil
}
