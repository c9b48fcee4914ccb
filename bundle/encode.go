package bundle

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ndlib/ans104/tags"
)

// A RawItem holds the unencoded fields of an item, for assembling bundles.
// Encode does not sign anything; the signature is copied as given.
type RawItem struct {
	ID            []byte // 32 bytes, written into the bundle header
	SignatureType SignatureType
	Signature     []byte
	Owner         []byte
	Target        []byte // nil if absent, otherwise 32 bytes
	Anchor        []byte // nil if absent, otherwise 32 bytes
	Tags          []tags.Tag
	Data          []byte
}

// Encode returns the binary form of ri as it appears inside a bundle.
func (ri RawItem) Encode() ([]byte, error) {
	if !ri.SignatureType.Valid() {
		return nil, &SignatureTypeError{Value: uint16(ri.SignatureType)}
	}
	sigSize, ownerSize := ri.SignatureType.Sizes()
	if len(ri.Signature) != sigSize {
		return nil, errors.Wrapf(ErrFieldSize, "signature is %d bytes, %s needs %d", len(ri.Signature), ri.SignatureType, sigSize)
	}
	if len(ri.Owner) != ownerSize {
		return nil, errors.Wrapf(ErrFieldSize, "owner is %d bytes, %s needs %d", len(ri.Owner), ri.SignatureType, ownerSize)
	}
	tagBytes, err := tags.Encode(ri.Tags)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var scratch [8]byte
	binary.LittleEndian.PutUint16(scratch[:2], uint16(ri.SignatureType))
	buf.Write(scratch[:2])
	buf.Write(ri.Signature)
	buf.Write(ri.Owner)
	for _, link := range []struct {
		name  string
		value []byte
	}{{"target", ri.Target}, {"anchor", ri.Anchor}} {
		if link.value == nil {
			buf.WriteByte(0)
			continue
		}
		if len(link.value) != linkSize {
			return nil, errors.Wrapf(ErrFieldSize, "%s is %d bytes, needs %d", link.name, len(link.value), linkSize)
		}
		buf.WriteByte(1)
		buf.Write(link.value)
	}
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(ri.Tags)))
	buf.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(tagBytes)))
	buf.Write(scratch[:])
	buf.Write(tagBytes)
	buf.Write(ri.Data)
	return buf.Bytes(), nil
}

// Encode assembles a bundle containing items, in the given order.
func Encode(items []RawItem) ([]byte, error) {
	encoded := make([][]byte, len(items))
	for i, ri := range items {
		if len(ri.ID) != idSize {
			return nil, errors.Wrapf(ErrFieldSize, "item %d: id is %d bytes, needs %d", i, len(ri.ID), idSize)
		}
		b, err := ri.Encode()
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		if uint64(len(b)) > 1<<32-1 {
			return nil, errors.Wrapf(ErrFieldSize, "item %d is too large", i)
		}
		encoded[i] = b
	}

	var buf bytes.Buffer
	var reserved [reservedSize]byte
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], uint32(len(items)))
	buf.Write(scratch[:])
	buf.Write(reserved[:])
	for i, ri := range items {
		binary.LittleEndian.PutUint32(scratch[:], uint32(len(encoded[i])))
		buf.Write(scratch[:])
		buf.Write(reserved[:])
		buf.Write(ri.ID)
	}
	for _, b := range encoded {
		buf.Write(b)
	}
	return buf.Bytes(), nil
}
