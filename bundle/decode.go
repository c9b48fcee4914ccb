package bundle

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/ndlib/ans104/tags"
)

// a cursor hands out successive pieces of a byte slice.
type cursor struct {
	buf []byte
}

// take removes the next n bytes from the cursor. The returned slice has its
// capacity clipped so it cannot be used to reach the bytes after it.
func (c *cursor) take(n uint64, what string) ([]byte, error) {
	if n > uint64(len(c.buf)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "%s: need %d bytes, have %d", what, n, len(c.buf))
	}
	b := c.buf[:n:n]
	c.buf = c.buf[n:]
	return b, nil
}

// optional reads a presence byte and, if it is set, the 32 byte value after
// it.
func (c *cursor) optional(what string) (*string, error) {
	b, err := c.take(1, what+" presence")
	if err != nil {
		return nil, err
	}
	switch b[0] {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, &PresenceByteError{Field: what, Value: b[0]}
	}
	b, err = c.take(linkSize, what)
	if err != nil {
		return nil, err
	}
	s := b64.EncodeToString(b)
	return &s, nil
}

// DecodeHeader reads the header at the front of buf. It returns the entries,
// in order, and the part of buf following the header, where the items begin.
func DecodeHeader(buf []byte) ([]HeaderEntry, []byte, error) {
	c := &cursor{buf: buf}
	b, err := c.take(countSize, "entry count")
	if err != nil {
		return nil, nil, err
	}
	n := binary.LittleEndian.Uint32(b)
	// the count is untrusted, so don't preallocate more entries than
	// could possibly be present.
	capacity := len(c.buf) / entrySize
	if uint64(n) < uint64(capacity) {
		capacity = int(n)
	}
	entries := make([]HeaderEntry, 0, capacity)
	for i := uint32(0); i < n; i++ {
		b, err = c.take(entrySize, "header entry")
		if err != nil {
			return nil, nil, errors.Wrapf(err, "entry %d of %d", i, n)
		}
		entries = append(entries, HeaderEntry{
			Size: binary.LittleEndian.Uint32(b),
			ID:   b64.EncodeToString(b[4+reservedSize:]),
		})
	}
	return entries, c.buf, nil
}

// DecodeItem decodes a single item. The data must be exactly the bytes given
// to this item by its header entry, and id is the id from that entry.
func DecodeItem(data []byte, id string) (Item, error) {
	c := &cursor{buf: data}
	b, err := c.take(2, "signature type")
	if err != nil {
		return Item{}, err
	}
	st := SignatureType(binary.LittleEndian.Uint16(b))
	if !st.Valid() {
		return Item{}, &SignatureTypeError{Value: uint16(st)}
	}
	sigSize, ownerSize := st.Sizes()

	item := Item{ID: id}
	if b, err = c.take(uint64(sigSize), "signature"); err != nil {
		return Item{}, err
	}
	item.Signature = b64.EncodeToString(b)
	if b, err = c.take(uint64(ownerSize), "owner"); err != nil {
		return Item{}, err
	}
	item.Owner = b64.EncodeToString(b)

	if item.Target, err = c.optional("target"); err != nil {
		return Item{}, err
	}
	if item.Anchor, err = c.optional("anchor"); err != nil {
		return Item{}, err
	}

	if b, err = c.take(16, "tag lengths"); err != nil {
		return Item{}, err
	}
	count := binary.LittleEndian.Uint64(b[:8])
	size := binary.LittleEndian.Uint64(b[8:])
	item.Tags = []tags.Tag{}
	if count > 0 && size > 0 {
		if b, err = c.take(size, "tags"); err != nil {
			return Item{}, err
		}
		list, err := tags.Decode(b)
		if err != nil {
			return Item{}, errors.Wrap(err, "bundle: decoding tags")
		}
		if uint64(len(list)) != count {
			return Item{}, &TagCountError{Declared: count, Decoded: len(list)}
		}
		item.Tags = list
	}

	item.Data = b64.EncodeToString(c.buf)
	return item, nil
}

// decodeEntry takes the bytes for entry e from c and decodes them. Both Decode
// and Reader go through here.
func decodeEntry(c *cursor, e HeaderEntry, i int) (Item, error) {
	b, err := c.take(uint64(e.Size), "item")
	if err == nil {
		var item Item
		item, err = DecodeItem(b, e.ID)
		if err == nil {
			return item, nil
		}
	}
	return Item{}, errors.Wrapf(err, "item %d (%s)", i, e.ID)
}

// Decode decodes every item in the bundle buf. If any item fails to decode no
// items are returned.
func Decode(buf []byte) ([]Item, error) {
	entries, rest, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	c := &cursor{buf: rest}
	items := make([]Item, 0, len(entries))
	for i, e := range entries {
		item, err := decodeEntry(c, e, i)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// A Reader decodes the items of a bundle one at a time, in header order.
// It makes a single forward pass and cannot be restarted.
//
// A Reader keeps a cursor into the bundle and is not safe for use by more
// than one goroutine. Pass it by pointer; copies share the underlying bytes
// but not the position.
type Reader struct {
	entries []HeaderEntry
	c       cursor
	next    int
	err     error
}

// NewReader decodes the header of buf and returns a Reader positioned at the
// first item. The Reader takes ownership of buf.
func NewReader(buf []byte) (*Reader, error) {
	entries, rest, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	return &Reader{entries: entries, c: cursor{buf: rest}}, nil
}

// Next decodes and returns the next item. It returns io.EOF after the last
// item. Errors are sticky: once Next fails, every later call returns the same
// error.
func (r *Reader) Next() (Item, error) {
	if r.err != nil {
		return Item{}, r.err
	}
	if r.next >= len(r.entries) {
		r.err = io.EOF
		return Item{}, r.err
	}
	item, err := decodeEntry(&r.c, r.entries[r.next], r.next)
	r.next++
	if err != nil {
		r.err = err
	}
	return item, err
}

// Len returns the number of items not yet returned by Next.
func (r *Reader) Len() int {
	return len(r.entries) - r.next
}

// Entries returns a copy of the header entries of the bundle.
func (r *Reader) Entries() []HeaderEntry {
	result := make([]HeaderEntry, len(r.entries))
	copy(result, r.entries)
	return result
}
