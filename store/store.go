// Package store provides a simple, goroutine safe key-value interface. Instead
// of values being an opaque array of bytes, though, they are a stream. This
// approach allows large artifacts to be written incrementally.
//
// Writes are staged. Nothing written through a Writer is visible under its key
// until the Writer is closed, and a Writer which is aborted leaves the store
// as it was. This is what lets an indexing run be all-or-nothing even though
// its records are written one at a time.
//
// Probably the most important implementation is the FileSystem. Memory is
// useful for testing, and S3 keeps artifacts in a bucket.
package store

import (
	"errors"
	"io"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store defines the basic stream based key-value store.
//
// Creating a key which already exists replaces its value when the new Writer
// is closed. Readers which already have the old value open are not affected.
//
// Since the FileSystem store uses the key as file names, keys should not
// contain forbidden filesystem characters, such as '/'.
type Store interface {
	ROStore
	Create(key string) (Writer, error)
	Delete(key string) error
}

// ROStore is the read-only pieces of a Store. It allows one to list contents,
// and to retrieve data.
type ROStore interface {
	List() <-chan string
	ListPrefix(prefix string) ([]string, error)
	Open(key string) (ReadAtCloser, int64, error)
}

// A Writer stages the value for a key. Close publishes what was written under
// the key, atomically. Abort throws it away. Exactly one of Close or Abort
// should be called; calls after the first return ErrWriterDone, except that
// Abort after Abort is allowed.
type Writer interface {
	io.WriteCloser
	Abort() error
}

var (
	// ErrWriterDone is returned when a Writer is used after it was closed
	// or aborted.
	ErrWriterDone = errors.New("writer already closed or aborted")

	// ErrNotExist is returned by Open for missing keys.
	ErrNotExist = errors.New("key does not exist")
)

// NewReader converts a ReaderAt into a io.Reader. It is here as a utility to
// help work with the ReadAtCloser returned by Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// reading less than a full buffer is not an error for
		// an io.Reader
		err = nil
	}
	return
}
