package indexer

import (
	"fmt"

	"github.com/pkg/errors"
)

// A Kind classifies the failure of an indexing run.
type Kind int

const (
	// KindUnknown is the Kind of errors not returned by an Indexer.
	KindUnknown Kind = iota
	// KindDownload means the bundle could not be fetched.
	KindDownload
	// KindDecode means the bundle bytes are malformed.
	KindDecode
	// KindStorage means the artifact could not be written or committed.
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindDownload:
		return "download"
	case KindDecode:
		return "decode"
	case KindStorage:
		return "storage"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// An Error is returned by Index and friends. Kind tells whether the bundle
// could not be fetched, could not be decoded, or could not be stored. The
// original error is in Err.
type Error struct {
	Kind Kind
	TxID string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.TxID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets errors.Cause from github.com/pkg/errors see the original error.
func (e *Error) Cause() error { return e.Err }

// KindOf returns the Kind of err if it is, or wraps, an *Error. Otherwise it
// returns KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

var (
	// ErrSessionClosed is returned when a Session is used after it was
	// committed or rolled back.
	ErrSessionClosed = errors.New("session already committed or rolled back")

	// ErrSerialize wraps failures turning an item into a record.
	ErrSerialize = errors.New("cannot serialize item")
)
