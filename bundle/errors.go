package bundle

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrOutOfBounds means a field or an item extends past the end of the
	// bytes available to it. Errors returned by this package wrap it with
	// the name of the field being read.
	ErrOutOfBounds = errors.New("bundle: read past end of input")

	// ErrFieldSize is returned when encoding a RawItem whose fields do not
	// have the lengths its signature type requires.
	ErrFieldSize = errors.New("bundle: field has wrong size")
)

// A SignatureTypeError is returned for an item whose signature type is not
// one of the defined values.
type SignatureTypeError struct {
	Value uint16
}

func (e *SignatureTypeError) Error() string {
	return fmt.Sprintf("bundle: invalid signature type %d", e.Value)
}

// A PresenceByteError is returned when the flag in front of the target or the
// anchor is neither 0 nor 1.
type PresenceByteError struct {
	Field string // "target" or "anchor"
	Value byte
}

func (e *PresenceByteError) Error() string {
	return fmt.Sprintf("bundle: invalid presence byte %d for %s", e.Value, e.Field)
}

// A TagCountError is returned when an item declares a different number of
// tags than its tag block holds.
type TagCountError struct {
	Declared uint64
	Decoded  int
}

func (e *TagCountError) Error() string {
	return fmt.Sprintf("bundle: item declares %d tags, tag block has %d", e.Declared, e.Decoded)
}
