// Package serial provides the typed serializer family used to round-trip
// extension values through the four target formats. Composite serializers
// (pairs, containers) frame nested payloads with the nulls codec, so
// arbitrary nesting is correct by induction.
package serial

import (
	"bytes"
	"errors"
	"io"
)

// Format selects the audience a payload is encoded for.
type Format int

const (
	// FormatUser is shown to a human and does not need to round-trip.
	FormatUser Format = iota
	// FormatInternal is passed within this process (e.g. module reload).
	FormatInternal
	// FormatNetwork is passed to other servers (e.g. METADATA s2s command).
	FormatNetwork
	// FormatPersist is stored on disk (e.g. the permanent channel database).
	FormatPersist
)

// String returns the lowercase format name.
func (f Format) String() string {
	switch f {
	case FormatUser:
		return "user"
	case FormatInternal:
		return "internal"
	case FormatNetwork:
		return "network"
	case FormatPersist:
		return "persist"
	default:
		return "unknown"
	}
}

// ErrDecode is the base error wrapped by every decode failure. Callers treat
// any unserialize error as "leave the container untouched"; nothing here is
// fatal to the host.
var ErrDecode = errors.New("serial: malformed payload")

// Context carries the host object and the extension item on whose behalf a
// value is being encoded or decoded. Either field may be nil; a decoder that
// needs one and finds it absent reports a decode failure.
type Context struct {
	Host any
	Item any
}

// Serializer encodes and decodes values of a single type T.
type Serializer[T any] interface {
	// Serialize writes the encoding of v for format f to w.
	Serialize(f Format, v T, ctx Context, w io.Writer) error

	// Unserialize parses data back into a value. Errors wrap ErrDecode.
	Unserialize(f Format, data []byte, ctx Context) (T, error)
}

// Bytes returns the encoding of v as a byte slice.
func Bytes[T any](s Serializer[T], f Format, v T, ctx Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Serialize(f, v, ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
