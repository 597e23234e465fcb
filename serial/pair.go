package serial

import (
	"fmt"
	"io"

	"github.com/chatlink/ext/nulls"
)

// PairOf is the value type encoded by Pair.
type PairOf[A, B any] struct {
	First  A
	Second B
}

// Pair serializes a two-element tuple as
//
//	Escape(encode(First)) '\0' Escape(encode(Second)) '\0'
//
// Decoding fails on an empty input or when either field fails to decode.
type Pair[A, B any] struct {
	First  Serializer[A]
	Second Serializer[B]
}

func (p Pair[A, B]) Serialize(f Format, v PairOf[A, B], ctx Context, w io.Writer) error {
	if err := writeField(p.First, f, v.First, ctx, w); err != nil {
		return err
	}
	return writeField(p.Second, f, v.Second, ctx, w)
}

func (p Pair[A, B]) Unserialize(f Format, data []byte, ctx Context) (PairOf[A, B], error) {
	var v PairOf[A, B]
	if len(data) == 0 {
		return v, fmt.Errorf("%w: empty pair", ErrDecode)
	}
	fields := nulls.SplitUnescapeNulls(data)
	if len(fields) < 2 {
		return v, fmt.Errorf("%w: pair has %d fields, want 2", ErrDecode, len(fields))
	}
	first, err := p.First.Unserialize(f, fields[0], ctx)
	if err != nil {
		return v, err
	}
	second, err := p.Second.Unserialize(f, fields[1], ctx)
	if err != nil {
		return v, err
	}
	v.First = first
	v.Second = second
	return v, nil
}

// writeField encodes one nested value, null-escapes it and appends the field
// terminator. This is the single nesting rule shared by pairs and containers.
func writeField[T any](s Serializer[T], f Format, v T, ctx Context, w io.Writer) error {
	b, err := Bytes(s, f, v, ctx)
	if err != nil {
		return err
	}
	if err := nulls.EscapeNulls(w, b); err != nil {
		return err
	}
	_, err = w.Write([]byte{0})
	return err
}
