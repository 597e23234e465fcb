package serial

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Primitive is the escape hatch for plain-old-data structs: the value is
// encoded as its raw little-endian image in every format. T must consist
// only of fixed-size fields.
//
// Example:
//
//	type Settings struct {
//		Interval uint32
//		Trigger  int64
//	}
//	var ser serial.Primitive[Settings]
type Primitive[T any] struct{}

func (Primitive[T]) Serialize(_ Format, v T, _ Context, w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func (Primitive[T]) Unserialize(_ Format, data []byte, _ Context) (T, error) {
	var v T
	size := binary.Size(v)
	if size < 0 {
		return v, fmt.Errorf("%w: type is not fixed-size", ErrDecode)
	}
	if len(data) != size {
		return v, fmt.Errorf("%w: image is %d bytes, want %d", ErrDecode, len(data), size)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}
