package serial

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// integerType covers the fixed-width integer kinds supported on the wire.
type integerType interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Integer serializes a fixed-width integer. In user format the value is
// rendered as ASCII decimal; in every other format it is the little-endian
// binary image of the value, so payloads survive heterogeneous peers.
type Integer[T integerType] struct{}

var _ Serializer[int32] = Integer[int32]{}

func (Integer[T]) Serialize(f Format, v T, _ Context, w io.Writer) error {
	if f == FormatUser {
		_, err := io.WriteString(w, formatDecimal(v))
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

func (Integer[T]) Unserialize(f Format, data []byte, _ Context) (T, error) {
	var v T
	if f == FormatUser {
		// Best effort: user format is not required to round-trip.
		return parseDecimal[T](data)
	}
	if len(data) != binary.Size(v) {
		return v, fmt.Errorf("%w: integer image is %d bytes, want %d", ErrDecode, len(data), binary.Size(v))
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}

// isSigned reports whether T is a signed integer kind.
func isSigned[T integerType]() bool {
	return T(0)-1 < T(0)
}

func formatDecimal[T integerType](v T) string {
	if isSigned[T]() {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatUint(uint64(v), 10)
}

func parseDecimal[T integerType](data []byte) (T, error) {
	var v T
	bits := binary.Size(v) * 8
	if isSigned[T]() {
		n, err := strconv.ParseInt(string(data), 10, bits)
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return T(n), nil
	}
	n, err := strconv.ParseUint(string(data), 10, bits)
	if err != nil {
		return v, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return T(n), nil
}

// Bool serializes a boolean: literal "true"/"false" in user format, a single
// byte otherwise.
type Bool struct{}

var _ Serializer[bool] = Bool{}

func (Bool) Serialize(f Format, v bool, _ Context, w io.Writer) error {
	if f == FormatUser {
		s := "false"
		if v {
			s = "true"
		}
		_, err := io.WriteString(w, s)
		return err
	}
	b := byte(0)
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func (Bool) Unserialize(f Format, data []byte, _ Context) (bool, error) {
	if f == FormatUser {
		v, err := strconv.ParseBool(string(data))
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return v, nil
	}
	if len(data) != 1 {
		return false, fmt.Errorf("%w: bool image is %d bytes, want 1", ErrDecode, len(data))
	}
	return data[0] != 0, nil
}
