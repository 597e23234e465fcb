package serial

import "io"

// String serializes a byte-string verbatim in every format; decoding consumes
// the entire input and never fails.
type String struct{}

var _ Serializer[string] = String{}

func (String) Serialize(_ Format, v string, _ Context, w io.Writer) error {
	_, err := io.WriteString(w, v)
	return err
}

func (String) Unserialize(_ Format, data []byte, _ Context) (string, error) {
	return string(data), nil
}
