// Package nulls implements the null-escape codec used to frame nested
// serialized payloads. Embedded NUL bytes are escaped as `\0` and literal
// backslashes as `\\`; no other byte is touched. This lets a payload that
// itself contains NULs be carried inside a NUL-delimited field list.
package nulls

import (
	"bytes"
	"io"
)

// EscapeNulls writes s to w with every NUL byte replaced by the two-byte
// sequence `\0` and every backslash doubled. The pass is streaming: a single
// forward scan, flushing unescaped runs in one write each.
func EscapeNulls(w io.Writer, s []byte) error {
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != 0 && c != '\\' {
			continue
		}
		if start < i {
			if _, err := w.Write(s[start:i]); err != nil {
				return err
			}
		}
		var esc []byte
		if c == 0 {
			esc = []byte(`\0`)
		} else {
			esc = []byte(`\\`)
		}
		if _, err := w.Write(esc); err != nil {
			return err
		}
		start = i + 1
	}
	if start < len(s) {
		if _, err := w.Write(s[start:]); err != nil {
			return err
		}
	}
	return nil
}

// AppendField appends Escape(field) followed by a terminating NUL to dst.
// Concatenating AppendField for a sequence of fields produces exactly the
// framing that SplitUnescapeNulls reverses.
func AppendField(dst []byte, field []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(field) + 1)
	// bytes.Buffer writes never fail.
	_ = EscapeNulls(&buf, field)
	dst = append(dst, buf.Bytes()...)
	return append(dst, 0)
}

// SplitUnescapeNulls splits s on unescaped NUL boundaries and reverses the
// escape transformation within each field. A trailing NUL does not yield an
// extra empty field; an empty input yields no fields. The decoder is
// tolerant: a backslash followed by anything other than `0` or `\` decodes
// to that byte, and a lone trailing backslash decodes to itself.
func SplitUnescapeNulls(s []byte) [][]byte {
	if len(s) == 0 {
		return nil
	}
	var fields [][]byte
	field := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case 0:
			fields = append(fields, append([]byte(nil), field...))
			field = field[:0]
		case '\\':
			if i+1 == len(s) {
				field = append(field, '\\')
				break
			}
			i++
			if s[i] == '0' {
				field = append(field, 0)
			} else {
				field = append(field, s[i])
			}
		default:
			field = append(field, c)
		}
	}
	if len(field) > 0 {
		fields = append(fields, append([]byte(nil), field...))
	}
	return fields
}
