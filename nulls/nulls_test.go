package nulls

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func escapeString(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EscapeNulls(&buf, []byte(s)))
	return buf.String()
}

func TestEscapeNulls(t *testing.T) {
	require.Equal(t, "", escapeString(t, ""))
	require.Equal(t, "plain", escapeString(t, "plain"))
	require.Equal(t, `a\0b`, escapeString(t, "a\x00b"))
	require.Equal(t, `\\`, escapeString(t, `\`))
	require.Equal(t, `\\\0\\`, escapeString(t, "\\\x00\\"))
	require.Equal(t, `\0\0\0`, escapeString(t, "\x00\x00\x00"))
}

func TestSplitUnescapeNulls(t *testing.T) {
	require.Empty(t, SplitUnescapeNulls(nil))
	require.Empty(t, SplitUnescapeNulls([]byte{}))

	// A trailing NUL terminates the last field without adding an empty one.
	fields := SplitUnescapeNulls([]byte("a\x00b\x00"))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, fields)

	// No trailing NUL still yields the final field.
	fields = SplitUnescapeNulls([]byte("a\x00b"))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, fields)

	// Only NUL bytes yield a sequence of empty fields.
	fields = SplitUnescapeNulls([]byte{0, 0, 0})
	require.Len(t, fields, 3)
	for _, f := range fields {
		require.Empty(t, f)
	}

	// Escaped NULs do not split.
	fields = SplitUnescapeNulls([]byte(`hi\0there` + "\x00"))
	require.Equal(t, [][]byte{[]byte("hi\x00there")}, fields)

	// Tolerant decoding: unknown escape and lone trailing backslash.
	fields = SplitUnescapeNulls([]byte(`a\zb`))
	require.Equal(t, [][]byte{[]byte("azb")}, fields)
	fields = SplitUnescapeNulls([]byte(`ab\`))
	require.Equal(t, [][]byte{[]byte(`ab\`)}, fields)
}

func TestRoundTripLaw(t *testing.T) {
	cases := [][][]byte{
		{[]byte("one"), []byte("two"), []byte("three")},
		{[]byte(""), []byte("")},
		{[]byte("nul\x00inside"), []byte(`back\slash`), []byte("\x00\x00")},
		{[]byte{0}, []byte{'\\'}, []byte{'\\', 0, '\\'}},
	}
	for _, fields := range cases {
		var framed []byte
		for _, f := range fields {
			framed = AppendField(framed, f)
		}
		require.Equal(t, fields, SplitUnescapeNulls(framed))
	}
}
