package serial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

var binaryFormats = []Format{FormatInternal, FormatNetwork, FormatPersist}

func roundTrip[T any](t *testing.T, s Serializer[T], f Format, v T) T {
	t.Helper()
	b, err := Bytes(s, f, v, Context{})
	require.NoError(t, err)
	out, err := s.Unserialize(f, b, Context{})
	require.NoError(t, err)
	return out
}

func TestIntegerRoundTrip(t *testing.T) {
	for _, f := range binaryFormats {
		require.Equal(t, int8(math.MinInt8), roundTrip[int8](t, Integer[int8]{}, f, math.MinInt8))
		require.Equal(t, int8(math.MaxInt8), roundTrip[int8](t, Integer[int8]{}, f, math.MaxInt8))
		require.Equal(t, int16(math.MinInt16), roundTrip[int16](t, Integer[int16]{}, f, math.MinInt16))
		require.Equal(t, int32(math.MinInt32), roundTrip[int32](t, Integer[int32]{}, f, math.MinInt32))
		require.Equal(t, int64(math.MinInt64), roundTrip[int64](t, Integer[int64]{}, f, math.MinInt64))
		require.Equal(t, int64(math.MaxInt64), roundTrip[int64](t, Integer[int64]{}, f, math.MaxInt64))
		require.Equal(t, uint8(math.MaxUint8), roundTrip[uint8](t, Integer[uint8]{}, f, math.MaxUint8))
		require.Equal(t, uint16(math.MaxUint16), roundTrip[uint16](t, Integer[uint16]{}, f, math.MaxUint16))
		require.Equal(t, uint32(math.MaxUint32), roundTrip[uint32](t, Integer[uint32]{}, f, math.MaxUint32))
		require.Equal(t, uint64(math.MaxUint64), roundTrip[uint64](t, Integer[uint64]{}, f, uint64(math.MaxUint64)))
		require.Equal(t, uint64(0), roundTrip[uint64](t, Integer[uint64]{}, f, 0))
	}
}

func TestIntegerWireImage(t *testing.T) {
	b, err := Bytes[int32](Integer[int32]{}, FormatPersist, 0x01020304, Context{})
	require.NoError(t, err)
	// Little-endian on the wire.
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, b)
}

func TestIntegerUserFormat(t *testing.T) {
	b, err := Bytes[int32](Integer[int32]{}, FormatUser, -42, Context{})
	require.NoError(t, err)
	require.Equal(t, "-42", string(b))

	// User-format decode is best effort.
	v, err := Integer[int32]{}.Unserialize(FormatUser, []byte("-42"), Context{})
	require.NoError(t, err)
	require.Equal(t, int32(-42), v)

	_, err = Integer[int32]{}.Unserialize(FormatUser, []byte("not a number"), Context{})
	require.ErrorIs(t, err, ErrDecode)
	_, err = Integer[uint8]{}.Unserialize(FormatUser, []byte("300"), Context{})
	require.ErrorIs(t, err, ErrDecode)
}

func TestIntegerWrongSize(t *testing.T) {
	_, err := Integer[int32]{}.Unserialize(FormatPersist, []byte{1, 2}, Context{})
	require.ErrorIs(t, err, ErrDecode)
}

func TestBool(t *testing.T) {
	b, err := Bytes[bool](Bool{}, FormatUser, true, Context{})
	require.NoError(t, err)
	require.Equal(t, "true", string(b))
	b, err = Bytes[bool](Bool{}, FormatUser, false, Context{})
	require.NoError(t, err)
	require.Equal(t, "false", string(b))

	for _, f := range binaryFormats {
		require.True(t, roundTrip[bool](t, Bool{}, f, true))
		require.False(t, roundTrip[bool](t, Bool{}, f, false))
	}
}

func TestString(t *testing.T) {
	for _, f := range append(binaryFormats, FormatUser) {
		require.Equal(t, "", roundTrip[string](t, String{}, f, ""))
		require.Equal(t, "hi\x00there", roundTrip[string](t, String{}, f, "hi\x00there"))
	}
}

func TestPair(t *testing.T) {
	ser := Pair[uint16, string]{First: Integer[uint16]{}, Second: String{}}

	v := PairOf[uint16, string]{First: 7, Second: "hi\x00there"}
	require.Equal(t, v, roundTrip[PairOf[uint16, string]](t, ser, FormatInternal, v))

	// Pair of empty components decodes to a pair of empty strings.
	strs := Pair[string, string]{First: String{}, Second: String{}}
	empty := PairOf[string, string]{}
	require.Equal(t, empty, roundTrip[PairOf[string, string]](t, strs, FormatPersist, empty))

	// Empty input is a decode failure.
	_, err := ser.Unserialize(FormatInternal, nil, Context{})
	require.ErrorIs(t, err, ErrDecode)

	// A failing field fails the pair.
	bad := Pair[int32, int32]{First: Integer[int32]{}, Second: Integer[int32]{}}
	_, err = bad.Unserialize(FormatInternal, []byte("junk\x00junk\x00"), Context{})
	require.ErrorIs(t, err, ErrDecode)
}

func TestSlice(t *testing.T) {
	ser := Slice[string](String{})
	v := []string{"a", "", "with\x00nul", "z"}
	require.Equal(t, v, roundTrip[[]string](t, ser, FormatNetwork, v))

	// Empty container round-trips to empty payload.
	b, err := Bytes[[]string](ser, FormatNetwork, nil, Context{})
	require.NoError(t, err)
	require.Empty(t, b)
	out, err := ser.Unserialize(FormatNetwork, b, Context{})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestSliceSkipsFailingElements(t *testing.T) {
	ser := Slice[int32](Integer[int32]{})
	var payload []byte
	ok1, _ := Bytes[int32](Integer[int32]{}, FormatInternal, 1, Context{})
	ok2, _ := Bytes[int32](Integer[int32]{}, FormatInternal, 2, Context{})
	payload = appendRawField(payload, ok1)
	payload = appendRawField(payload, []byte("xx")) // wrong width, skipped
	payload = appendRawField(payload, ok2)
	out, err := ser.Unserialize(FormatInternal, payload, Context{})
	require.NoError(t, err)
	// The bad element is skipped without losing the elements after it.
	require.Equal(t, []int32{1, 2}, out)
}

func TestSortedSet(t *testing.T) {
	ser := SortedSet[string](String{})
	in := map[string]struct{}{"b": {}, "a": {}, "c": {}}
	out := roundTrip[map[string]struct{}](t, ser, FormatPersist, in)
	require.Equal(t, in, out)

	// Canonical order on the wire.
	b, err := Bytes[map[string]struct{}](ser, FormatPersist, in, Context{})
	require.NoError(t, err)
	require.Equal(t, "a\x00b\x00c\x00", string(b))
}

func TestSortedMultiset(t *testing.T) {
	ser := SortedMultiset[uint16](Integer[uint16]{})
	v := []uint16{1, 2, 2, 9}
	require.Equal(t, v, roundTrip[[]uint16](t, ser, FormatInternal, v))
}

func TestSortedMapOfPairs(t *testing.T) {
	ser := SortedMap[string, PairOf[uint16, string]](
		String{},
		Pair[uint16, string]{First: Integer[uint16]{}, Second: String{}},
	)
	in := map[string]PairOf[uint16, string]{
		"a": {First: 7, Second: "hi\x00there"},
		"b": {First: 0, Second: ""},
	}
	out := roundTrip[map[string]PairOf[uint16, string]](t, ser, FormatInternal, in)
	require.Equal(t, in, out)
}

func TestSortedMultimap(t *testing.T) {
	ser := SortedMultimap[string, string](String{}, String{})
	v := []PairOf[string, string]{
		{First: "a", Second: "1"},
		{First: "a", Second: "2"},
		{First: "b", Second: "3"},
	}
	require.Equal(t, v, roundTrip[[]PairOf[string, string]](t, ser, FormatPersist, v))
}

type fakeSettings struct {
	Interval uint32
	Trigger  int64
}

func TestPrimitive(t *testing.T) {
	ser := Primitive[fakeSettings]{}
	v := fakeSettings{Interval: 30, Trigger: 1700000000}
	for _, f := range binaryFormats {
		require.Equal(t, v, roundTrip[fakeSettings](t, ser, f, v))
	}

	_, err := ser.Unserialize(FormatPersist, []byte{1, 2, 3}, Context{})
	require.ErrorIs(t, err, ErrDecode)
}

// appendRawField mirrors the framing rule without going through a serializer.
func appendRawField(dst, field []byte) []byte {
	for _, c := range field {
		switch c {
		case 0:
			dst = append(dst, '\\', '0')
		case '\\':
			dst = append(dst, '\\', '\\')
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, 0)
}
