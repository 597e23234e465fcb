package extensible

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatlink/ext/serial"
)

func TestItemsAreIndependent(t *testing.T) {
	var e Extensible
	i1 := NewStringItem("one", KindUser, "p")
	i2 := NewStringItem("two", KindUser, "p")

	i1.Set(&e, "first")
	i2.Set(&e, "second")
	i1.Set(&e, "changed")

	require.Equal(t, "changed", *i1.Get(&e))
	require.Equal(t, "second", *i2.Get(&e))
}

func TestSetGetUnset(t *testing.T) {
	var e Extensible
	item := NewSimpleItem[string]("greeting", KindChannel, "p", serial.String{}, nil)

	require.Nil(t, item.Get(&e))
	item.Set(&e, "hello")
	require.Equal(t, "hello", *item.Get(&e))
	item.Unset(&e)
	require.Nil(t, item.Get(&e))
}

func TestSetReplacesAndFreesOld(t *testing.T) {
	var e Extensible
	var freed []string
	item := NewLocalItem[string]("slot", KindUser, "p", func(s *string) {
		freed = append(freed, *s)
	})

	item.Set(&e, "a")
	item.Set(&e, "b")
	require.Equal(t, []string{"a"}, freed)
	item.Unset(&e)
	require.Equal(t, []string{"a", "b"}, freed)
}

func TestCull(t *testing.T) {
	var e Extensible
	var freed int
	item := NewLocalItem[int]("n", KindUser, "p", func(*int) { freed++ })
	other := NewStringItem("s", KindUser, "p")

	item.Set(&e, 1)
	other.Set(&e, "x")

	e.Cull()
	require.Equal(t, 1, freed)
	require.Nil(t, item.Get(&e))
	require.Nil(t, other.Get(&e))
	require.Empty(t, e.ExtList())
	require.True(t, e.Culled())

	// Second cull is a no-op.
	e.Cull()
	require.Equal(t, 1, freed)

	// Sets after cull are dropped; the dropped value is released immediately.
	item.Set(&e, 2)
	require.Nil(t, item.Get(&e))
	require.Equal(t, 2, freed)
}

func TestFreeAllKeepsStoreUsable(t *testing.T) {
	var e Extensible
	item := NewStringItem("s", KindChannel, "p")

	item.Set(&e, "x")
	e.FreeAll()
	require.Nil(t, item.Get(&e))
	require.False(t, e.Culled())

	// Recycled object accepts new values.
	item.Set(&e, "y")
	require.Equal(t, "y", *item.Get(&e))

	e.FreeAll()
	e.FreeAll() // idempotent
	require.Empty(t, e.ExtList())
}

func TestIntItem(t *testing.T) {
	var e Extensible
	item := NewIntItem("count", KindMembership, "p")

	require.Zero(t, item.Get(&e))
	require.Zero(t, item.Set(&e, 7))
	require.Equal(t, int64(7), item.Get(&e))
	require.Equal(t, int64(7), item.Set(&e, 9))

	// Setting zero removes the slot entirely.
	require.Equal(t, int64(9), item.Set(&e, 0))
	require.Empty(t, e.ExtList())

	item.Set(&e, 3)
	item.Unset(&e)
	require.Zero(t, item.Get(&e))
}

func TestManagerDuplicateRegistration(t *testing.T) {
	m := NewManager()
	first := NewStringItem("x", KindUser, "p1")
	second := NewStringItem("x", KindUser, "p2")

	require.NoError(t, m.Register(first))
	require.ErrorIs(t, m.Register(second), ErrItemAlreadyRegistered)

	got, ok := m.Lookup("x")
	require.True(t, ok)
	require.Same(t, Item(first), got)

	require.ErrorIs(t, m.Register(NewStringItem("", KindUser, "p")), ErrEmptyKey)
}

func TestTwoPhaseUnload(t *testing.T) {
	m := NewManager()
	i1 := NewStringItem("p:one", KindUser, "plug")
	i2 := NewIntItem("p:two", KindUser, "plug")
	keep := NewStringItem("other", KindUser, "other-plug")
	require.NoError(t, m.Register(i1))
	require.NoError(t, m.Register(i2))
	require.NoError(t, m.Register(keep))

	hosts := []*Extensible{{}, {}, {}}
	for _, e := range hosts {
		i1.Set(e, "v")
		i2.Set(e, 42)
		keep.Set(e, "stays")
	}

	// Phase one: atomic removal from the registry.
	removed := m.BeginUnregister("plug")
	require.Len(t, removed, 2)
	_, ok := m.Lookup("p:one")
	require.False(t, ok)
	_, ok = m.Lookup("other")
	require.True(t, ok)

	// Phase two: host-wide walk unhooks the removed items.
	for _, e := range hosts {
		e.Unhook(removed)
	}
	for _, e := range hosts {
		require.Nil(t, i1.Get(e))
		require.Zero(t, i2.Get(e))
		require.Equal(t, "stays", *keep.Get(e))
		require.Len(t, e.ExtList(), 1)
	}
}

func TestIntSlotPersistRoundTripViaRegistry(t *testing.T) {
	m := NewManager()
	item := NewSimpleItem[int32]("k", KindUser, "p", serial.Integer[int32]{}, nil)
	require.NoError(t, m.Register(item))

	var e Extensible
	item.Set(&e, 0x01020304)

	var payload []byte
	for _, att := range e.ExtList() {
		payload = att.Item.Serialize(serial.FormatPersist, &e, att.Value)
	}
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, payload)
	e.Cull()

	var e2 Extensible
	loaded, ok := m.Lookup("k")
	require.True(t, ok)
	loaded.Unserialize(serial.FormatPersist, &e2, payload)
	require.Equal(t, int32(0x01020304), *item.Get(&e2))
}

func TestMapOfPairsInternalRoundTrip(t *testing.T) {
	ser := serial.SortedMap[string, serial.PairOf[uint16, string]](
		serial.String{},
		serial.Pair[uint16, string]{First: serial.Integer[uint16]{}, Second: serial.String{}},
	)
	item := NewSimpleItem[map[string]serial.PairOf[uint16, string]]("m", KindChannel, "p", ser, nil)

	var e Extensible
	item.Set(&e, map[string]serial.PairOf[uint16, string]{
		"a": {First: 7, Second: "hi\x00there"},
		"b": {First: 0, Second: ""},
	})

	var payload []byte
	for _, att := range e.ExtList() {
		payload = att.Item.Serialize(serial.FormatInternal, &e, att.Value)
	}
	require.NotEmpty(t, payload)

	var e2 Extensible
	item.Unserialize(serial.FormatInternal, &e2, payload)
	got := item.Get(&e2)
	require.NotNil(t, got)
	require.Equal(t, map[string]serial.PairOf[uint16, string]{
		"a": {First: 7, Second: "hi\x00there"},
		"b": {First: 0, Second: ""},
	}, *got)
}

func TestNetworkOptOut(t *testing.T) {
	type timerSettings struct {
		Interval uint32
		Trigger  int64
	}
	item := NewSimpleItem[timerSettings]("timer", KindUser, "p", serial.Primitive[timerSettings]{}, nil)

	var e Extensible
	item.Set(&e, timerSettings{Interval: 5, Trigger: 99})

	att := e.ExtList()
	require.Len(t, att, 1)
	require.Empty(t, att[0].Item.Serialize(serial.FormatNetwork, &e, att[0].Value))
	require.Len(t, att[0].Item.Serialize(serial.FormatPersist, &e, att[0].Value), 12)

	// Network unserialize is a no-op as well.
	var e2 Extensible
	item.Unserialize(serial.FormatNetwork, &e2, []byte("anything"))
	require.Nil(t, item.Get(&e2))
}

func TestDecodeFailureLeavesStoreUntouched(t *testing.T) {
	item := NewSimpleItem[int32]("n", KindUser, "p", serial.Integer[int32]{}, nil)

	var e Extensible
	item.Set(&e, 11)
	item.Unserialize(serial.FormatPersist, &e, []byte("bogus"))
	require.Equal(t, int32(11), *item.Get(&e))
}

func TestStringItemReplicates(t *testing.T) {
	item := NewStringItem("away", KindUser, "p")

	var e Extensible
	item.Set(&e, "brb")
	att := e.ExtList()
	require.Len(t, att, 1)
	require.Equal(t, "brb", string(att[0].Item.Serialize(serial.FormatNetwork, &e, att[0].Value)))

	var e2 Extensible
	item.Unserialize(serial.FormatNetwork, &e2, []byte("brb"))
	require.Equal(t, "brb", *item.Get(&e2))

	// Empty payload unsets.
	item.Unserialize(serial.FormatNetwork, &e2, nil)
	require.Nil(t, item.Get(&e2))
}
