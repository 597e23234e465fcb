package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatlink/ext/extensible"
	"github.com/chatlink/ext/serial"
)

type fakePlugin struct {
	name     string
	loadErr  error
	loads    int
	unloads  int
	onLoad   func() error
	onUnload func() error
}

func (p *fakePlugin) Name() string { return p.name }

func (p *fakePlugin) Load() error {
	p.loads++
	if p.onLoad != nil {
		return p.onLoad()
	}
	return p.loadErr
}

func (p *fakePlugin) Unload() error {
	p.unloads++
	if p.onUnload != nil {
		return p.onUnload()
	}
	return nil
}

func TestRegisterDuplicate(t *testing.T) {
	m := NewManager(extensible.NewManager())
	require.NoError(t, m.Register(&fakePlugin{name: "a"}))
	require.ErrorIs(t, m.Register(&fakePlugin{name: "a"}), ErrPluginAlreadyRegistered)
}

func TestLoadOrderValidation(t *testing.T) {
	m := NewManager(extensible.NewManager())
	require.NoError(t, m.Register(&fakePlugin{name: "a"}))
	require.NoError(t, m.Register(&fakePlugin{name: "b"}))

	require.ErrorIs(t, m.SetLoadOrder([]string{"a"}), ErrLoadOrderMismatch)
	require.ErrorIs(t, m.SetLoadOrder([]string{"a", "c"}), ErrLoadOrderMissing)
	require.ErrorIs(t, m.SetLoadOrder([]string{"a", "a"}), ErrLoadOrderDuplicate)
	require.NoError(t, m.SetLoadOrder([]string{"b", "a"}))
}

func TestLoadAllRollsBackOnFailure(t *testing.T) {
	m := NewManager(extensible.NewManager())
	ok := &fakePlugin{name: "ok"}
	bad := &fakePlugin{name: "bad", loadErr: errors.New("boom")}
	require.NoError(t, m.Register(ok))
	require.NoError(t, m.Register(bad))

	err := m.LoadAll()
	require.Error(t, err)
	require.Equal(t, 1, ok.loads)
	require.Equal(t, 1, ok.unloads)
}

func TestUnloadRunsTwoPhaseTeardown(t *testing.T) {
	ext := extensible.NewManager()
	m := NewManager(ext)

	users := []*extensible.Extensible{{}, {}, {}}
	m.RegisterWalker(extensible.KindUser, func(visit func(*extensible.Extensible)) {
		for _, u := range users {
			visit(u)
		}
	})

	i1 := extensible.NewStringItem("p:s", extensible.KindUser, "p")
	i2 := extensible.NewSimpleItem[int32]("p:n", extensible.KindUser, "p", serial.Integer[int32]{}, nil)

	p := &fakePlugin{name: "p"}
	p.onLoad = func() error {
		if err := ext.Register(i1); err != nil {
			return err
		}
		return ext.Register(i2)
	}
	require.NoError(t, m.Register(p))
	require.NoError(t, m.LoadAll())

	for _, u := range users {
		i1.Set(u, "v")
		i2.Set(u, 5)
	}

	require.NoError(t, m.Unload("p"))
	require.Equal(t, 1, p.unloads)

	// No extensible holds a value keyed by the plugin's items, and the
	// registry no longer knows the keys.
	for _, u := range users {
		require.Empty(t, u.ExtList())
	}
	_, ok := ext.Lookup("p:s")
	require.False(t, ok)
	_, ok = ext.Lookup("p:n")
	require.False(t, ok)

	require.ErrorIs(t, m.Unload("p"), ErrPluginNotFound)
}

func TestUnloadAllReverseOrder(t *testing.T) {
	m := NewManager(extensible.NewManager())
	var order []string
	mk := func(name string) *fakePlugin {
		p := &fakePlugin{name: name}
		p.onUnload = func() error {
			order = append(order, name)
			return nil
		}
		return p
	}
	require.NoError(t, m.Register(mk("first")))
	require.NoError(t, m.Register(mk("second")))
	require.NoError(t, m.LoadAll())

	require.NoError(t, m.UnloadAll())
	require.Equal(t, []string{"second", "first"}, order)
}
