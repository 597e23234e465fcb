package depreg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type greeter interface{ Greet() string }

type englishGreeter struct{}

func (englishGreeter) Greet() string { return "hello" }

type frenchGreeter struct{}

func (frenchGreeter) Greet() string { return "bonjour" }

func TestSetGetConcrete(t *testing.T) {
	r := New()
	r.Set(42, "answer")

	var n int
	var s string
	require.NoError(t, r.Get(&n, &s))
	require.Equal(t, 42, n)
	require.Equal(t, "answer", s)
}

func TestGetMissing(t *testing.T) {
	r := New()
	var n int
	require.ErrorIs(t, r.Get(&n), ErrDependencyNotFound)
}

func TestGetInvalidTarget(t *testing.T) {
	r := New()
	r.Set(1)
	require.ErrorIs(t, r.Get(5), ErrInvalidTarget)
}

func TestInterfaceResolution(t *testing.T) {
	r := New()
	r.Set(englishGreeter{})

	var g greeter
	require.NoError(t, r.Get(&g))
	require.Equal(t, "hello", g.Greet())

	r.Set(frenchGreeter{})
	var g2 greeter
	require.ErrorIs(t, r.Get(&g2), ErrAmbiguousInterface)
}

func TestOverwrite(t *testing.T) {
	r := New()
	r.Set(1)
	r.Set(2)

	var n int
	require.NoError(t, r.Get(&n))
	require.Equal(t, 2, n)
}

func TestGetWait(t *testing.T) {
	r := New()

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Set("late")
	}()

	var s string
	require.NoError(t, r.GetWait(2*time.Second, &s))
	require.Equal(t, "late", s)
}

func TestGetWaitTimeout(t *testing.T) {
	r := New()
	var s string
	err := r.GetWait(30*time.Millisecond, &s)
	require.ErrorIs(t, err, ErrWaitTimeout)
	require.ErrorIs(t, err, ErrDependencyNotFound)
}
