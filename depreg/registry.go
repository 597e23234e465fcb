// Package depreg is a type-keyed dependency registry. Plugins use it to
// obtain shared server services (the scheduler, the metadata broker, the
// persistence flusher) without importing the wiring code that built them.
package depreg

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrDependencyNotFound = errors.New("dependency not found")
	ErrInvalidTarget      = errors.New("target must be a non-nil pointer")
	ErrAmbiguousInterface = errors.New("multiple registered values implement the requested interface")
	ErrWaitTimeout        = errors.New("timed out waiting for dependencies")
)

// Registry stores one value per concrete type. Lookups match the exact type
// first and fall back to a unique interface implementation.
type Registry struct {
	mu    sync.RWMutex
	store map[reflect.Type]reflect.Value
	cond  *sync.Cond
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{store: make(map[reflect.Type]reflect.Value)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Set registers the given values, keyed by their concrete types. A value of
// an already-registered type replaces the previous one. Nil values are
// ignored. Waiters blocked in GetWait are woken.
func (r *Registry) Set(vals ...any) {
	if len(vals) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := false
	for _, v := range vals {
		if v == nil {
			log.Warn().Msg("ignoring nil dependency")
			continue
		}
		rv := reflect.ValueOf(v)
		if _, exists := r.store[rv.Type()]; exists {
			log.Warn().Str("type", rv.Type().String()).Msg("overwriting registered dependency")
		}
		r.store[rv.Type()] = rv
		log.Debug().Str("type", rv.Type().String()).Msg("dependency registered")
		stored = true
	}
	if stored {
		r.cond.Broadcast()
	}
}

// Get assigns registered values to the given targets, each a non-nil pointer
// to a variable of the wanted type. Interface targets resolve to the unique
// registered implementation.
func (r *Registry) Get(targets ...any) error {
	if len(targets) == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolve(targets)
}

// MustGet is Get for dependencies the caller cannot run without.
func (r *Registry) MustGet(targets ...any) {
	if err := r.Get(targets...); err != nil {
		log.Panic().Err(err).Msg("required dependency missing")
	}
}

// GetWait is Get, except that missing dependencies are waited for until the
// timeout elapses. A zero or negative timeout does not wait.
func (r *Registry) GetWait(timeout time.Duration, targets ...any) error {
	if len(targets) == 0 {
		return nil
	}
	if timeout <= 0 {
		return r.Get(targets...)
	}

	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		r.cond.Broadcast()
	})
	defer timer.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		err := r.resolve(targets)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDependencyNotFound) {
			return err
		}
		if time.Now().After(deadline) {
			log.Warn().Err(err).Dur("timeout", timeout).Msg("gave up waiting for dependencies")
			return fmt.Errorf("%w: %w", ErrWaitTimeout, err)
		}
		r.cond.Wait()
	}
}

// resolve must be called with the lock held.
func (r *Registry) resolve(targets []any) error {
	var missing []reflect.Type

	for _, target := range targets {
		tv := reflect.ValueOf(target)
		if tv.Kind() != reflect.Ptr || tv.IsNil() {
			return fmt.Errorf("%w: received %T", ErrInvalidTarget, target)
		}

		elem := tv.Elem()
		found, err := r.lookup(elem.Type())
		if err != nil {
			if errors.Is(err, ErrDependencyNotFound) {
				missing = append(missing, elem.Type())
				continue
			}
			return err
		}
		elem.Set(found)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrDependencyNotFound, missing)
	}
	return nil
}

func (r *Registry) lookup(want reflect.Type) (reflect.Value, error) {
	if v, ok := r.store[want]; ok {
		return v, nil
	}

	if want.Kind() == reflect.Interface {
		var match reflect.Value
		count := 0
		for t, v := range r.store {
			if t.Implements(want) {
				match = v
				count++
			}
		}
		switch {
		case count == 1:
			return match, nil
		case count > 1:
			return reflect.Value{}, fmt.Errorf("%w: %s", ErrAmbiguousInterface, want)
		}
	}

	return reflect.Value{}, ErrDependencyNotFound
}
