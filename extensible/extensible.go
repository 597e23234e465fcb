package extensible

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// slot is one attachment: the item that owns the value plus the erased value.
// The value is never nil while the slot is present.
type slot struct {
	item  Item
	value any
}

// Attachment is one entry of an extensible's store as seen by walkers
// (netburst, persistence flush, whole-object dumps).
type Attachment struct {
	Item  Item
	Value any
}

// Extensible is the per-host-object attribute store. The zero value is ready
// to use; hosts embed it in their user/channel/membership types.
//
// All mutation goes through the items' typed accessors; the store itself only
// guarantees that values are never nil, that a culled store accepts no
// further sets, and that every value is released through its item's Free.
type Extensible struct {
	mu     sync.Mutex
	store  map[string]slot
	culled bool
}

// ExtList returns a snapshot of the current attachments, for iteration during
// metadata sync or persistence. The snapshot is taken at the moment of the
// call; later mutations are not reflected.
func (e *Extensible) ExtList() []Attachment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Attachment, 0, len(e.store))
	for _, s := range e.store {
		out = append(out, Attachment{Item: s.item, Value: s.value})
	}
	return out
}

// Culled reports whether final teardown has begun.
func (e *Extensible) Culled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.culled
}

// Cull begins final teardown: every attached value is freed through its
// item, the store is emptied, and further sets are dropped. Calling Cull
// again is a no-op.
func (e *Extensible) Cull() {
	e.mu.Lock()
	if e.culled {
		e.mu.Unlock()
		return
	}
	e.culled = true
	drained := e.drainLocked()
	e.mu.Unlock()

	freeSlots(e, drained)
}

// FreeAll frees every attached value without beginning teardown, for hosts
// that recycle objects. Idempotent; the store remains usable afterwards.
func (e *Extensible) FreeAll() {
	e.mu.Lock()
	drained := e.drainLocked()
	e.mu.Unlock()

	freeSlots(e, drained)
}

// Unhook removes the given items from this extensible, freeing their values.
// The extension manager drives this during phase two of plugin unload.
func (e *Extensible) Unhook(items []Item) {
	e.mu.Lock()
	var drained []slot
	for _, item := range items {
		if s, ok := e.store[item.Key()]; ok {
			delete(e.store, item.Key())
			drained = append(drained, s)
		}
	}
	e.mu.Unlock()

	freeSlots(e, drained)
}

// drainLocked empties the store and returns the removed slots. Caller holds
// the mutex; freeing happens outside it so Free hooks may re-enter.
func (e *Extensible) drainLocked() []slot {
	drained := make([]slot, 0, len(e.store))
	for _, s := range e.store {
		drained = append(drained, s)
	}
	e.store = nil
	return drained
}

func freeSlots(e *Extensible, slots []slot) {
	for _, s := range slots {
		s.item.Free(e, s.value)
	}
}

// getRaw looks up the erased value for item, or nil when unset.
func (e *Extensible) getRaw(item Item) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.store[item.Key()]; ok {
		return s.value
	}
	return nil
}

// setRaw stores value for item, returning the prior value for the caller to
// free. A set on a culled extensible is dropped: stored is false and the
// caller must release the new value itself.
func (e *Extensible) setRaw(item Item, value any) (old any, stored bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.culled {
		log.Warn().Str("key", item.Key()).Msg("extension set on culled object dropped")
		return nil, false
	}
	if e.store == nil {
		e.store = make(map[string]slot)
	}
	if prev, ok := e.store[item.Key()]; ok {
		old = prev.value
	}
	e.store[item.Key()] = slot{item: item, value: value}
	return old, true
}

// unsetRaw removes item's value, returning it for the caller to free.
func (e *Extensible) unsetRaw(item Item) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.store[item.Key()]; ok {
		delete(e.store, item.Key())
		return s.value
	}
	return nil
}
