package extensible

import (
	"github.com/rs/zerolog/log"

	"github.com/chatlink/ext/serial"
)

// Ensure the wrappers satisfy the Item interface.
var (
	_ Item = (*LocalItem[struct{}])(nil)
	_ Item = (*SimpleItem[struct{}])(nil)
	_ Item = (*IntItem)(nil)
	_ Item = (*StringItem)(nil)
)

// Deleter releases an owned value when it is replaced, unset, unhooked or
// culled. The default (nil) deleter simply drops the reference; callers
// holding external resources — a pending timer, a file handle — supply their
// own.
type Deleter[T any] func(*T)

// LocalItem is an owned-value slot with no serialized form: it refuses every
// format, so its values never leave the process.
type LocalItem[T any] struct {
	ItemBase
	del Deleter[T]
}

// NewLocalItem creates an owned-value slot. del may be nil.
func NewLocalItem[T any](key string, kind Kind, owner string, del Deleter[T]) *LocalItem[T] {
	i := &LocalItem[T]{ItemBase: NewItemBase(key, kind, owner), del: del}
	i.bind(i)
	return i
}

// Get returns the stored value, or nil when unset.
func (i *LocalItem[T]) Get(e *Extensible) *T {
	v := e.getRaw(i.item())
	if v == nil {
		return nil
	}
	return v.(*T)
}

// Set stores a copy of value, releasing any prior value.
func (i *LocalItem[T]) Set(e *Extensible, value T) {
	i.SetPtr(e, &value)
}

// SetPtr stores ownership of a pre-allocated value; nil unsets. If the
// extensible has been culled the new value is released immediately and the
// store is left untouched.
func (i *LocalItem[T]) SetPtr(e *Extensible, value *T) {
	if value == nil {
		i.Unset(e)
		return
	}
	old, stored := e.setRaw(i.item(), value)
	if !stored {
		i.release(value)
		return
	}
	if old != nil {
		i.release(old.(*T))
	}
}

// Unset removes and releases the stored value.
func (i *LocalItem[T]) Unset(e *Extensible) {
	if old := e.unsetRaw(i.item()); old != nil {
		i.release(old.(*T))
	}
}

// Free implements Item.
func (i *LocalItem[T]) Free(_ *Extensible, value any) {
	if value == nil {
		return
	}
	i.release(value.(*T))
}

// Serialize implements Item: local values have no serialized form.
func (i *LocalItem[T]) Serialize(serial.Format, *Extensible, any) []byte { return nil }

// Unserialize implements Item as a no-op.
func (i *LocalItem[T]) Unserialize(serial.Format, *Extensible, []byte) {}

func (i *LocalItem[T]) release(t *T) {
	if i.del != nil {
		i.del(t)
	}
}

// SimpleItem is an owned-value slot backed by a typed serializer. Like all
// convenience wrappers except StringItem it refuses the network format:
// cross-server replication requires an item that opts in explicitly.
type SimpleItem[T any] struct {
	LocalItem[T]
	ser serial.Serializer[T]
}

// NewSimpleItem creates a serializable owned-value slot. del may be nil.
func NewSimpleItem[T any](key string, kind Kind, owner string, ser serial.Serializer[T], del Deleter[T]) *SimpleItem[T] {
	i := &SimpleItem[T]{
		LocalItem: LocalItem[T]{ItemBase: NewItemBase(key, kind, owner), del: del},
		ser:       ser,
	}
	i.bind(i)
	return i
}

// Serialize implements Item.
func (i *SimpleItem[T]) Serialize(f serial.Format, e *Extensible, value any) []byte {
	if value == nil || f == serial.FormatNetwork {
		return nil
	}
	b, err := serial.Bytes(i.ser, f, *value.(*T), serial.Context{Host: e, Item: i})
	if err != nil {
		log.Error().Err(err).Str("key", i.Key()).Str("format", f.String()).Msg("failed to serialize extension value")
		return nil
	}
	return b
}

// Unserialize implements Item. A network payload is ignored; a decode
// failure leaves the extensible untouched.
func (i *SimpleItem[T]) Unserialize(f serial.Format, e *Extensible, data []byte) {
	if f == serial.FormatNetwork {
		return
	}
	v, err := i.ser.Unserialize(f, data, serial.Context{Host: e, Item: i})
	if err != nil {
		log.Debug().Err(err).Str("key", i.Key()).Str("format", f.String()).Msg("discarding undecodable extension payload")
		return
	}
	i.SetPtr(e, &v)
}

// IntItem stores a machine word. An absent value reads as zero and setting
// zero removes the slot, so the store never holds a meaningless entry.
type IntItem struct {
	ItemBase
}

var intSer = serial.Integer[int64]{}

// NewIntItem creates an integer slot.
func NewIntItem(key string, kind Kind, owner string) *IntItem {
	i := &IntItem{ItemBase: NewItemBase(key, kind, owner)}
	i.bind(i)
	return i
}

// Get returns the stored word, or zero when unset.
func (i *IntItem) Get(e *Extensible) int64 {
	v := e.getRaw(i.item())
	if v == nil {
		return 0
	}
	return v.(int64)
}

// Set stores value and returns the prior word. Setting zero unsets.
func (i *IntItem) Set(e *Extensible, value int64) int64 {
	if value == 0 {
		old := e.unsetRaw(i.item())
		if old == nil {
			return 0
		}
		return old.(int64)
	}
	old, stored := e.setRaw(i.item(), value)
	if !stored || old == nil {
		return 0
	}
	return old.(int64)
}

// Unset is equivalent to Set(e, 0).
func (i *IntItem) Unset(e *Extensible) { i.Set(e, 0) }

// Free implements Item; integer slots own no resources.
func (i *IntItem) Free(*Extensible, any) {}

// Serialize implements Item: decimal for humans, a fixed-width image for
// reload and persistence, nothing for the network.
func (i *IntItem) Serialize(f serial.Format, e *Extensible, value any) []byte {
	if value == nil || f == serial.FormatNetwork {
		return nil
	}
	b, err := serial.Bytes[int64](intSer, f, value.(int64), serial.Context{Host: e, Item: i})
	if err != nil {
		return nil
	}
	return b
}

// Unserialize implements Item.
func (i *IntItem) Unserialize(f serial.Format, e *Extensible, data []byte) {
	if f == serial.FormatNetwork {
		return
	}
	v, err := intSer.Unserialize(f, data, serial.Context{Host: e, Item: i})
	if err != nil {
		log.Debug().Err(err).Str("key", i.Key()).Msg("discarding undecodable integer payload")
		return
	}
	i.Set(e, v)
}

// StringItem is a byte-string slot that, unlike the other wrappers, does
// replicate across the network.
type StringItem struct {
	ItemBase
}

// NewStringItem creates a network-synchronized string slot.
func NewStringItem(key string, kind Kind, owner string) *StringItem {
	i := &StringItem{ItemBase: NewItemBase(key, kind, owner)}
	i.bind(i)
	return i
}

// Get returns the stored string, or nil when unset.
func (i *StringItem) Get(e *Extensible) *string {
	v := e.getRaw(i.item())
	if v == nil {
		return nil
	}
	return v.(*string)
}

// Set stores value; the empty string unsets, mirroring Unserialize.
func (i *StringItem) Set(e *Extensible, value string) {
	if value == "" {
		i.Unset(e)
		return
	}
	_, _ = e.setRaw(i.item(), &value)
}

// Unset removes the stored string.
func (i *StringItem) Unset(e *Extensible) {
	e.unsetRaw(i.item())
}

// Free implements Item; strings own no resources.
func (i *StringItem) Free(*Extensible, any) {}

// Serialize implements Item: the string is emitted verbatim in every format.
func (i *StringItem) Serialize(_ serial.Format, _ *Extensible, value any) []byte {
	if value == nil {
		return nil
	}
	return []byte(*value.(*string))
}

// Unserialize implements Item: an empty payload unsets.
func (i *StringItem) Unserialize(_ serial.Format, e *Extensible, data []byte) {
	i.Set(e, string(data))
}
