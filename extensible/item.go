// Package extensible implements the typed extensible-attribute store: host
// objects (users, channels, memberships) carry an Extensible to which
// independently developed plugins attach strongly typed values through
// ExtensionItem descriptors, without the host knowing the attribute types.
package extensible

import "github.com/chatlink/ext/serial"

// Kind is the class of host object an extension item may attach to.
type Kind int

const (
	KindUser Kind = iota
	KindChannel
	KindMembership
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindChannel:
		return "channel"
	case KindMembership:
		return "membership"
	default:
		return "unknown"
	}
}

// Item describes one extension attribute: its key, the kind of host object it
// attaches to, and the plugin that owns it. The item is the only code that
// ever unpacks the erased value it stores, and the only code that frees it.
type Item interface {
	// Key returns the unique registration key.
	Key() string

	// Kind returns the host-object kind this item is valid for. Applying an
	// item to the wrong kind is a caller bug; the store does not detect it.
	Kind() Kind

	// Owner returns the name of the owning plugin, used for bulk-unregister.
	Owner() string

	// Serialize renders the erased value for the given format. Items that
	// refuse a format return an empty payload. Serialize never panics on a
	// nil value; it returns nil.
	Serialize(f serial.Format, e *Extensible, value any) []byte

	// Unserialize decodes data and sets the result on e, releasing any prior
	// value. A refused format is a no-op; a decode failure leaves e untouched.
	Unserialize(f serial.Format, e *Extensible, data []byte)

	// Free releases one erased value. It must be safe to call with nil. The
	// extensible calls it during cull and unhook; the typed accessors call it
	// on replace and unset.
	Free(e *Extensible, value any)
}

// ItemBase carries the identity shared by every item implementation.
// Implementations embed it and bind themselves so that values stored through
// promoted accessor methods are keyed by the outer item, not the embedded
// base.
type ItemBase struct {
	key   string
	kind  Kind
	owner string
	self  Item
}

// NewItemBase returns an ItemBase for the given key, kind and owning plugin.
func NewItemBase(key string, kind Kind, owner string) ItemBase {
	return ItemBase{key: key, kind: kind, owner: owner}
}

func (b *ItemBase) Key() string   { return b.key }
func (b *ItemBase) Kind() Kind    { return b.kind }
func (b *ItemBase) Owner() string { return b.owner }

// bind records the outer item so raw store operations use its identity.
func (b *ItemBase) bind(self Item) { b.self = self }

// item returns the bound outer item, falling back to nil for an unbound base.
func (b *ItemBase) item() Item { return b.self }
