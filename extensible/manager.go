package extensible

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Predefined errors for extension item registration.
var (
	ErrItemAlreadyRegistered = errors.New("extensible: extension item key is already registered")
	ErrEmptyKey              = errors.New("extensible: extension item key must not be empty")
)

// Manager is the process-wide registry of extension items keyed by name.
// Mutations are legal only during plugin load/unload, which the host arranges
// to happen outside event dispatch.
type Manager struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewManager creates an empty extension item registry.
func NewManager() *Manager {
	return &Manager{
		items: make(map[string]Item),
	}
}

// Register adds an item keyed by its name. A second registration of the same
// key is rejected; the first item remains the only one returned by Lookup.
func (m *Manager) Register(item Item) error {
	key := item.Key()
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; exists {
		log.Error().Str("key", key).Str("owner", item.Owner()).Msg("attempted to register duplicate extension item")
		return fmt.Errorf("%w: %s", ErrItemAlreadyRegistered, key)
	}

	m.items[key] = item
	log.Info().Str("key", key).Str("kind", item.Kind().String()).Str("owner", item.Owner()).Msg("extension item registered")
	return nil
}

// BeginUnregister atomically removes every item owned by the given plugin
// from the registry and returns them. This is phase one of the two-phase
// unload: removal here prevents new sets racing in, after which the caller
// must walk every live extensible of each affected kind and Unhook the
// returned items before dropping them.
func (m *Manager) BeginUnregister(owner string) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []Item
	for key, item := range m.items {
		if item.Owner() == owner {
			delete(m.items, key)
			removed = append(removed, item)
		}
	}
	if len(removed) > 0 {
		log.Info().Str("owner", owner).Int("count", len(removed)).Msg("extension items unregistered for plugin unload")
	}
	return removed
}

// Lookup returns the item registered under the given key. The metadata sync
// and persistence reload paths use it to find the typed descriptor by name.
func (m *Manager) Lookup(key string) (Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[key]
	return item, ok
}

// Items returns a snapshot of all registered items keyed by name, for
// introspection.
func (m *Manager) Items() map[string]Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Item, len(m.items))
	for k, v := range m.items {
		out[k] = v
	}
	return out
}
