package plugin

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatlink/ext/extensible"
)

// Manager manages the registration and lifecycle (loading, unloading) of
// plugins. It owns the relationship between plugins and the extension item
// registry: when a plugin goes away, the manager runs the two-phase unload —
// registry removal, host-wide unhook, then the plugin's items are dropped.
type Manager struct {
	mu        sync.RWMutex
	ext       *extensible.Manager
	plugins   map[string]Plugin
	walkers   map[extensible.Kind]Walker
	loadOrder []string
	loaded    map[string]bool
}

// NewManager creates a plugin manager bound to the given extension registry.
func NewManager(ext *extensible.Manager) *Manager {
	return &Manager{
		ext:     ext,
		plugins: make(map[string]Plugin),
		walkers: make(map[extensible.Kind]Walker),
		loaded:  make(map[string]bool),
	}
}

// RegisterWalker installs the host's enumeration hook for one object kind.
// Without a walker for a kind, values of that kind owned by an unloading
// plugin cannot be unhooked and would leak.
func (m *Manager) RegisterWalker(kind extensible.Kind, w Walker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walkers[kind] = w
}

// Register adds a new plugin to the manager, appended to the load order.
func (m *Manager) Register(p Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, exists := m.plugins[name]; exists {
		log.Error().Str("plugin", name).Msg("attempted to register duplicate plugin")
		return fmt.Errorf("%w: %s", ErrPluginAlreadyRegistered, name)
	}

	m.plugins[name] = p
	m.loadOrder = append(m.loadOrder, name)
	log.Info().Str("plugin", name).Msg("plugin registered")
	return nil
}

// SetLoadOrder explicitly sets the order in which plugins are loaded. The
// provided names must match the registered plugins exactly, without
// duplicates. Unload happens in the reverse of this order.
func (m *Manager) SetLoadOrder(names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(names) != len(m.plugins) {
		return fmt.Errorf("%w (provided: %d, registered: %d)", ErrLoadOrderMismatch, len(names), len(m.plugins))
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, exists := m.plugins[name]; !exists {
			return fmt.Errorf("%w: %s", ErrLoadOrderMissing, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s", ErrLoadOrderDuplicate, name)
		}
		seen[name] = struct{}{}
	}

	m.loadOrder = append([]string(nil), names...)
	log.Info().Strs("load_order", m.loadOrder).Msg("plugin load order set")
	return nil
}

// Get retrieves a registered plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	return p, ok
}

// LoadAll loads all registered plugins in load order. If a plugin fails to
// load, the plugins loaded before it are unloaded again in reverse order and
// the original error is returned.
func (m *Manager) LoadAll() error {
	m.mu.RLock()
	order := append([]string(nil), m.loadOrder...)
	m.mu.RUnlock()

	var done []string
	for _, name := range order {
		m.mu.RLock()
		p, exists := m.plugins[name]
		m.mu.RUnlock()
		if !exists {
			continue
		}

		start := time.Now()
		if err := p.Load(); err != nil {
			log.Error().Str("plugin", name).Dur("duration", time.Since(start)).Err(err).Msg("failed to load plugin")
			m.unloadSpecific(done)
			return fmt.Errorf("failed to load plugin %s: %w", name, err)
		}

		m.mu.Lock()
		m.loaded[name] = true
		m.mu.Unlock()
		done = append(done, name)
		log.Info().Str("plugin", name).Dur("duration", time.Since(start)).Msg("plugin loaded")
	}
	return nil
}

// Unload unloads one plugin: its own Unload hook runs first, then the
// two-phase extension teardown, and finally the plugin is unregistered.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	p, exists := m.plugins[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	wasLoaded := m.loaded[name]
	delete(m.plugins, name)
	delete(m.loaded, name)
	order := make([]string, 0, len(m.loadOrder)-1)
	for _, n := range m.loadOrder {
		if n != name {
			order = append(order, n)
		}
	}
	m.loadOrder = order
	m.mu.Unlock()

	var err error
	if wasLoaded {
		if err = p.Unload(); err != nil {
			log.Error().Str("plugin", name).Err(err).Msg("plugin unload hook failed")
		}
	}
	m.unhookExtensions(name)
	log.Info().Str("plugin", name).Msg("plugin unloaded")
	return err
}

// UnloadAll unloads every loaded plugin in reverse load order, running the
// two-phase extension teardown for each. Errors are collected; unloading
// continues past failures.
func (m *Manager) UnloadAll() error {
	m.mu.RLock()
	order := append([]string(nil), m.loadOrder...)
	m.mu.RUnlock()

	var allErrors []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]

		m.mu.RLock()
		p, exists := m.plugins[name]
		isLoaded := m.loaded[name]
		m.mu.RUnlock()
		if !exists {
			continue
		}

		if isLoaded {
			if err := p.Unload(); err != nil {
				log.Error().Str("plugin", name).Err(err).Msg("failed to unload plugin")
				allErrors = append(allErrors, fmt.Errorf("failed to unload plugin %s: %w", name, err))
			}
			m.mu.Lock()
			delete(m.loaded, name)
			m.mu.Unlock()
		}
		m.unhookExtensions(name)
	}

	if len(allErrors) > 0 {
		log.Warn().Int("error_count", len(allErrors)).Msg("plugin unload completed with errors")
		return errors.Join(allErrors...)
	}
	return nil
}

// unloadSpecific is the rollback helper for a failed LoadAll: it unloads the
// plugins in names in reverse order.
func (m *Manager) unloadSpecific(names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]

		m.mu.RLock()
		p, exists := m.plugins[name]
		isLoaded := m.loaded[name]
		m.mu.RUnlock()
		if !exists || !isLoaded {
			continue
		}

		log.Warn().Str("plugin", name).Msg("rolling back plugin load")
		if err := p.Unload(); err != nil {
			log.Error().Str("plugin", name).Err(err).Msg("rollback unload failed")
		}
		m.mu.Lock()
		delete(m.loaded, name)
		m.mu.Unlock()
		m.unhookExtensions(name)
	}
}

// unhookExtensions runs the two-phase extension teardown for one plugin:
// phase one removes the plugin's items from the registry so no new set can
// race in; phase two walks every live extensible of each affected kind and
// unhooks the removed items, freeing their values. Only then are the items
// themselves dropped.
func (m *Manager) unhookExtensions(owner string) {
	if m.ext == nil {
		return
	}
	removed := m.ext.BeginUnregister(owner)
	if len(removed) == 0 {
		return
	}

	byKind := make(map[extensible.Kind][]extensible.Item)
	for _, item := range removed {
		byKind[item.Kind()] = append(byKind[item.Kind()], item)
	}

	m.mu.RLock()
	walkers := make(map[extensible.Kind]Walker, len(m.walkers))
	for k, w := range m.walkers {
		walkers[k] = w
	}
	m.mu.RUnlock()

	for kind, items := range byKind {
		walker, ok := walkers[kind]
		if !ok {
			log.Warn().Str("kind", kind.String()).Str("owner", owner).Msg("no walker registered for kind; extension values leak")
			continue
		}
		walker(func(e *extensible.Extensible) {
			e.Unhook(items)
		})
	}
}
