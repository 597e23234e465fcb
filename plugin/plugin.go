// Package plugin defines the interface for server plugins and the manager
// responsible for their lifecycle, including the two-phase teardown of the
// extension items a plugin owns.
package plugin

import (
	"fmt"

	"github.com/chatlink/ext/extensible"
)

// Plugin is one independently developed server module.
type Plugin interface {
	// Name returns the unique name of the plugin. Extension items created by
	// the plugin use this name as their owner handle.
	Name() string

	// Load performs the initialization logic for the plugin: registering
	// extension items, hooking events, starting background work.
	Load() error

	// Unload performs the plugin's own cleanup. The manager tears down the
	// plugin's extension items afterwards; Unload must not free values that
	// still live in host objects.
	Unload() error
}

// Walker visits every live extensible of one host-object kind. The host
// registers one per kind so that plugin unload can unhook extension values
// from all live objects.
type Walker func(visit func(*extensible.Extensible))

// Predefined errors for common scenarios in plugin management.
var (
	ErrPluginAlreadyRegistered = fmt.Errorf("plugin name is already registered")
	ErrPluginNotFound          = fmt.Errorf("plugin not found")
	ErrLoadOrderMismatch       = fmt.Errorf("load order list count does not match registered plugin count")
	ErrLoadOrderMissing        = fmt.Errorf("plugin specified in load order but not registered")
	ErrLoadOrderDuplicate      = fmt.Errorf("duplicate plugin name found in load order")
)
