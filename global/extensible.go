// Package global holds process-wide singletons behind atomic values, so that
// plugins and the host wiring can swap implementations without locking.
package global

import (
	"sync/atomic"

	"github.com/chatlink/ext/extensible"
)

func defaultExtensionManager() *atomic.Value {
	v := &atomic.Value{}
	v.Store(extensible.NewManager())
	return v
}

var globalExtensionManager = defaultExtensionManager()

// SetExtensionManager sets the global extension item registry.
func SetExtensionManager(m *extensible.Manager) {
	globalExtensionManager.Store(m)
}

// GetExtensionManager retrieves the current global extension item registry.
func GetExtensionManager() *extensible.Manager {
	return globalExtensionManager.Load().(*extensible.Manager)
}
