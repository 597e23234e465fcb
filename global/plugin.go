package global

import (
	"sync/atomic"

	"github.com/chatlink/ext/plugin"
)

func defaultPluginManager() *atomic.Value {
	v := &atomic.Value{}
	v.Store(plugin.NewManager(GetExtensionManager()))
	return v
}

var globalPluginManager = defaultPluginManager()

// SetPluginManager sets the global plugin manager.
func SetPluginManager(m *plugin.Manager) {
	globalPluginManager.Store(m)
}

// GetPluginManager retrieves the current global plugin manager.
func GetPluginManager() *plugin.Manager {
	return globalPluginManager.Load().(*plugin.Manager)
}
