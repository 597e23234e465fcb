package global

import (
	"sync/atomic"

	"github.com/chatlink/ext/metasync"
)

// The syncer has no usable default: it needs a broker and a resolver, which
// only the host wiring can supply.
var globalSyncer = &atomic.Value{}

// SetSyncer sets the global metadata syncer instance.
func SetSyncer(s *metasync.Syncer) {
	globalSyncer.Store(s)
}

// GetSyncer retrieves the current global metadata syncer instance. It returns
// nil until SetSyncer has been called.
func GetSyncer() *metasync.Syncer {
	s, _ := globalSyncer.Load().(*metasync.Syncer)
	return s
}
