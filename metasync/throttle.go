package metasync

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Throttle is a per-key token bucket. The syncer uses it to stop one target
// from flooding the metadata channel.
type Throttle struct {
	rate   float64
	period float64

	mu    sync.Mutex
	state map[string]bucketState
}

type bucketState struct {
	allowance float64
	lastCheck time.Time
}

// NewThrottle allows rate publications per period, per key, with bursts up to
// rate.
func NewThrottle(rate float64, period time.Duration) *Throttle {
	return &Throttle{
		rate:   rate,
		period: period.Seconds(),
		state:  make(map[string]bucketState),
	}
}

// Allow consumes one token for key and reports whether it was available.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	st, exists := t.state[key]
	if !exists {
		t.state[key] = bucketState{allowance: t.rate - 1.0, lastCheck: now}
		return true
	}

	st.allowance += now.Sub(st.lastCheck).Seconds() * (t.rate / t.period)
	if st.allowance > t.rate {
		st.allowance = t.rate
	}
	st.lastCheck = now

	allowed := st.allowance >= 1.0
	if allowed {
		st.allowance -= 1.0
	} else {
		log.Warn().Str("key", key).Float64("allowance", st.allowance).Msg("metadata rate exceeded")
	}
	t.state[key] = st
	return allowed
}
