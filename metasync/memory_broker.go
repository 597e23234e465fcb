package metasync

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MemoryBroker delivers records to in-process subscribers. Delivery is
// synchronous: Publish returns after every handler has run.
type MemoryBroker struct {
	mu     sync.RWMutex
	closed bool
	subs   map[string]Handler
}

// NewMemoryBroker creates an in-process record broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]Handler)}
}

// Publish delivers rec to every subscriber.
func (m *MemoryBroker) Publish(ctx context.Context, rec *Record) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrBrokerClosed
	}
	handlers := make([]Handler, 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		h(rec)
	}
	return nil
}

// Subscribe registers a handler and returns its subscription id.
func (m *MemoryBroker) Subscribe(_ context.Context, h Handler) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrBrokerClosed
	}
	id := uuid.NewString()
	m.subs[id] = h
	log.Debug().Str("subscription_id", id).Msg("metadata subscription created")
	return id, nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (m *MemoryBroker) Unsubscribe(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

// Close shuts the broker down. Further publishes fail.
func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.subs = make(map[string]Handler)
	log.Info().Msg("memory metadata broker closed")
	return nil
}

var _ Broker = (*MemoryBroker)(nil)
