package metasync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatlink/ext/extensible"
	"github.com/chatlink/ext/serial"
)

// Resolver finds the live host object a record targets, or nil when the
// target is unknown on this server.
type Resolver func(kind extensible.Kind, target string) *extensible.Extensible

// Syncer publishes local metadata changes and applies remote ones. Records
// carrying the syncer's own origin id are ignored when they come back around.
type Syncer struct {
	origin   string
	broker   Broker
	items    *extensible.Manager
	resolve  Resolver
	throttle *Throttle

	ignoreSideEffects bool
	subID             string
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithThrottle rate-limits outbound records per target.
func WithThrottle(t *Throttle) SyncerOption {
	return func(s *Syncer) { s.throttle = t }
}

// WithIgnoreSideEffects drops inbound records that were produced while the
// remote server was itself applying a record, keeping replication loops from
// amplifying.
func WithIgnoreSideEffects() SyncerOption {
	return func(s *Syncer) { s.ignoreSideEffects = true }
}

// NewSyncer creates a syncer with a fresh origin id.
func NewSyncer(broker Broker, items *extensible.Manager, resolve Resolver, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		origin:  uuid.NewString(),
		broker:  broker,
		items:   items,
		resolve: resolve,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Origin returns the syncer's origin id.
func (s *Syncer) Origin() string { return s.origin }

// Start subscribes the syncer to its broker.
func (s *Syncer) Start(ctx context.Context) error {
	id, err := s.broker.Subscribe(ctx, s.apply)
	if err != nil {
		return fmt.Errorf("metasync: subscribe failed: %w", err)
	}
	s.subID = id
	log.Info().Str("origin", s.origin).Msg("metadata syncer started")
	return nil
}

// Stop unsubscribes the syncer.
func (s *Syncer) Stop(ctx context.Context) error {
	if s.subID == "" {
		return nil
	}
	err := s.broker.Unsubscribe(ctx, s.subID)
	s.subID = ""
	return err
}

// PublishChange announces the current value of one item on one host object.
// An absent value publishes an empty payload, which peers treat as unset. An
// item that does not serialize for the network is skipped silently.
func (s *Syncer) PublishChange(ctx context.Context, target string, item extensible.Item, e *extensible.Extensible, sideEffect bool) error {
	var payload []byte
	for _, att := range e.ExtList() {
		if att.Item == item {
			payload = item.Serialize(serial.FormatNetwork, e, att.Value)
			if len(payload) == 0 {
				return nil
			}
			break
		}
	}

	if s.throttle != nil && !s.throttle.Allow(throttleKey(item.Kind(), target)) {
		return fmt.Errorf("%w: %s", ErrThrottled, target)
	}

	return s.broker.Publish(ctx, &Record{
		Origin:     s.origin,
		Kind:       item.Kind(),
		Target:     target,
		Key:        item.Key(),
		Payload:    payload,
		SideEffect: sideEffect,
	})
}

// BurstObject announces every network-visible value on one host object, as
// done when a new server link comes up. Items that serialize to nothing are
// skipped.
func (s *Syncer) BurstObject(ctx context.Context, kind extensible.Kind, target string, e *extensible.Extensible) error {
	if s.throttle != nil && !s.throttle.Allow(throttleKey(kind, target)) {
		return fmt.Errorf("%w: %s", ErrThrottled, target)
	}

	for _, att := range e.ExtList() {
		payload := att.Item.Serialize(serial.FormatNetwork, e, att.Value)
		if len(payload) == 0 {
			continue
		}
		rec := &Record{
			Origin:  s.origin,
			Kind:    kind,
			Target:  target,
			Key:     att.Item.Key(),
			Payload: payload,
		}
		if err := s.broker.Publish(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// apply is the broker handler for inbound records.
func (s *Syncer) apply(rec *Record) {
	if rec.Origin == s.origin {
		return
	}
	if rec.SideEffect && s.ignoreSideEffects {
		return
	}

	item, ok := s.items.Lookup(rec.Key)
	if !ok {
		log.Debug().Str("key", rec.Key).Msg("dropping record for unregistered item")
		return
	}
	if item.Kind() != rec.Kind {
		log.Warn().Str("key", rec.Key).Str("record_kind", rec.Kind.String()).Str("item_kind", item.Kind().String()).Msg("dropping record with mismatched kind")
		return
	}

	e := s.resolve(rec.Kind, rec.Target)
	if e == nil {
		log.Debug().Str("target", rec.Target).Str("kind", rec.Kind.String()).Msg("dropping record for unknown target")
		return
	}

	item.Unserialize(serial.FormatNetwork, e, rec.Payload)
}

func throttleKey(kind extensible.Kind, target string) string {
	return kind.String() + ":" + target
}
