// Package persist saves extension metadata across restarts. A snapshot of the
// persistent values on the live host objects is written to a store; on boot
// the records are replayed through the item registry onto the recreated
// objects.
package persist

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/chatlink/ext/extensible"
	"github.com/chatlink/ext/serial"
)

var (
	ErrStoreClosed = errors.New("persist: store is closed")
)

// Record is one persisted extension value.
type Record struct {
	Kind    extensible.Kind
	Target  string
	Key     string
	Payload []byte
}

// Store holds a full snapshot of persisted records. Save replaces the
// previous snapshot.
type Store interface {
	Save(ctx context.Context, recs []Record) error
	Load(ctx context.Context) ([]Record, error)
	Close() error
}

// Resolver finds the live host object a record targets, or nil when the
// target no longer exists.
type Resolver func(kind extensible.Kind, target string) *extensible.Extensible

// Snapshot collects the persistable values of one host object. Items that do
// not serialize for persistence contribute nothing.
func Snapshot(kind extensible.Kind, target string, e *extensible.Extensible) []Record {
	var recs []Record
	for _, att := range e.ExtList() {
		payload := att.Item.Serialize(serial.FormatPersist, e, att.Value)
		if len(payload) == 0 {
			continue
		}
		recs = append(recs, Record{
			Kind:    kind,
			Target:  target,
			Key:     att.Item.Key(),
			Payload: payload,
		})
	}
	return recs
}

// Restore replays records onto live host objects. Records whose item is no
// longer registered or whose target cannot be resolved are skipped.
func Restore(ctx context.Context, store Store, items *extensible.Manager, resolve Resolver) error {
	recs, err := store.Load(ctx)
	if err != nil {
		return err
	}

	restored := 0
	for _, rec := range recs {
		item, ok := items.Lookup(rec.Key)
		if !ok {
			log.Debug().Str("key", rec.Key).Msg("skipping persisted record for unregistered item")
			continue
		}
		if item.Kind() != rec.Kind {
			log.Warn().Str("key", rec.Key).Str("record_kind", rec.Kind.String()).Msg("skipping persisted record with mismatched kind")
			continue
		}
		e := resolve(rec.Kind, rec.Target)
		if e == nil {
			log.Debug().Str("target", rec.Target).Str("kind", rec.Kind.String()).Msg("skipping persisted record for missing target")
			continue
		}
		item.Unserialize(serial.FormatPersist, e, rec.Payload)
		restored++
	}

	log.Info().Int("records", len(recs)).Int("restored", restored).Msg("persisted metadata restored")
	return nil
}
