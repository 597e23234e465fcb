// Package metasync replicates extension metadata between servers. A change to
// a network-visible extension value is published as a record; peers apply the
// record to their copy of the host object through the shared item registry.
package metasync

import (
	"context"
	"errors"

	"github.com/chatlink/ext/extensible"
)

var (
	ErrBrokerClosed = errors.New("metasync: broker is closed")
	ErrThrottled    = errors.New("metasync: target is over its metadata rate")
)

// Record is one metadata change on the wire.
type Record struct {
	// Origin identifies the publishing syncer, so a server can ignore its
	// own records coming back around.
	Origin string `json:"origin"`
	// Kind and Target name the host object the metadata belongs to.
	Kind   extensible.Kind `json:"kind"`
	Target string          `json:"target"`
	// Key is the registered extension item key.
	Key string `json:"key"`
	// Payload is the item's network serialization. Empty means unset.
	Payload []byte `json:"payload,omitempty"`
	// SideEffect marks records produced while applying a remote change, as
	// opposed to a local user action.
	SideEffect bool `json:"side_effect,omitempty"`
}

// Handler consumes one record.
type Handler func(*Record)

// Broker carries records between servers. The memory implementation serves a
// single process; the redis implementation fans out across a cluster.
type Broker interface {
	Publish(ctx context.Context, rec *Record) error
	Subscribe(ctx context.Context, h Handler) (string, error)
	Unsubscribe(ctx context.Context, id string) error
	Close() error
}
