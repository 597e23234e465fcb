package peers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/resolver"
)

// Scheme is the URI scheme for peer-resolved gRPC targets, e.g.
// "chatpeers:///mynetwork".
const Scheme = "chatpeers"

var (
	_ resolver.Builder  = (*ResolverBuilder)(nil)
	_ resolver.Resolver = (*peerResolver)(nil)
)

// ResolverBuilder implements gRPC's resolver.Builder on top of a peer
// Registry.
type ResolverBuilder struct {
	registry Registry
}

// NewResolverBuilder creates a builder backed by the given registry.
func NewResolverBuilder(registry Registry) *ResolverBuilder {
	return &ResolverBuilder{registry: registry}
}

// Build creates a resolver for one network. The network name is the target
// path.
func (b *ResolverBuilder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	if b.registry == nil {
		return nil, errors.New("peers: resolver builder has no registry")
	}

	network := strings.TrimPrefix(target.URL.Path, "/")
	if network == "" {
		network = target.Endpoint()
	}
	if network == "" {
		return nil, fmt.Errorf("peers: target %q must name a network in its path", target.URL.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &peerResolver{
		registry: b.registry,
		network:  network,
		cc:       cc,
		ctx:      ctx,
		cancel:   cancel,
	}
	if err := r.startWatching(); err != nil {
		cancel()
		return nil, fmt.Errorf("peers: start watcher for %s: %w", network, err)
	}

	log.Info().Str("network", network).Msg("peer resolver built")
	return r, nil
}

// Scheme implements resolver.Builder.
func (b *ResolverBuilder) Scheme() string { return Scheme }

type peerResolver struct {
	registry Registry
	network  string
	cc       resolver.ClientConn
	ctx      context.Context
	cancel   context.CancelFunc
	watchCh  <-chan []*Server
	wg       sync.WaitGroup
}

func (r *peerResolver) startWatching() error {
	var err error
	r.watchCh, err = r.registry.Watch(r.ctx, r.network)
	if err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				return
			case servers, ok := <-r.watchCh:
				if !ok {
					r.cc.ReportError(fmt.Errorf("peers: watch channel closed for network %s", r.network))
					return
				}

				addresses := make([]resolver.Address, 0, len(servers))
				for _, srv := range servers {
					addresses = append(addresses, resolver.Address{
						Addr:       srv.Address,
						ServerName: srv.Name,
						Attributes: AttachMetadata(nil, srv.Metadata),
					})
				}
				if err := r.cc.UpdateState(resolver.State{Addresses: addresses}); err != nil {
					log.Error().Err(err).Str("network", r.network).Msg("failed to update grpc resolver state")
				}
			}
		}
	}()
	return nil
}

// ResolveNow is a no-op; the polling watcher catches up on its own.
func (r *peerResolver) ResolveNow(resolver.ResolveNowOptions) {}

// Close stops the watcher and waits for it to exit.
func (r *peerResolver) Close() {
	r.cancel()
	r.wg.Wait()
}

// RegisterServer is a convenience for a server announcing itself on the
// network. An empty id gets a fresh UUID.
func RegisterServer(ctx context.Context, registry Registry, network, id, address string, metadata map[string]string) (func(context.Context) error, error) {
	if id == "" {
		id = uuid.NewString()
	}
	return registry.Register(ctx, &Server{
		ID:       id,
		Name:     network,
		Address:  address,
		Metadata: metadata,
	})
}
