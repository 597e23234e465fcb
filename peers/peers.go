// Package peers tracks the linked servers of a chat network. Each server
// registers itself in redis with a heartbeat; the others discover it there,
// and a gRPC resolver feeds the live peer list to server-to-server links.
package peers

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Server is one linked server instance.
type Server struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Address  string            `json:"address"`
	Metadata map[string]string `json:"metadata"`
}

// String provides a human-readable representation.
func (s *Server) String() string {
	return fmt.Sprintf("%s/%s@%s", s.Name, s.ID, s.Address)
}

// Registry registers this server with the network and discovers the others.
type Registry interface {
	// Register announces a server and starts heartbeating it. The returned
	// function deregisters it.
	Register(ctx context.Context, srv *Server) (deregister func(context.Context) error, err error)

	// Deregister removes a server and stops its heartbeat.
	Deregister(ctx context.Context, srv *Server) error

	// Discover lists the currently live servers of the named network.
	Discover(ctx context.Context, network string) ([]*Server, error)

	// Watch emits the full live server list whenever it changes, until the
	// context ends.
	Watch(ctx context.Context, network string) (<-chan []*Server, error)

	// Close stops the registry's heartbeats. The redis client is left to
	// its owner.
	Close() error
}

// fingerprint summarizes a server list so watchers can cheaply detect change.
func fingerprint(servers []*Server) string {
	if len(servers) == 0 {
		return "empty"
	}
	sort.SliceStable(servers, func(i, j int) bool {
		return servers[i].ID < servers[j].ID
	})

	var sb strings.Builder
	for i, srv := range servers {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(srv.ID)
		sb.WriteString("@")
		sb.WriteString(srv.Address)
	}
	return sb.String()
}
