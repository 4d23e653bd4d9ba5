package server

import "context"

// Transport is the short-range link the node floods over. Delivery is best
// effort: unordered, unreliable and unauthenticated.
type Transport interface {
	// DiscoverPeers returns the peers currently in range.
	DiscoverPeers(ctx context.Context) ([]string, error)
	// Broadcast sends payload to each of peers.
	Broadcast(ctx context.Context, peers []string, payload []byte) error
	// OnReceive registers the hook called for every inbound payload. from is
	// the sending peer when the link knows it, otherwise empty.
	OnReceive(fn func(from string, payload []byte))
}
