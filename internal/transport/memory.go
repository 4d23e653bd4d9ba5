package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
)

// MemoryNetwork simulates devices sharing a radio medium in one process.
// Links are symmetric and stand for "in range"; they can change at any time.
type MemoryNetwork struct {
	mu       sync.RWMutex
	members  map[string]*MemoryTransport
	links    map[string]map[string]bool
	loss     float64
	rng      *rand.Rand
	rngMu    sync.Mutex
	sent     atomic.Int64
	received atomic.Int64
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		members: make(map[string]*MemoryTransport),
		links:   make(map[string]map[string]bool),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// Join registers a device and returns its transport.
func (n *MemoryNetwork) Join(id string) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	if t, ok := n.members[id]; ok {
		return t
	}
	t := &MemoryTransport{network: n, id: id}
	n.members[id] = t
	n.links[id] = make(map[string]bool)
	return t
}

func (n *MemoryNetwork) Link(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.links[a] == nil || n.links[b] == nil || a == b {
		return
	}
	n.links[a][b] = true
	n.links[b][a] = true
}

func (n *MemoryNetwork) Unlink(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.links[a], b)
	delete(n.links[b], a)
}

// SetLoss makes each delivery fail with probability p, using a seeded source
// so runs are repeatable.
func (n *MemoryNetwork) SetLoss(p float64, seed int64) {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	n.loss = p
	n.rng = rand.New(rand.NewSource(seed))
}

func (n *MemoryNetwork) dropped() bool {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.loss > 0 && n.rng.Float64() < n.loss
}

// Sent is the number of payloads handed to the medium; Received is how many
// reached a device.
func (n *MemoryNetwork) Sent() int64     { return n.sent.Load() }
func (n *MemoryNetwork) Received() int64 { return n.received.Load() }

func (n *MemoryNetwork) neighbours(id string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	res := make([]string, 0, len(n.links[id]))
	for p := range n.links[id] {
		res = append(res, p)
	}
	sort.Strings(res)
	return res
}

func (n *MemoryNetwork) inRange(a, b string) (*MemoryTransport, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.links[a][b] {
		return nil, false
	}
	t, ok := n.members[b]
	return t, ok
}

// MemoryTransport is one device's view of a MemoryNetwork.
type MemoryTransport struct {
	network *MemoryNetwork
	id      string
	mu      sync.RWMutex
	recv    func(from string, payload []byte)
	down    bool
}

func (t *MemoryTransport) ID() string {
	return t.id
}

// SetDown makes discovery and broadcast fail, as when the radio is off.
func (t *MemoryTransport) SetDown(down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.down = down
}

func (t *MemoryTransport) isDown() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.down
}

func (t *MemoryTransport) DiscoverPeers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.isDown() {
		return nil, fmt.Errorf("radio %s is down", t.id)
	}
	return t.network.neighbours(t.id), nil
}

// Broadcast delivers payload to every listed peer still in range. Peers that
// moved away are skipped silently.
func (t *MemoryTransport) Broadcast(ctx context.Context, peers []string, payload []byte) error {
	if t.isDown() {
		return fmt.Errorf("radio %s is down", t.id)
	}
	for _, p := range peers {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.network.sent.Add(1)
		target, ok := t.network.inRange(t.id, p)
		if !ok || t.network.dropped() {
			continue
		}
		target.deliver(t.id, payload)
	}
	return nil
}

func (t *MemoryTransport) OnReceive(fn func(from string, payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recv = fn
}

func (t *MemoryTransport) deliver(from string, payload []byte) {
	t.mu.RLock()
	fn, down := t.recv, t.down
	t.mu.RUnlock()
	if fn == nil || down {
		return
	}
	t.network.received.Add(1)
	fn(from, append([]byte(nil), payload...))
}
