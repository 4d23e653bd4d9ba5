package dataType

import (
	"sort"
	"sync"
	"time"
)

// PeerTable remembers which peers were recently discovered. A peer stays
// reachable until its TTL runs out, so a single failed discovery round does
// not empty the broadcast fan-out. Expiry is tracked in one-second buckets.
type PeerTable struct {
	mu        sync.RWMutex
	peers     map[string]int64
	buckets   map[int64][]string
	lastCheck int64
	now       func() time.Time
}

func NewPeerTable() *PeerTable {
	return NewPeerTableWithClock(time.Now)
}

// NewPeerTableWithClock is NewPeerTable with TTLs measured against now.
func NewPeerTableWithClock(now func() time.Time) *PeerTable {
	return &PeerTable{
		peers:     make(map[string]int64),
		buckets:   make(map[int64][]string),
		lastCheck: now().Unix() - 1,
		now:       now,
	}
}

// Touch marks peer as reachable for ttl from now.
func (pt *PeerTable) Touch(peer string, ttl time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	expiration := pt.now().Add(ttl).Unix()

	// keep a later expiration if one is already recorded
	if existingExp, exists := pt.peers[peer]; exists && existingExp >= expiration {
		return
	}

	pt.peers[peer] = expiration
	pt.buckets[expiration] = append(pt.buckets[expiration], peer)
}

func (pt *PeerTable) IsReachable(peer string) bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	expiration, exists := pt.peers[peer]
	if !exists {
		return false
	}
	return pt.now().Unix() <= expiration
}

// Cleanup drops peers whose TTL has passed.
func (pt *PeerTable) Cleanup() {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	// a peer expiring at second t is still reachable during t
	last := pt.now().Unix() - 1
	if pt.lastCheck > last {
		return
	}
	for t := pt.lastCheck + 1; t <= last; t++ {
		if peers, exists := pt.buckets[t]; exists {
			for _, p := range peers {
				// a later Touch may have extended it
				if exp, ok := pt.peers[p]; ok && exp <= last {
					delete(pt.peers, p)
				}
			}
			delete(pt.buckets, t)
		}
	}
	pt.lastCheck = last
}

// Snapshot returns the currently reachable peers in sorted order.
func (pt *PeerTable) Snapshot() []string {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	now := pt.now().Unix()
	res := make([]string, 0, len(pt.peers))
	for p, exp := range pt.peers {
		if exp >= now {
			res = append(res, p)
		}
	}
	sort.Strings(res)
	return res
}

func (pt *PeerTable) Len() int {
	return len(pt.Snapshot())
}
