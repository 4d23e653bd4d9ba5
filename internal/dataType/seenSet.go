package dataType

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

type seenShard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// SeenSet records which message ids this node has already processed.
// Ids are spread over independently locked shards; the check-and-mark in
// FirstSeen runs under a single shard lock so two concurrent deliveries of
// the same id can never both win.
type SeenSet struct {
	shards     []*seenShard
	shardCount uint64
}

func NewSeenSet(shardCount int) *SeenSet {
	if shardCount < 1 {
		shardCount = 1
	}
	s := &SeenSet{
		shards:     make([]*seenShard, shardCount),
		shardCount: uint64(shardCount),
	}
	for i := 0; i < shardCount; i++ {
		s.shards[i] = &seenShard{entries: make(map[string]time.Time)}
	}
	return s
}

func (s *SeenSet) getShard(id string) *seenShard {
	return s.shards[xxhash.Sum64String(id)%s.shardCount]
}

func (s *SeenSet) HasSeen(id string) bool {
	shard := s.getShard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	_, ok := shard.entries[id]
	return ok
}

// MarkSeen records id at time t. An existing entry keeps its first-seen time.
func (s *SeenSet) MarkSeen(id string, t time.Time) {
	shard := s.getShard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.entries[id]; !ok {
		shard.entries[id] = t
	}
}

// FirstSeen marks id as seen at t and reports whether this call was the
// first to do so.
func (s *SeenSet) FirstSeen(id string, t time.Time) bool {
	shard := s.getShard(id)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.entries[id]; ok {
		return false
	}
	shard.entries[id] = t
	return true
}

// Prune forgets ids first seen before olderThan and returns how many were removed.
func (s *SeenSet) Prune(olderThan time.Time) int {
	removed := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		for id, t := range shard.entries {
			if t.Before(olderThan) {
				delete(shard.entries, id)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

func (s *SeenSet) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		n += len(shard.entries)
		shard.mu.Unlock()
	}
	return n
}
