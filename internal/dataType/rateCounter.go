package dataType

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// window is a ring of per-second slots.
type window struct {
	slots       []windowSlot
	lastUpdated int64
}

type windowSlot struct {
	second int64
	count  int64
}

func newWindow(size int64) *window {
	return &window{slots: make([]windowSlot, size)}
}

func (w *window) add(sec, value int64) {
	idx := sec % int64(len(w.slots))
	if w.slots[idx].second != sec {
		w.slots[idx] = windowSlot{second: sec, count: value}
	} else {
		w.slots[idx].count += value
	}
	w.lastUpdated = sec
}

func (w *window) sum(lastN, now int64) int64 {
	size := int64(len(w.slots))
	if lastN > size {
		lastN = size
	}
	var total int64
	for sec := now - lastN + 1; sec <= now; sec++ {
		if s := w.slots[sec%size]; s.second == sec {
			total += s.count
		}
	}
	return total
}

type counterBucket struct {
	mu      sync.Mutex
	windows map[uint64]*window
}

// Counter keeps sliding per-second counts for arbitrary keys, e.g. inbound
// envelopes per peer. Keys are hashed into independently locked buckets.
type Counter struct {
	buckets     []*counterBucket
	bucketCount uint64
	size        int64
	now         func() time.Time
}

// NewCounter creates a counter remembering the last size seconds.
func NewCounter(bucketCount int, size int64) *Counter {
	if bucketCount < 1 {
		bucketCount = 1
	}
	if size < 1 {
		size = 1
	}
	c := &Counter{
		buckets:     make([]*counterBucket, bucketCount),
		bucketCount: uint64(bucketCount),
		size:        size,
		now:         time.Now,
	}
	for i := range c.buckets {
		c.buckets[i] = &counterBucket{windows: make(map[uint64]*window)}
	}
	return c
}

func (c *Counter) bucket(hash uint64) *counterBucket {
	return c.buckets[hash%c.bucketCount]
}

func (c *Counter) Add(key string, value int64) {
	h := xxhash.Sum64String(key)
	b := c.bucket(h)
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[h]
	if !ok {
		w = newWindow(c.size)
		b.windows[h] = w
	}
	w.add(c.now().Unix(), value)
}

// Query sums the counts for key over the last lastN seconds.
func (c *Counter) Query(key string, lastN int64) int64 {
	h := xxhash.Sum64String(key)
	b := c.bucket(h)
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.windows[h]; ok {
		return w.sum(lastN, c.now().Unix())
	}
	return 0
}

// Allow counts one event for key and reports whether the total over the last
// seconds is still within limit.
func (c *Counter) Allow(key string, limit, seconds int64) bool {
	h := xxhash.Sum64String(key)
	b := c.bucket(h)
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.windows[h]
	if !ok {
		w = newWindow(c.size)
		b.windows[h] = w
	}
	now := c.now().Unix()
	w.add(now, 1)
	return w.sum(seconds, now) <= limit
}

func (c *Counter) Reset(key string) {
	h := xxhash.Sum64String(key)
	b := c.bucket(h)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.windows, h)
}

// GC drops keys that have been idle for longer than the window.
func (c *Counter) GC() {
	expireThreshold := c.now().Unix() - c.size
	for _, b := range c.buckets {
		b.mu.Lock()
		for h, w := range b.windows {
			if w.lastUpdated < expireThreshold {
				delete(b.windows, h)
			}
		}
		b.mu.Unlock()
	}
}
