package dataType

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSeenSet_MarkAndHas(t *testing.T) {
	s := NewSeenSet(4)
	now := time.Now()
	if s.HasSeen("a") {
		t.Fatal("empty set reports a as seen")
	}
	s.MarkSeen("a", now)
	if !s.HasSeen("a") {
		t.Fatal("a not seen after MarkSeen")
	}
	if s.FirstSeen("a", now) {
		t.Error("FirstSeen returned true for a known id")
	}
	if !s.FirstSeen("b", now) {
		t.Error("FirstSeen returned false for a new id")
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", s.Len())
	}
}

func TestSeenSet_FirstSeenConcurrent(t *testing.T) {
	s := NewSeenSet(8)
	const workers = 64

	for round := 0; round < 20; round++ {
		id := fmt.Sprintf("msg-%d", round)
		var winners int64
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if s.FirstSeen(id, time.Now()) {
					atomic.AddInt64(&winners, 1)
				}
			}()
		}
		close(start)
		wg.Wait()
		if winners != 1 {
			t.Fatalf("%s: expected exactly one first-seen, got %d", id, winners)
		}
	}
}

func TestSeenSet_Prune(t *testing.T) {
	s := NewSeenSet(2)
	base := time.Now()
	s.MarkSeen("old", base.Add(-time.Hour))
	s.MarkSeen("new", base)
	// re-marking keeps the original time
	s.MarkSeen("old", base)

	if n := s.Prune(base.Add(-time.Minute)); n != 1 {
		t.Errorf("Expected 1 pruned, got %d", n)
	}
	if s.HasSeen("old") || !s.HasSeen("new") {
		t.Error("prune removed the wrong entries")
	}
}
