package dataType

import (
	"testing"
	"time"
)

func TestCounter_Allow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCounter(4, 60)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !c.Allow("peer-1", 3, 10) {
			t.Fatalf("event %d rejected under limit", i+1)
		}
	}
	if c.Allow("peer-1", 3, 10) {
		t.Error("fourth event within window allowed")
	}
	if !c.Allow("peer-2", 3, 10) {
		t.Error("other key affected by peer-1")
	}

	now = now.Add(11 * time.Second)
	if !c.Allow("peer-1", 3, 10) {
		t.Error("event rejected after window moved on")
	}
}

func TestCounter_QueryResetGC(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCounter(2, 5)
	c.now = func() time.Time { return now }

	c.Add("k", 2)
	now = now.Add(time.Second)
	c.Add("k", 3)
	if got := c.Query("k", 2); got != 5 {
		t.Errorf("Expected 5, got %d", got)
	}
	if got := c.Query("k", 1); got != 3 {
		t.Errorf("Expected 3, got %d", got)
	}

	c.Reset("k")
	if got := c.Query("k", 5); got != 0 {
		t.Errorf("Expected 0 after reset, got %d", got)
	}

	c.Add("k", 1)
	now = now.Add(10 * time.Second)
	c.GC()
	if got := c.Query("k", 5); got != 0 {
		t.Errorf("Expected idle key collected, got %d", got)
	}
}
