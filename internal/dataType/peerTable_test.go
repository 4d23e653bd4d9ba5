package dataType

import (
	"testing"
	"time"
)

func TestPeerTable_TTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	pt := NewPeerTableWithClock(func() time.Time { return now })

	pt.Touch("b", 10*time.Second)
	pt.Touch("a", 3*time.Second)

	if got := pt.Snapshot(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected snapshot %v", got)
	}

	now = now.Add(5 * time.Second)
	pt.Cleanup()
	if pt.IsReachable("a") {
		t.Error("a still reachable after its TTL")
	}
	if !pt.IsReachable("b") || pt.Len() != 1 {
		t.Errorf("unexpected peers %v", pt.Snapshot())
	}

	// refreshing b extends it
	pt.Touch("b", 10*time.Second)
	now = now.Add(8 * time.Second)
	pt.Cleanup()
	if !pt.IsReachable("b") {
		t.Error("b expired despite refresh")
	}

	// a shorter touch never shortens the expiry
	pt.Touch("b", time.Second)
	now = now.Add(2 * time.Second)
	pt.Cleanup()
	if !pt.IsReachable("b") {
		t.Error("shorter touch shortened b's TTL")
	}
}
