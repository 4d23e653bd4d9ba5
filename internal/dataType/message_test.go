package dataType

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func testMessage(isPanic bool) Message {
	return NewMessage("m1", "Node-A", "help", isPanic, "Building 4", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestNewMessage(t *testing.T) {
	m := testMessage(true)
	if m.HopCount != 0 {
		t.Errorf("Expected hop_count 0, got %d", m.HopCount)
	}
	if m.RelayedBy == nil || len(m.RelayedBy) != 0 {
		t.Errorf("Expected empty relayed_by, got %v", m.RelayedBy)
	}
}

func TestRelayVia_Chain(t *testing.T) {
	m := testMessage(true)
	nodes := []string{"B", "C", "D", "E", "F"}

	cur := m
	for i, n := range nodes {
		next, err := cur.RelayVia(n)
		if err != nil {
			t.Fatalf("relay %d via %s: unexpected error %v", i+1, n, err)
		}
		if next.HopCount != i+1 || len(next.RelayedBy) != next.HopCount {
			t.Fatalf("relay %d: hop_count=%d relayed_by=%v", i+1, next.HopCount, next.RelayedBy)
		}
		if next.ID != m.ID || next.Sender != m.Sender || next.Location != m.Location || !next.CreatedAt.Equal(m.CreatedAt) {
			t.Fatalf("relay %d rewrote origin fields: %+v", i+1, next)
		}
		// the input value must be untouched
		if len(cur.RelayedBy) != i {
			t.Fatalf("relay %d mutated its input: %v", i+1, cur.RelayedBy)
		}
		cur = next
	}

	if _, err := cur.RelayVia("G"); !errors.Is(err, ErrHopLimitExceeded) {
		t.Errorf("Expected ErrHopLimitExceeded at hop %d, got %v", cur.HopCount, err)
	}
}

func TestRelayVia_Rejections(t *testing.T) {
	relayed, err := testMessage(false).RelayVia("B")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		msg    Message
		nodeID string
		want   error
	}{
		{name: "self already listed", msg: relayed, nodeID: "B", want: ErrSelfRelay},
		{name: "empty node id", msg: relayed, nodeID: "", want: ErrInvalidRelay},
		{name: "inconsistent hop count", msg: Message{ID: "x", HopCount: 2, RelayedBy: []string{"B"}}, nodeID: "C", want: ErrInvalidRelay},
		{name: "at limit", msg: Message{ID: "x", HopCount: 5, RelayedBy: []string{"a", "b", "c", "d", "e"}}, nodeID: "f", want: ErrHopLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.msg.RelayVia(tt.nodeID); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRelayVia_DoesNotAlias(t *testing.T) {
	base := Message{ID: "x", HopCount: 1, RelayedBy: make([]string, 1, 8)}
	base.RelayedBy[0] = "B"

	c1, _ := base.RelayVia("C")
	c2, _ := base.RelayVia("D")
	if c1.RelayedBy[1] != "C" || c2.RelayedBy[1] != "D" {
		t.Errorf("relays share storage: %v %v", c1.RelayedBy, c2.RelayedBy)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	m, _ := testMessage(true).RelayVia("B")
	m, _ = m.RelayVia("C")

	data, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"propagated_by":["B","C"]`, `"hop_count":2`, `"is_panic":true`, `"location":"Building 4"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("envelope %s missing %s", data, key)
		}
	}

	got, err := DecodeMessage(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != m.ID || got.Sender != m.Sender || got.Content != m.Content || got.IsPanic != m.IsPanic ||
		got.Location != m.Location || got.HopCount != m.HopCount || !got.CreatedAt.Equal(m.CreatedAt) ||
		fmt.Sprint(got.RelayedBy) != fmt.Sprint(m.RelayedBy) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, m)
	}
}

func TestEncode_NullLocation(t *testing.T) {
	m := NewMessage("m2", "A", "hi", false, "", time.Now())
	data, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"location":null`) || !strings.Contains(string(data), `"propagated_by":[]`) {
		t.Errorf("unexpected envelope %s", data)
	}
}

func TestDecodeMessage_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `hello`},
		{"missing id", `{"sender":"A","content":"x","is_panic":false,"timestamp":"2026-01-01T00:00:00Z","hop_count":0,"propagated_by":[]}`},
		{"missing sender", `{"id":"1","content":"x","is_panic":false,"timestamp":"2026-01-01T00:00:00Z","hop_count":0,"propagated_by":[]}`},
		{"hop too large", `{"id":"1","sender":"A","timestamp":"2026-01-01T00:00:00Z","hop_count":6,"propagated_by":["a","b","c","d","e","f"]}`},
		{"negative hop", `{"id":"1","sender":"A","timestamp":"2026-01-01T00:00:00Z","hop_count":-1,"propagated_by":[]}`},
		{"hop mismatch", `{"id":"1","sender":"A","timestamp":"2026-01-01T00:00:00Z","hop_count":2,"propagated_by":["a"]}`},
		{"duplicate relay", `{"id":"1","sender":"A","timestamp":"2026-01-01T00:00:00Z","hop_count":2,"propagated_by":["a","a"]}`},
		{"bad timestamp", `{"id":"1","sender":"A","timestamp":"yesterday","hop_count":0,"propagated_by":[]}`},
		{"missing timestamp", `{"id":"1","sender":"A","hop_count":0,"propagated_by":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.body))
			if !errors.Is(err, ErrMalformedEnvelope) {
				t.Errorf("Expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestDecodeMessage_ZonelessTimestamp(t *testing.T) {
	body := `{"id":"1","sender":"User_abc123","content":"x","is_panic":true,"location":"","timestamp":"2026-01-01T10:11:12.123456","hop_count":1,"propagated_by":["User_def456"]}`
	m, err := DecodeMessage([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if m.CreatedAt.Hour() != 10 || m.CreatedAt.Nanosecond() != 123456000 {
		t.Errorf("unexpected timestamp %v", m.CreatedAt)
	}
	if m.HopCount != 1 || m.RelayedBy[0] != "User_def456" {
		t.Errorf("unexpected relay data %+v", m)
	}
}
