package dataType

import (
	"sync"
	"time"
)

// Alert is the responder-facing record of one panic message.
type Alert struct {
	Message        Message
	Acknowledged   bool
	AcknowledgedAt time.Time // zero until acknowledged
	ObservedAt     time.Time
}

func (a Alert) clone() Alert {
	a.Message = a.Message.Clone()
	return a
}

type NetworkStats struct {
	TotalMessages  int `json:"total_messages"`
	TotalPanics    int `json:"total_panics"`
	ActiveAlerts   int `json:"active_alerts"`
	ReachablePeers int `json:"reachable_peers"`
	SeenEntries    int `json:"seen_entries"`
}

// AlertRegistry tracks every panic alert seen during the session. Records
// are never removed; acknowledgement is the only mutation.
type AlertRegistry struct {
	mu            sync.RWMutex
	alerts        map[string]*Alert
	order         []string // first-observed order
	totalMessages int
	active        int
}

func NewAlertRegistry() *AlertRegistry {
	return &AlertRegistry{
		alerts: make(map[string]*Alert),
	}
}

// RecordMessage counts a first-seen message of any kind.
func (r *AlertRegistry) RecordMessage(_ Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalMessages++
}

// RegisterOrUpdate creates an unacknowledged alert for a panic message. A
// repeat call for a known id changes nothing and returns created=false.
func (r *AlertRegistry) RegisterOrUpdate(msg Message, now time.Time) (Alert, bool) {
	if !msg.IsPanic {
		return Alert{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.alerts[msg.ID]; ok {
		return existing.clone(), false
	}
	a := &Alert{
		Message:    msg.Clone(),
		ObservedAt: now,
	}
	r.alerts[msg.ID] = a
	r.order = append(r.order, msg.ID)
	r.active++
	return a.clone(), true
}

// Acknowledge marks an alert as handled. Acknowledging twice is a no-op that
// still succeeds and keeps the first AcknowledgedAt; changed reports whether
// this call did the acknowledging.
func (r *AlertRegistry) Acknowledge(id string, now time.Time) (a Alert, changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.alerts[id]
	if !ok {
		return Alert{}, false, ErrAlertNotFound
	}
	if !rec.Acknowledged {
		rec.Acknowledged = true
		rec.AcknowledgedAt = now
		r.active--
		changed = true
	}
	return rec.clone(), changed, nil
}

func (r *AlertRegistry) Get(id string) (Alert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.alerts[id]
	if !ok {
		return Alert{}, false
	}
	return a.clone(), true
}

// ListActive returns unacknowledged alerts, most recently observed first.
func (r *AlertRegistry) ListActive() []Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Alert, 0, r.active)
	for i := len(r.order) - 1; i >= 0; i-- {
		a := r.alerts[r.order[i]]
		if !a.Acknowledged {
			res = append(res, a.clone())
		}
	}
	return res
}

// ListAll returns the whole incident log, most recently observed first.
func (r *AlertRegistry) ListAll() []Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Alert, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		res = append(res, r.alerts[r.order[i]].clone())
	}
	return res
}

func (r *AlertRegistry) Statistics() NetworkStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return NetworkStats{
		TotalMessages: r.totalMessages,
		TotalPanics:   len(r.alerts),
		ActiveAlerts:  r.active,
	}
}
