package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Intake outcomes used as the "outcome" label of MessagesIntakeTotal.
const (
	OutcomeDelivered  = "delivered"
	OutcomeDuplicate  = "duplicate"
	OutcomeRelayed    = "relayed"
	OutcomeHopLimit   = "hop_limit"
	OutcomeSelfRelay  = "self_relay"
	OutcomeOriginated = "originated"
)

// Drop reasons used as the "reason" label of InboundDroppedTotal.
const (
	DropMalformed = "malformed"
	DropRateLimit = "rate_limit"
	DropQueueFull = "queue_full"
)

var (
	// MessagesIntakeTotal counts messages passing through the propagation engine by outcome
	MessagesIntakeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panic_mesh_messages_intake_total",
			Help: "Messages handled by the propagation engine, by outcome",
		},
		[]string{"node", "outcome"},
	)

	// PanicAlertsTotal counts newly registered panic alerts
	PanicAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panic_mesh_panic_alerts_total",
			Help: "Panic alerts registered on this node",
		},
		[]string{"node"},
	)

	ActiveAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "panic_mesh_active_alerts",
			Help: "Unacknowledged panic alerts",
		},
		[]string{"node"},
	)

	ReachablePeers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "panic_mesh_reachable_peers",
			Help: "Peers currently used as broadcast destinations",
		},
		[]string{"node"},
	)

	// InboundDroppedTotal counts envelopes dropped before reaching the engine
	InboundDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panic_mesh_inbound_dropped_total",
			Help: "Inbound envelopes dropped before intake, by reason",
		},
		[]string{"node", "reason"},
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panic_mesh_broadcasts_total",
			Help: "Broadcast attempts, by status",
		},
		[]string{"node", "status"},
	)

	DiscoveryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panic_mesh_discovery_failures_total",
			Help: "Failed peer discovery rounds",
		},
		[]string{"node"},
	)

	OutboundQueueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "panic_mesh_outbound_queue_length",
			Help: "Messages waiting to be broadcast",
		},
		[]string{"node"},
	)

	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panic_mesh_cycle_duration_seconds",
			Help:    "Duration of one discovery, drain and flush cycle",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10},
		},
		[]string{"node"},
	)
)

// RecordIntake increments the intake counter for node and outcome
func RecordIntake(node, outcome string) {
	MessagesIntakeTotal.WithLabelValues(node, outcome).Inc()
}

func RecordDrop(node, reason string) {
	InboundDroppedTotal.WithLabelValues(node, reason).Inc()
}

// RecordBroadcast records a broadcast attempt; status is "success" or "failure"
func RecordBroadcast(node string, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	BroadcastsTotal.WithLabelValues(node, status).Inc()
}

func SetActiveAlerts(node string, n int) {
	ActiveAlerts.WithLabelValues(node).Set(float64(n))
}

func SetReachablePeers(node string, n int) {
	ReachablePeers.WithLabelValues(node).Set(float64(n))
}

func SetOutboundQueueLength(node string, n int) {
	OutboundQueueLength.WithLabelValues(node).Set(float64(n))
}
