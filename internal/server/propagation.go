package server

import (
	"errors"
	"panic_mesh/internal/dataType"
	"panic_mesh/internal/metrics"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Outcome int

const (
	// OutcomeDuplicate means the id was already known; nothing happened.
	OutcomeDuplicate Outcome = iota
	// OutcomeRelayed means the message was delivered and queued for broadcast.
	OutcomeRelayed
	// OutcomeTerminated means the message was delivered but ends here.
	OutcomeTerminated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRelayed:
		return "relayed"
	case OutcomeTerminated:
		return "terminated"
	}
	return "unknown"
}

type IntakeResult struct {
	Outcome Outcome
	// Relay is the copy queued for broadcast when Outcome is OutcomeRelayed.
	Relay dataType.Message
	// Reason explains why a delivered message was not relayed.
	Reason error
	// AlertCreated is set when the message registered a new panic alert.
	AlertCreated bool
}

// Delivery is handed to the layer above for every first-seen message.
type Delivery struct {
	Message      dataType.Message
	Local        bool
	Alert        dataType.Alert
	AlertCreated bool
}

// PropagationEngine implements hop-limited flooding. It is the only writer
// of the seen set and alert registry and is safe for concurrent use.
type PropagationEngine struct {
	nodeID  string
	seen    *dataType.SeenSet
	alerts  *dataType.AlertRegistry
	now     func() time.Time
	deliver func(Delivery)
	logger  *zap.Logger

	outMu    sync.Mutex
	outbound []dataType.Message
}

func NewPropagationEngine(nodeID string, seen *dataType.SeenSet, alerts *dataType.AlertRegistry, deliver func(Delivery), logger *zap.Logger) *PropagationEngine {
	if deliver == nil {
		deliver = func(Delivery) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PropagationEngine{
		nodeID:  nodeID,
		seen:    seen,
		alerts:  alerts,
		now:     time.Now,
		deliver: deliver,
		logger:  logger,
	}
}

// Intake handles a message received from a peer.
func (e *PropagationEngine) Intake(msg dataType.Message) IntakeResult {
	res, ok := e.accept(msg, false)
	if !ok {
		return res
	}

	relay, err := msg.RelayVia(e.nodeID)
	if err != nil {
		res.Outcome = OutcomeTerminated
		res.Reason = err
		switch {
		case errors.Is(err, dataType.ErrHopLimitExceeded):
			metrics.RecordIntake(e.nodeID, metrics.OutcomeHopLimit)
			e.logger.Debug("hop limit reached, not relaying", zap.String("id", msg.ID), zap.Int("hop", msg.HopCount))
		case errors.Is(err, dataType.ErrSelfRelay):
			metrics.RecordIntake(e.nodeID, metrics.OutcomeSelfRelay)
			e.logger.Debug("already relayed by this node", zap.String("id", msg.ID), zap.Strings("relayed_by", msg.RelayedBy))
		default:
			e.logger.Error("relay transform rejected an intake message", zap.String("id", msg.ID), zap.Error(err))
		}
		return res
	}

	e.enqueue(relay)
	metrics.RecordIntake(e.nodeID, metrics.OutcomeRelayed)
	res.Outcome = OutcomeRelayed
	res.Relay = relay
	return res
}

// Originate handles a message created on this node. It takes the same
// dedup path as Intake, so the node ignores its own echo later, and is
// broadcast unchanged at hop 0.
func (e *PropagationEngine) Originate(msg dataType.Message) IntakeResult {
	res, ok := e.accept(msg, true)
	if !ok {
		return res
	}
	e.enqueue(msg)
	metrics.RecordIntake(e.nodeID, metrics.OutcomeOriginated)
	res.Outcome = OutcomeRelayed
	res.Relay = msg
	return res
}

// accept runs the dedup gate and the local delivery. It reports false for
// duplicates.
func (e *PropagationEngine) accept(msg dataType.Message, local bool) (IntakeResult, bool) {
	now := e.now()
	if !e.seen.FirstSeen(msg.ID, now) {
		metrics.RecordIntake(e.nodeID, metrics.OutcomeDuplicate)
		e.logger.Debug("duplicate message dropped", zap.String("id", msg.ID), zap.Int("hop", msg.HopCount))
		return IntakeResult{Outcome: OutcomeDuplicate}, false
	}

	metrics.RecordIntake(e.nodeID, metrics.OutcomeDelivered)
	e.alerts.RecordMessage(msg)

	d := Delivery{Message: msg.Clone(), Local: local}
	if msg.IsPanic {
		d.Alert, d.AlertCreated = e.alerts.RegisterOrUpdate(msg, now)
		if d.AlertCreated {
			metrics.PanicAlertsTotal.WithLabelValues(e.nodeID).Inc()
		}
	}
	e.logger.Info("message received",
		zap.String("id", msg.ID),
		zap.String("sender", msg.Sender),
		zap.Bool("panic", msg.IsPanic),
		zap.Int("hop", msg.HopCount),
		zap.Bool("local", local),
	)
	e.deliver(d)

	return IntakeResult{AlertCreated: d.AlertCreated}, true
}

func (e *PropagationEngine) enqueue(msg dataType.Message) {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	e.outbound = append(e.outbound, msg)
}

// TakeOutbound hands over every message queued for broadcast since the last call.
func (e *PropagationEngine) TakeOutbound() []dataType.Message {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	out := e.outbound
	e.outbound = nil
	return out
}
