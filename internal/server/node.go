package server

import (
	"context"
	"errors"
	"fmt"
	"panic_mesh/internal/config"
	"panic_mesh/internal/dataType"
	"panic_mesh/internal/metrics"
	"panic_mesh/internal/utils"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PanicContent is the text of a panic alert sent without a custom message.
const PanicContent = "🚨 EMERGENCY - IMMEDIATE ASSISTANCE NEEDED"

const seenShards = 16

var ErrEmptyContent = errors.New("message content is empty")

type inboundEnvelope struct {
	from       string
	payload    []byte
	receivedAt time.Time
}

type outboundItem struct {
	msg         dataType.Message
	queuedAt    time.Time
	attempts    int
	nextAttempt time.Time
}

type Option func(*Node)

// WithClock replaces time.Now for message timestamps and dedup bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

// WithIDFunc replaces the message id generator.
func WithIDFunc(f utils.IDFunc) Option {
	return func(n *Node) { n.newID = f }
}

// Node owns one device's mesh state. Intake, discovery and broadcasting run
// on separate goroutines so a slow transport call never holds up the inbound
// queue. It is the only entry point for the UI and transport layers.
type Node struct {
	cfg       *config.MainConfig
	name      string
	transport Transport
	logger    *zap.Logger
	now       func() time.Time
	newID     utils.IDFunc

	seen   *dataType.SeenSet
	alerts *dataType.AlertRegistry
	peers  *dataType.PeerTable
	engine *PropagationEngine

	rate       *dataType.Counter
	rateLimit  int64
	rateWindow int64

	inbound  chan inboundEnvelope
	wake     chan struct{}
	sendWake chan struct{}
	events   *eventHub

	logMu      sync.RWMutex
	messageLog []dataType.Message

	// owned by the send goroutine
	pending []outboundItem
	// owned by the intake goroutine
	lastPrune time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewNode(cfg *config.MainConfig, transport Transport, logger *zap.Logger, opts ...Option) (*Node, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if transport == nil {
		return nil, fmt.Errorf("nil transport")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	limit, window, err := cfg.RateLimit()
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(cfg.NodeName)
	if name == "" {
		name = utils.DefaultNodeName()
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:        cfg,
		name:       name,
		transport:  transport,
		logger:     logger.Named("node"),
		now:        time.Now,
		newID:      utils.NewUUID,
		seen:       dataType.NewSeenSet(seenShards),
		alerts:     dataType.NewAlertRegistry(),
		rateLimit:  limit,
		rateWindow: window,
		inbound:    make(chan inboundEnvelope, cfg.InboundQueueSize),
		wake:       make(chan struct{}, 1),
		sendWake:   make(chan struct{}, 1),
		events:     newEventHub(),
		ctx:        ctx,
		cancel:     cancel,
		stopCh:     make(chan struct{}),
	}
	if window > 0 {
		n.rate = dataType.NewCounter(seenShards, window)
	}
	for _, opt := range opts {
		opt(n)
	}
	n.peers = dataType.NewPeerTableWithClock(n.now)
	n.engine = NewPropagationEngine(name, n.seen, n.alerts, n.onDelivery, logger.Named("engine"))
	n.engine.now = n.now
	return n, nil
}

func (n *Node) Name() string {
	return n.name
}

// Start hooks the node into the transport and launches the intake,
// discovery and send loops.
func (n *Node) Start() {
	n.startOnce.Do(func() {
		n.transport.OnReceive(n.HandleInbound)
		n.wg.Add(3)
		go n.run()
		go n.discoveryLoop()
		go n.sendLoop()
		n.logger.Info("node started", zap.String("name", n.name), zap.Bool("responder", n.cfg.Responder))
	})
}

// Stop ends polling and broadcasting. In-flight transport calls are
// cancelled; a message already taken off the inbound queue is processed to
// completion first.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		n.cancel()
		n.wg.Wait()
		n.events.close()
		n.logger.Info("node stopped", zap.String("name", n.name), zap.Int("unsent", len(n.pending)))
	})
}

func (n *Node) stopping() bool {
	select {
	case <-n.stopCh:
		return true
	default:
		return false
	}
}

func poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// run is the intake loop. It never calls the transport.
func (n *Node) run() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.CycleInterval)
	defer ticker.Stop()

	n.cycle()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.cycle()
		case <-n.wake:
			n.cycle()
		}
	}
}

// cycle drains the inbound queue, hands new relays to the send loop and
// prunes the seen set when due.
func (n *Node) cycle() {
	start := time.Now()
	now := n.now()

	if n.drainInbound() > 0 {
		poke(n.sendWake)
	}

	if n.lastPrune.IsZero() {
		n.lastPrune = now
	} else if now.Sub(n.lastPrune) >= n.cfg.PruneInterval {
		removed := n.seen.Prune(now.Add(-n.cfg.SeenRetention))
		if n.rate != nil {
			n.rate.GC()
		}
		n.lastPrune = now
		n.logger.Debug("pruned seen set", zap.Int("removed", removed), zap.Int("remaining", n.seen.Len()))
	}

	metrics.CycleDuration.WithLabelValues(n.name).Observe(time.Since(start).Seconds())
}

func (n *Node) discoveryLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for {
		if n.discover() {
			// peers may have come back for queued messages
			poke(n.sendWake)
		}
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// discover polls the transport and refreshes the peer table. It reports
// whether any peer answered.
func (n *Node) discover() bool {
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.DiscoveryTimeout)
	defer cancel()
	defer func() {
		n.peers.Cleanup()
		metrics.SetReachablePeers(n.name, n.peers.Len())
	}()

	found, err := n.transport.DiscoverPeers(ctx)
	if err != nil {
		// keep broadcasting to the peers whose TTL has not run out yet
		metrics.DiscoveryFailuresTotal.WithLabelValues(n.name).Inc()
		n.logger.Warn("peer discovery failed",
			zap.Error(fmt.Errorf("%w: %v", dataType.ErrTransportUnavailable, err)),
			zap.Int("stale_peers", n.peers.Len()),
		)
		return false
	}
	for _, p := range found {
		if p == "" || p == n.name {
			continue
		}
		n.peers.Touch(p, n.cfg.PeerTTL)
	}
	return len(found) > 0
}

// drainInbound processes queued envelopes until the queue is empty or the
// node is stopping, and reports how many relays it queued.
func (n *Node) drainInbound() int {
	relayed := 0
	for {
		if n.stopping() {
			return relayed
		}
		select {
		case env := <-n.inbound:
			if n.processInbound(env) {
				relayed++
			}
		default:
			return relayed
		}
	}
}

func (n *Node) processInbound(env inboundEnvelope) bool {
	msg, err := dataType.DecodeMessage(env.payload)
	if err != nil {
		metrics.RecordDrop(n.name, metrics.DropMalformed)
		n.logger.Warn("dropping malformed envelope", zap.String("from", env.from), zap.Int("bytes", len(env.payload)), zap.Error(err))
		return false
	}
	res := n.engine.Intake(msg)
	if res.Outcome != OutcomeRelayed {
		return false
	}
	n.logger.Debug("relaying message",
		zap.String("id", msg.ID),
		zap.Int("hop", res.Relay.HopCount),
		zap.String("from", env.from),
		zap.Duration("queued", n.now().Sub(env.receivedAt)),
	)
	return true
}

// sendLoop owns the store-and-forward queue and is the only caller of
// Broadcast.
func (n *Node) sendLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.flushOutbound()
		case <-n.sendWake:
			n.flushOutbound()
		}
	}
}

// retryDelay doubles from the cycle interval up to retry_backoff_max.
func (n *Node) retryDelay(attempts int) time.Duration {
	d := n.cfg.CycleInterval
	for i := 1; i < attempts && d < n.cfg.RetryBackoffMax; i++ {
		d *= 2
	}
	return min(d, n.cfg.RetryBackoffMax)
}

func (n *Node) flushOutbound() {
	now := n.now()
	for _, m := range n.engine.TakeOutbound() {
		n.pending = append(n.pending, outboundItem{msg: m, queuedAt: now})
	}
	defer func() { metrics.SetOutboundQueueLength(n.name, len(n.pending)) }()
	if len(n.pending) == 0 || n.stopping() {
		return
	}

	n.peers.Cleanup()
	peers := n.peers.Snapshot()
	keep := make([]outboundItem, 0, len(n.pending))
	for _, item := range n.pending {
		// the seen set forgets the id after this, so stop retrying
		if now.Sub(item.queuedAt) > n.cfg.SeenRetention {
			n.logger.Warn("giving up on unsent message", zap.String("id", item.msg.ID), zap.Duration("age", now.Sub(item.queuedAt)))
			continue
		}
		// store and forward until somebody is in range
		if len(peers) == 0 || n.stopping() || now.Before(item.nextAttempt) {
			keep = append(keep, item)
			continue
		}

		payload, err := dataType.EncodeMessage(item.msg)
		if err != nil {
			n.logger.Error("failed to encode message", zap.String("id", item.msg.ID), zap.Error(err))
			continue
		}

		ctx, cancel := context.WithTimeout(n.ctx, n.cfg.BroadcastTimeout)
		err = n.transport.Broadcast(ctx, peers, payload)
		cancel()
		metrics.RecordBroadcast(n.name, err == nil)
		if err != nil {
			item.attempts++
			delay := n.retryDelay(item.attempts)
			item.nextAttempt = n.now().Add(delay)
			n.logger.Warn("broadcast failed",
				zap.String("id", item.msg.ID),
				zap.Int("attempt", item.attempts),
				zap.Duration("retry_in", delay),
				zap.Error(fmt.Errorf("%w: %v", dataType.ErrTransportUnavailable, err)),
			)
			keep = append(keep, item)
			continue
		}
		n.logger.Debug("broadcast message", zap.String("id", item.msg.ID), zap.Int("hop", item.msg.HopCount), zap.Int("peers", len(peers)))
	}
	n.pending = keep
}

// HandleInbound is the transport hook for raw bytes arriving from a peer. It
// never blocks: envelopes over the per-peer rate or beyond the queue are dropped.
func (n *Node) HandleInbound(from string, payload []byte) {
	if n.rate != nil && from != "" && !n.rate.Allow(from, n.rateLimit, n.rateWindow) {
		metrics.RecordDrop(n.name, metrics.DropRateLimit)
		n.logger.Debug("inbound rate limit exceeded", zap.String("from", from))
		return
	}
	env := inboundEnvelope{
		from:       from,
		payload:    append([]byte(nil), payload...),
		receivedAt: n.now(),
	}
	select {
	case n.inbound <- env:
		poke(n.wake)
	default:
		metrics.RecordDrop(n.name, metrics.DropQueueFull)
		n.logger.Warn("inbound queue full, dropping envelope", zap.String("from", from))
	}
}

// PeersToBroadcast lists the peers the next flush will send to.
func (n *Node) PeersToBroadcast() []string {
	return n.peers.Snapshot()
}

func (n *Node) onDelivery(d Delivery) {
	n.logMu.Lock()
	n.messageLog = append(n.messageLog, d.Message)
	// trim in batches; readers only see the newest MessageLogLimit entries
	if len(n.messageLog) >= 2*n.cfg.MessageLogLimit {
		n.messageLog = append([]dataType.Message(nil), n.messageLog[len(n.messageLog)-n.cfg.MessageLogLimit:]...)
	}
	n.logMu.Unlock()

	n.events.publish(Event{Type: EventMessage, Message: d.Message})
	if !d.AlertCreated {
		return
	}
	n.events.publish(Event{Type: EventAlertChanged, Message: d.Message, Alert: d.Alert})
	metrics.SetActiveAlerts(n.name, n.alerts.Statistics().ActiveAlerts)
	if n.cfg.Responder && !d.Local {
		n.logger.Warn("PANIC ALERT",
			zap.String("id", d.Message.ID),
			zap.String("sender", d.Message.Sender),
			zap.String("location", d.Message.Location),
			zap.Int("hop", d.Message.HopCount),
		)
	}
}

// SendMessage originates a regular message. An empty location falls back to
// the configured one.
func (n *Node) SendMessage(content, location string) (dataType.Message, error) {
	if strings.TrimSpace(content) == "" {
		return dataType.Message{}, ErrEmptyContent
	}
	return n.originate(content, false, location), nil
}

// SendPanic originates a panic alert.
func (n *Node) SendPanic(location string) dataType.Message {
	return n.originate(PanicContent, true, location)
}

func (n *Node) originate(content string, isPanic bool, location string) dataType.Message {
	if location == "" {
		location = n.cfg.Location
	}
	msg := dataType.NewMessage(n.newID(), n.name, content, isPanic, location, n.now())
	n.engine.Originate(msg)
	poke(n.sendWake)
	return msg
}

// GetMessageLog returns the newest delivered messages in arrival order.
func (n *Node) GetMessageLog() []dataType.Message {
	n.logMu.RLock()
	defer n.logMu.RUnlock()
	from := max(len(n.messageLog)-n.cfg.MessageLogLimit, 0)
	res := make([]dataType.Message, 0, len(n.messageLog)-from)
	for _, m := range n.messageLog[from:] {
		res = append(res, m.Clone())
	}
	return res
}

func (n *Node) GetActiveAlerts() []dataType.Alert {
	return n.alerts.ListActive()
}

// GetAlerts returns the full incident log including acknowledged alerts.
func (n *Node) GetAlerts() []dataType.Alert {
	return n.alerts.ListAll()
}

func (n *Node) AcknowledgeAlert(id string) (dataType.Alert, error) {
	a, changed, err := n.alerts.Acknowledge(id, n.now())
	if err != nil {
		return dataType.Alert{}, fmt.Errorf("acknowledge %s: %w", id, err)
	}
	if changed {
		metrics.SetActiveAlerts(n.name, n.alerts.Statistics().ActiveAlerts)
		n.events.publish(Event{Type: EventAlertChanged, Message: a.Message, Alert: a})
		n.logger.Info("alert acknowledged", zap.String("id", id))
	}
	return a, nil
}

func (n *Node) GetStatistics() dataType.NetworkStats {
	st := n.alerts.Statistics()
	st.ReachablePeers = n.peers.Len()
	st.SeenEntries = n.seen.Len()
	return st
}

// Subscribe returns a feed of message and alert events plus a function
// that cancels it. Slow readers miss events rather than stall the node.
func (n *Node) Subscribe(buffer int) (<-chan Event, func()) {
	return n.events.subscribe(buffer)
}
