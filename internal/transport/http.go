package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"panic_mesh/internal/config"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// NodeHeader carries the sender's node name on envelope posts.
const NodeHeader = "X-Mesh-Node"

// HTTPTransport links statically configured peers over HTTP. Discovery probes
// each peer's health check; broadcast posts the envelope to every peer.
type HTTPTransport struct {
	nodeName string
	webPath  string
	maxBody  int64
	peers    map[string]config.Peer
	client   *http.Client
	logger   *zap.Logger

	mu   sync.RWMutex
	recv func(from string, payload []byte)
}

func NewHTTPTransport(cfg *config.MainConfig, nodeName string, logger *zap.Logger) *HTTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	peers := make(map[string]config.Peer, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers[p.Name] = p
	}
	return &HTTPTransport{
		nodeName: nodeName,
		webPath:  strings.TrimRight(cfg.WebPath, "/"),
		maxBody:  cfg.MaxEnvelopeBytes,
		peers:    peers,
		client:   &http.Client{Timeout: cfg.BroadcastTimeout},
		logger:   logger.Named("transport"),
	}
}

func (t *HTTPTransport) url(p config.Peer, endpoint string) string {
	return strings.TrimRight(p.Address, "/") + t.webPath + endpoint
}

// DiscoverPeers returns the configured peers that answer their health check.
// It fails only when peers are configured and none of them answer.
func (t *HTTPTransport) DiscoverPeers(ctx context.Context) ([]string, error) {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		reachable []string
		errs      error
	)
	for name, p := range t.peers {
		wg.Add(1)
		go func(name string, p config.Peer) {
			defer wg.Done()
			err := t.probe(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", name, err))
				return
			}
			reachable = append(reachable, name)
		}(name, p)
	}
	wg.Wait()

	if len(reachable) == 0 && errs != nil {
		return nil, errs
	}
	if errs != nil {
		t.logger.Debug("some peers unreachable", zap.Error(errs))
	}
	return reachable, nil
}

func (t *HTTPTransport) probe(ctx context.Context, p config.Peer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url(p, "/health_check"), nil)
	if err != nil {
		return err
	}
	if p.Host != "" {
		req.Host = p.Host
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if err := resp.Body.Close(); err != nil {
			t.logger.Debug("failed to close health check body", zap.String("peer", p.Name), zap.Error(err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Broadcast posts payload to each named peer concurrently. Partial failure is
// logged; an error is returned only when no peer accepted the envelope.
func (t *HTTPTransport) Broadcast(ctx context.Context, peers []string, payload []byte) error {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		ok   int
		errs error
	)
	for _, name := range peers {
		p, known := t.peers[name]
		if !known {
			mu.Lock()
			errs = multierr.Append(errs, fmt.Errorf("unknown peer %s", name))
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(p config.Peer) {
			defer wg.Done()
			err := t.send(ctx, p, payload)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("peer %s: %w", p.Name, err))
				return
			}
			ok++
		}(p)
	}
	wg.Wait()

	if ok == 0 && errs != nil {
		return errs
	}
	if errs != nil {
		t.logger.Warn("broadcast reached only some peers", zap.Int("delivered", ok), zap.Error(errs))
	}
	return nil
}

func (t *HTTPTransport) send(ctx context.Context, p config.Peer, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url(p, "/envelope"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(NodeHeader, t.nodeName)
	if p.Host != "" {
		req.Host = p.Host
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if err := resp.Body.Close(); err != nil {
			t.logger.Debug("failed to close response body", zap.String("peer", p.Name), zap.Error(err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned status %d", resp.StatusCode)
	}
	return nil
}

func (t *HTTPTransport) OnReceive(fn func(from string, payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recv = fn
}

// Handler serves <web_path>/envelope and <web_path>/health_check.
func (t *HTTPTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	t.Register(mux)
	return mux
}

// Register adds the transport endpoints to an existing mux.
func (t *HTTPTransport) Register(mux *http.ServeMux) {
	mux.HandleFunc(t.webPath+"/envelope", t.HandleEnvelope)
	mux.HandleFunc(t.webPath+"/health_check", t.HandleHealthCheck)
}

func (t *HTTPTransport) HandleEnvelope(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.maxBody))
	defer func() {
		if err := r.Body.Close(); err != nil {
			t.logger.Debug("failed to close request body", zap.Error(err))
		}
	}()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			t.logger.Warn("envelope too large", zap.String("remote", r.RemoteAddr), zap.Int64("limit", tooLarge.Limit))
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	t.mu.RLock()
	recv := t.recv
	t.mu.RUnlock()
	if recv == nil {
		http.Error(w, "Node not running", http.StatusServiceUnavailable)
		return
	}
	// decoding belongs to the node; the link only moves bytes
	recv(r.Header.Get(NodeHeader), body)

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ACK")); err != nil {
		t.logger.Debug("failed to write ACK", zap.Error(err))
	}
}

func (t *HTTPTransport) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	var builder strings.Builder
	builder.WriteString("ok\n")
	builder.WriteString("node=")
	builder.WriteString(t.nodeName)
	builder.WriteString("\n")
	builder.WriteString("time=")
	builder.WriteString(time.Now().Format(time.RFC3339))
	builder.WriteString("\n")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(builder.String())); err != nil {
		t.logger.Debug("failed to write health check", zap.Error(err))
	}
}
