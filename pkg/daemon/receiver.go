package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"pkt.systems/pslog"
)

const (
	// maxCachedHosts caps the metrics cache; past it an arbitrary
	// entry is evicted.
	maxCachedHosts = 100
	// StalenessWindow is how old a report may be and still count as
	// recent.
	StalenessWindow = 5 * time.Second
	// maxMetricsBody bounds a POST body.
	maxMetricsBody = 64 << 10
)

// Receiver is the loopback HTTP endpoint deployed daemons POST to,
// usually through a reverse SSH tunnel. It keeps the latest report per
// host in memory.
type Receiver struct {
	addr   string
	log    pslog.Logger
	server *http.Server
	ln     net.Listener

	mu    sync.RWMutex
	cache map[uint32]DeviceMetrics
}

// NewReceiver builds a receiver bound to 127.0.0.1:port. Port 0 picks
// an ephemeral port (tests); the production default is ReceiverPort.
func NewReceiver(port int, log pslog.Logger) *Receiver {
	if log == nil {
		log = pslog.NewWithOptions(io.Discard, pslog.Options{MinLevel: pslog.ErrorLevel})
	}
	return &Receiver{
		addr:  fmt.Sprintf("127.0.0.1:%d", port),
		log:   log,
		cache: make(map[uint32]DeviceMetrics),
	}
}

// Addr returns the bound address, valid after Start.
func (r *Receiver) Addr() string {
	if r.ln != nil {
		return r.ln.Addr().String()
	}
	return r.addr
}

// Start binds the listener and serves in a background goroutine.
func (r *Receiver) Start() error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("metrics receiver listen %s: %w", r.addr, err)
	}
	r.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", r.handleMetrics)
	mux.HandleFunc("/health", r.handleHealth)
	r.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := r.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			r.log.Error("metrics receiver stopped", "error", err)
		}
	}()
	r.log.Info("metrics receiver listening", "addr", r.Addr())
	return nil
}

// Stop shuts the server down, waiting for in-flight requests up to the
// context deadline.
func (r *Receiver) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}

func (r *Receiver) handleMetrics(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxMetricsBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	m, err := ParseMetrics(body)
	if err != nil {
		r.log.Warn("rejected metrics report", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.ReceivedAt = time.Now()

	r.mu.Lock()
	if _, known := r.cache[m.HostID]; !known && len(r.cache) >= maxCachedHosts {
		for id := range r.cache {
			delete(r.cache, id)
			break
		}
	}
	r.cache[m.HostID] = m
	r.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (r *Receiver) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	io.WriteString(w, "OK")
}

// GetMetrics returns the latest report for host id. The read degrades
// to a miss instead of blocking when a writer holds the lock.
func (r *Receiver) GetMetrics(id uint32) (DeviceMetrics, bool) {
	if !r.mu.TryRLock() {
		return DeviceMetrics{}, false
	}
	defer r.mu.RUnlock()
	m, ok := r.cache[id]
	return m, ok
}

// HasRecentMetrics reports whether host id reported within the
// staleness window.
func (r *Receiver) HasRecentMetrics(id uint32) bool {
	m, ok := r.GetMetrics(id)
	return ok && time.Since(m.ReceivedAt) <= StalenessWindow
}

// KnownHosts returns the ids present in the cache.
func (r *Receiver) KnownHosts() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint32, 0, len(r.cache))
	for id := range r.cache {
		out = append(out, id)
	}
	return out
}
