package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pkt.systems/pslog"
)

const readinessTimeout = 5 * time.Second

// Manager owns the receiver lifecycle and tracks which hosts have a
// collector deployed.
type Manager struct {
	receiver *Receiver
	log      pslog.Logger

	mu     sync.Mutex
	active map[uint32]bool
}

// NewManager builds a manager around a receiver on port.
func NewManager(port int, log pslog.Logger) *Manager {
	return &Manager{
		receiver: NewReceiver(port, log),
		log:      log,
		active:   make(map[uint32]bool),
	}
}

// Receiver exposes the cache for the dashboard.
func (m *Manager) Receiver() *Receiver { return m.receiver }

// Start brings the receiver up and blocks until it answers /health,
// at most readinessTimeout.
func (m *Manager) Start() error {
	if err := m.receiver.Start(); err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s/health", m.receiver.Addr())
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(readinessTimeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("metrics receiver not ready after %s", readinessTimeout)
}

// Stop shuts the receiver down.
func (m *Manager) Stop(ctx context.Context) error {
	return m.receiver.Stop(ctx)
}

// DeployToHost installs and starts the collector on a host and marks
// it active.
func (m *Manager) DeployToHost(exec Execer, hostID uint32) error {
	if err := NewDeployer(exec).Deploy(hostID); err != nil {
		return err
	}
	m.mu.Lock()
	m.active[hostID] = true
	m.mu.Unlock()
	if m.log != nil {
		m.log.Info("daemon deployed", "host_id", hostID)
	}
	return nil
}

// StopOnHost terminates the collector on a host and clears it from the
// active set.
func (m *Manager) StopOnHost(exec Execer, hostID uint32) error {
	if err := NewDeployer(exec).Stop(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.active, hostID)
	m.mu.Unlock()
	if m.log != nil {
		m.log.Info("daemon stopped", "host_id", hostID)
	}
	return nil
}

// IsActive reports whether a collector is known to run on host id.
func (m *Manager) IsActive(hostID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[hostID]
}
