package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medistock/device/internal/remote"
)

const probeTimeout = 5 * time.Second

// NetworkMonitor reports remote reachability
type NetworkMonitor interface {
	IsOnline() bool
}

// ProbeMonitor polls the remote backend and fires edge-triggered callbacks
// when connectivity changes. Repeated probes in the same state are silent.
type ProbeMonitor struct {
	backend  remote.Backend
	interval time.Duration
	logger   *logrus.Logger

	onOnline  func()
	onOffline func()

	mu     sync.Mutex
	online bool
	cancel context.CancelFunc
}

// NewProbeMonitor creates a monitor that probes the backend every interval
func NewProbeMonitor(backend remote.Backend, interval time.Duration, logger *logrus.Logger) *ProbeMonitor {
	return &ProbeMonitor{backend: backend, interval: interval, logger: logger}
}

// SetCallbacks registers the connectivity edge handlers. Must be called
// before Start.
func (m *ProbeMonitor) SetCallbacks(onOnline, onOffline func()) {
	m.onOnline = onOnline
	m.onOffline = onOffline
}

// IsOnline reports the last probe result
func (m *ProbeMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start probes immediately, then on every interval tick until ctx is
// cancelled or Stop is called
func (m *ProbeMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	probeCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		m.probe(probeCtx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-probeCtx.Done():
				return
			case <-ticker.C:
				m.probe(probeCtx)
			}
		}
	}()
}

// Stop halts probing
func (m *ProbeMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *ProbeMonitor) probe(ctx context.Context) {
	online := false
	if m.backend != nil {
		pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		online = m.backend.Ping(pingCtx) == nil
		cancel()
	}

	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if online == was {
		return
	}

	if online {
		m.logger.Info("remote is reachable")
		if m.onOnline != nil {
			m.onOnline()
		}
	} else {
		m.logger.Warn("remote is unreachable")
		if m.onOffline != nil {
			m.onOffline()
		}
	}
}
