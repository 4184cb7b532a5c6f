// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"
)

// =============================================================================
// HEALTH MONITOR
// =============================================================================

// HealthState is the reachability of the backend as seen by the monitor.
type HealthState int

const (
	// HealthUnknown means no probe has completed yet.
	HealthUnknown HealthState = iota
	// HealthOffline means the last probe failed or timed out.
	HealthOffline
	// HealthOnline means the last probe returned a health snapshot.
	HealthOnline
)

func (s HealthState) String() string {
	switch s {
	case HealthOffline:
		return "offline"
	case HealthOnline:
		return "online"
	default:
		return "unknown"
	}
}

// HealthSnapshot is the monitor's view of the backend at one probe.
type HealthSnapshot struct {
	State HealthState
	// Status is the backend health payload; nil unless State is HealthOnline.
	Status *HealthStatus
	// Err is the probe failure; nil unless State is HealthOffline.
	Err       error
	CheckedAt time.Time
}

// ModelLoaded reports whether a model is loaded per this snapshot.
func (s HealthSnapshot) ModelLoaded() bool {
	return s.State == HealthOnline && s.Status != nil && s.Status.ModelLoaded
}

// sameAs compares the semantic content of two snapshots. Probe time and the
// exact error are not semantic: two consecutive failed probes are one
// offline condition, not two changes.
func (s HealthSnapshot) sameAs(other HealthSnapshot) bool {
	if s.State != other.State {
		return false
	}
	if s.Status == nil || other.Status == nil {
		return s.Status == other.Status
	}
	return s.Status.Equal(other.Status)
}

// MonitorConfig holds configuration options for the health monitor.
type MonitorConfig struct {
	// Interval between probes (default: 2s)
	Interval time.Duration
	// Timeout for a single probe; always kept below Interval (default: 1s)
	Timeout time.Duration
}

// DefaultMonitorConfig returns the default monitor configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval: 2 * time.Second,
		Timeout:  1 * time.Second,
	}
}

// ChangeFunc is called when the backend's observed state changes.
// It runs on the monitor goroutine; keep it fast.
type ChangeFunc func(prev, cur HealthSnapshot)

// HealthMonitor polls the backend health endpoint on a fixed interval and
// fires a callback on state edges: unreachable to reachable and back, and
// model loaded to unloaded and back. Identical consecutive snapshots do not
// re-fire the callback.
type HealthMonitor struct {
	client   *Client
	interval time.Duration
	timeout  time.Duration
	onChange ChangeFunc

	mu      sync.Mutex
	current HealthSnapshot
	seq     uint64
	applied uint64
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewHealthMonitor creates a monitor for the given client. onChange may be
// nil when only Current polling is wanted.
func NewHealthMonitor(client *Client, cfg MonitorConfig, onChange ChangeFunc) *HealthMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1 * time.Second
	}
	// A probe must resolve before the next one is due, otherwise a slow probe
	// would report state an interval out of date.
	if cfg.Timeout >= cfg.Interval {
		cfg.Timeout = cfg.Interval / 2
	}

	return &HealthMonitor{
		client:   client,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		onChange: onChange,
	}
}

// Start launches the probe loop. The first probe fires immediately.
// Calling Start on a running monitor is a no-op.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	go m.loop(loopCtx)
}

// Stop halts the probe loop and waits for it to exit. Safe to call twice.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	<-done
}

// Current returns the most recent snapshot.
func (m *HealthMonitor) Current() HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// RefreshNow probes immediately, outside the ticker schedule, and returns
// the resulting snapshot. Used after actions that change backend state, such
// as loading a model.
func (m *HealthMonitor) RefreshNow(ctx context.Context) HealthSnapshot {
	return m.probe(ctx)
}

func (m *HealthMonitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// probe performs one health check and applies the result. Each probe takes a
// sequence number when it starts; a probe that finishes after a later one
// has already applied is stale and discarded.
func (m *HealthMonitor) probe(ctx context.Context) HealthSnapshot {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	snap := HealthSnapshot{CheckedAt: time.Now()}
	status, err := m.client.Health(probeCtx)
	if err != nil {
		snap.State = HealthOffline
		snap.Err = err
	} else {
		snap.State = HealthOnline
		snap.Status = status
	}

	m.apply(ctx, seq, snap)
	return snap
}

func (m *HealthMonitor) apply(ctx context.Context, seq uint64, snap HealthSnapshot) {
	m.mu.Lock()
	if seq < m.applied {
		m.mu.Unlock()
		return
	}
	m.applied = seq
	prev := m.current
	m.current = snap
	m.mu.Unlock()

	if prev.sameAs(snap) {
		return
	}

	log := pslog.Ctx(ctx)
	switch {
	case snap.State == HealthOnline && prev.State != HealthOnline:
		log.Info("backend online", "model_loaded", snap.ModelLoaded())
	case snap.State == HealthOffline && prev.State == HealthOnline:
		log.Warn("backend offline", "error", snap.Err)
	case snap.ModelLoaded() != prev.ModelLoaded():
		log.Info("model state changed", "loaded", snap.ModelLoaded())
	}

	if m.onChange != nil {
		m.onChange(prev, snap)
	}
}
