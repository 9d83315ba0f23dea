// Package shutdown provides idle monitoring for scale-to-zero deployments.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// BusyFunc reports whether background work (such as queued archive writes)
// must finish before the process may stop.
type BusyFunc func() bool

// IdleMonitorConfig holds configuration for the idle monitor.
type IdleMonitorConfig struct {
	Timeout      time.Duration // 0 disables the monitor
	Logger       *slog.Logger
	ExcludePaths []string // Path prefixes that don't count as activity (probes, metrics)
	Busy         BusyFunc
}

// IdleMonitor closes Done once no request has been seen for Timeout and no
// background work is pending. Platforms like Fly.io then stop the machine
// and start it again on the next webhook delivery.
type IdleMonitor struct {
	timeout      time.Duration
	excludePaths []string
	busy         BusyFunc
	logger       *slog.Logger

	inFlight     atomic.Int64
	lastActivity atomic.Int64 // unix nanos

	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewIdleMonitor creates a new idle monitor.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &IdleMonitor{
		timeout:      cfg.Timeout,
		excludePaths: cfg.ExcludePaths,
		busy:         cfg.Busy,
		logger:       cfg.Logger.With("component", "idle-monitor"),
		done:         make(chan struct{}),
		stop:         make(chan struct{}),
	}
	m.touch()
	return m
}

// Enabled reports whether a timeout is configured.
func (m *IdleMonitor) Enabled() bool {
	return m.timeout > 0
}

// Start begins monitoring. It does nothing when the monitor is disabled.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout, "exclude_paths", m.excludePaths)
	go m.run(checkInterval(m.timeout))
}

// Stop ends monitoring without signalling Done.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Done is closed when the idle timeout is reached.
func (m *IdleMonitor) Done() <-chan struct{} {
	return m.done
}

// Middleware counts requests as activity, except excluded paths.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.inFlight.Add(1)
		m.touch()
		defer func() {
			m.inFlight.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) excluded(path string) bool {
	for _, prefix := range m.excludePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch() {
	m.lastActivity.Store(time.Now().UnixNano())
}

// idleFor returns how long the monitor has been idle, or 0 while work is running.
func (m *IdleMonitor) idleFor() time.Duration {
	if m.inFlight.Load() > 0 || (m.busy != nil && m.busy()) {
		// a full grace period starts once the work finishes
		m.touch()
		return 0
	}
	return time.Since(time.Unix(0, m.lastActivity.Load()))
}

func (m *IdleMonitor) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			idle := m.idleFor()
			if idle >= m.timeout {
				m.logger.Info("idle timeout reached, signaling graceful shutdown", "idle_time", idle, "timeout", m.timeout)
				close(m.done)
				return
			}
			m.logger.Debug("idle check", "idle_time", idle, "in_flight", m.inFlight.Load())
		}
	}
}

// checkInterval polls about six times per timeout, clamped to [1s, 30s].
func checkInterval(timeout time.Duration) time.Duration {
	return min(max(timeout/6, time.Second), 30*time.Second)
}
