// Package observability aggregates transport-level counters for the
// debug inspector and the periodic stats log line.
package observability

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// Monitor collects delivery telemetry. All methods are safe for
// concurrent use and tolerate a nil receiver, so the transport can be
// wired with or without monitoring.
type Monitor struct {
	log *slog.Logger

	connectionsOpened atomic.Uint64
	connectionsClosed atomic.Uint64
	framesReceived    atomic.Uint64
	framesRejected    atomic.Uint64
	envelopesSent     atomic.Uint64
	deliveryFailures  atomic.Uint64
}

func NewMonitor(log *slog.Logger) *Monitor {
	return &Monitor{log: log}
}

func (m *Monitor) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsOpened.Add(1)
}

func (m *Monitor) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Add(1)
}

func (m *Monitor) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Add(1)
}

func (m *Monitor) FrameRejected() {
	if m == nil {
		return
	}
	m.framesRejected.Add(1)
}

func (m *Monitor) EnvelopeSent() {
	if m == nil {
		return
	}
	m.envelopesSent.Add(1)
}

func (m *Monitor) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Add(1)
}

// Stats snapshots the counters plus process memory figures.
func (m *Monitor) Stats() map[string]any {
	if m == nil {
		return map[string]any{}
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	opened := m.connectionsOpened.Load()
	closed := m.connectionsClosed.Load()
	return map[string]any{
		"connections_active": opened - closed,
		"connections_opened": opened,
		"connections_closed": closed,
		"frames_received":    m.framesReceived.Load(),
		"frames_rejected":    m.framesRejected.Load(),
		"envelopes_sent":     m.envelopesSent.Load(),
		"delivery_failures":  m.deliveryFailures.Load(),
		"alloc_mem_mb":       mem.Alloc / 1024 / 1024,
		"num_gc":             mem.NumGC,
		"goroutines":         runtime.NumGoroutine(),
	}
}

// Run logs a stats line at every interval until the context ends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := m.Stats()
			m.log.Info("Delivery stats",
				"connections_active", stats["connections_active"],
				"frames_received", stats["frames_received"],
				"envelopes_sent", stats["envelopes_sent"],
				"delivery_failures", stats["delivery_failures"],
				"alloc_mem_mb", stats["alloc_mem_mb"],
			)
		}
	}
}
