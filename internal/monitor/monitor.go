// Package monitor runs the periodic health sweep. On a fixed schedule it
// snapshots agent health and bus counters and republishes them as Prometheus
// gauges, logging a warning for anything that looks wrong.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finsight-dev/finsight/agent"
	"github.com/finsight-dev/finsight/pkg/observability"
)

// DefaultInterval is the sweep cadence when none is configured.
const DefaultInterval = 60 * time.Second

// HealthSource yields a point-in-time health snapshot per agent. The
// orchestrator satisfies this.
type HealthSource interface {
	Health() map[string]agent.Health
}

// StatsSource yields the bus delivery counters. The message bus satisfies
// this.
type StatsSource interface {
	Stats() agent.BusStats
}

// Monitor schedules sweeps over the engine's health surfaces.
type Monitor struct {
	interval time.Duration
	source   HealthSource
	stats    StatsSource
	cron     *cron.Cron

	mu   sync.Mutex
	last agent.BusStats
}

// New builds a monitor over the given sources. A nil stats source skips the
// bus portion of each sweep. Interval values <= 0 fall back to
// DefaultInterval.
func New(source HealthSource, stats StatsSource, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		interval: interval,
		source:   source,
		stats:    stats,
	}
}

// Start runs one sweep immediately, then keeps sweeping on the configured
// interval until Stop.
func (m *Monitor) Start() error {
	if m.cron != nil {
		return fmt.Errorf("monitor already started")
	}
	observability.InitMetrics()

	m.sweep()

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", m.interval), m.sweep); err != nil {
		return fmt.Errorf("schedule health sweep: %w", err)
	}
	c.Start()
	m.cron = c
	log.Printf("[Monitor] Health sweep every %s", m.interval)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish, or for
// ctx to expire.
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cron == nil {
		return nil
	}
	done := m.cron.Stop()
	m.cron = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweep publishes one round of gauges from the current snapshots.
func (m *Monitor) sweep() {
	if m.source != nil {
		for name, h := range m.source.Health() {
			observability.SetAgentHealth(name, h.State == agent.StateRunning, h.ConsecutiveFailures)
			if h.State == agent.StateFailed {
				log.Printf("[Monitor] Agent %s failed (%d consecutive failures, last heartbeat %s)",
					name, h.ConsecutiveFailures, h.LastHeartbeat.Format(time.RFC3339))
			}
		}
	}

	if m.stats == nil {
		return
	}
	s := m.stats.Stats()

	m.mu.Lock()
	sent := counterDelta(s.TotalSent, m.last.TotalSent)
	delivered := counterDelta(s.TotalDelivered, m.last.TotalDelivered)
	dropped := counterDelta(s.TotalDropped, m.last.TotalDropped)
	m.last = s
	m.mu.Unlock()

	observability.AddBusCounters(sent, delivered, dropped)
	for name, depth := range s.QueueDepth {
		observability.SetQueueDepth(name, depth)
	}
	if dropped > 0 {
		log.Printf("[Monitor] Bus dropped %d messages since last sweep", dropped)
	}
}

// counterDelta returns cur-prev, treating a counter that moved backwards
// (a replaced bus) as freshly started.
func counterDelta(cur, prev uint64) uint64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}
