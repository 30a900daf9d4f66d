package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-dev/finsight/agent"
)

type stubHealth struct {
	calls   atomic.Int64
	healths map[string]agent.Health
}

func (s *stubHealth) Health() map[string]agent.Health {
	s.calls.Add(1)
	return s.healths
}

type stubStats struct {
	mu    sync.Mutex
	stats agent.BusStats
}

func (s *stubStats) Stats() agent.BusStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *stubStats) set(stats agent.BusStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

func TestSweep_TracksCounterSnapshots(t *testing.T) {
	source := &stubHealth{healths: map[string]agent.Health{
		"data_collector": {Name: "data_collector", State: agent.StateRunning},
		"visualizer":     {Name: "visualizer", State: agent.StateFailed, ConsecutiveFailures: 2},
	}}
	stats := &stubStats{}
	stats.set(agent.BusStats{TotalSent: 5, TotalDelivered: 4, TotalDropped: 1,
		QueueDepth: map[string]int{"report_generator": 3}})

	m := New(source, stats, time.Minute)
	m.sweep()
	assert.Equal(t, uint64(5), m.last.TotalSent)
	assert.Equal(t, uint64(4), m.last.TotalDelivered)
	assert.Equal(t, uint64(1), m.last.TotalDropped)

	stats.set(agent.BusStats{TotalSent: 12, TotalDelivered: 9, TotalDropped: 1})
	m.sweep()
	assert.Equal(t, uint64(12), m.last.TotalSent)
	assert.Equal(t, int64(2), source.calls.Load())
}

func TestCounterDelta(t *testing.T) {
	assert.Equal(t, uint64(6), counterDelta(10, 4))
	assert.Equal(t, uint64(0), counterDelta(7, 7))
	// A counter below its previous snapshot means the bus was replaced.
	assert.Equal(t, uint64(4), counterDelta(4, 10))
}

func TestNew_DefaultsIntervalAndTolerateNilStats(t *testing.T) {
	source := &stubHealth{}
	m := New(source, nil, 0)
	assert.Equal(t, DefaultInterval, m.interval)

	m.sweep()
	assert.Equal(t, int64(1), source.calls.Load())
}

func TestStart_RunsImmediateSweep(t *testing.T) {
	source := &stubHealth{}
	m := New(source, &stubStats{}, time.Hour)
	require.NoError(t, m.Start())
	defer m.Stop(context.Background())

	assert.GreaterOrEqual(t, source.calls.Load(), int64(1))
}

func TestStart_SweepsOnSchedule(t *testing.T) {
	source := &stubHealth{}
	m := New(source, &stubStats{}, time.Second)
	require.NoError(t, m.Start())
	defer m.Stop(context.Background())

	require.Eventually(t, func() bool {
		return source.calls.Load() >= 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStart_TwiceFails(t *testing.T) {
	m := New(&stubHealth{}, nil, time.Hour)
	require.NoError(t, m.Start())
	defer m.Stop(context.Background())

	require.Error(t, m.Start())
}

func TestStop_BeforeStartIsNoop(t *testing.T) {
	m := New(&stubHealth{}, nil, time.Hour)
	require.NoError(t, m.Stop(context.Background()))
}
