// internal/health/monitor_test.go
package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/credential"
	"github.com/xkilldash9x/cookiebot/internal/metrics"
)

// scriptedChecker returns the scripted states in order and then stays
// healthy. An optional hook runs before each probe.
type scriptedChecker struct {
	states []State
	calls  int
	before func(call int)
}

func (c *scriptedChecker) Probe(ctx context.Context, _ credential.Pair) (State, error) {
	c.calls++
	if c.before != nil {
		c.before(c.calls)
	}
	if c.calls <= len(c.states) {
		if s := c.states[c.calls-1]; s != Healthy {
			return s, errors.New("status 503")
		}
	}
	return Healthy, nil
}

// fakeClock backs the monitor's sleep and now so pacing is observable
// without real waits.
type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	return nil
}

var healthCfg = config.HealthConfig{Interval: 600 * time.Second, NominalChecks: 24}

func newTestMonitor(t *testing.T, checker Checker, rec *metrics.Recorder) (*Monitor, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMonitor(checker, healthCfg, rec, zaptest.NewLogger(t))
	m.sleep = clock.sleep
	m.now = clock.now
	return m, clock
}

func TestMonitorRun(t *testing.T) {
	t.Run("returns on first unhealthy probe", func(t *testing.T) {
		checker := &scriptedChecker{states: []State{Healthy, Healthy, Unhealthy}}
		m, clock := newTestMonitor(t, checker, nil)

		require.NoError(t, m.Run(context.Background(), pair))
		assert.Equal(t, 3, checker.calls)
		assert.Equal(t, []time.Duration{0, 600 * time.Second, 600 * time.Second}, clock.slept)
	})

	t.Run("first probe is immediate", func(t *testing.T) {
		checker := &scriptedChecker{states: []State{Unhealthy}}
		m, clock := newTestMonitor(t, checker, nil)

		require.NoError(t, m.Run(context.Background(), pair))
		assert.Equal(t, 1, checker.calls)
		assert.Equal(t, []time.Duration{0}, clock.slept)
	})

	t.Run("keeps probing past the nominal count", func(t *testing.T) {
		states := make([]State, 30)
		states[29] = Unhealthy
		checker := &scriptedChecker{states: states}
		m, _ := newTestMonitor(t, checker, nil)

		require.NoError(t, m.Run(context.Background(), pair))
		assert.Equal(t, 30, checker.calls)
	})

	t.Run("cancellation between probes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		checker := &scriptedChecker{before: func(call int) {
			if call == 2 {
				cancel()
			}
		}}
		m, _ := newTestMonitor(t, checker, nil)

		err := m.Run(ctx, pair)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, checker.calls)
	})

	t.Run("already canceled context never probes", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		checker := &scriptedChecker{}
		m, _ := newTestMonitor(t, checker, nil)

		assert.ErrorIs(t, m.Run(ctx, pair), context.Canceled)
		assert.Zero(t, checker.calls)
	})

	t.Run("records probe states", func(t *testing.T) {
		rec := metrics.NewRecorder()
		checker := &scriptedChecker{states: []State{Healthy, Unhealthy}}
		m, _ := newTestMonitor(t, checker, rec)

		require.NoError(t, m.Run(context.Background(), pair))
		n, err := testutil.GatherAndCount(rec.Registry(), "cookiebot_health_probes_total")
		require.NoError(t, err)
		assert.Equal(t, 2, n, "one series per observed state")
	})
}

func TestMonitorWithRealSleepHonorsCancel(t *testing.T) {
	checker := &scriptedChecker{}
	m := NewMonitor(checker, config.HealthConfig{Interval: time.Hour}, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := m.Run(ctx, pair)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, checker.calls)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProgress(t *testing.T) {
	assert.Equal(t, "probe 3 of 24", progress(3, 24))
	assert.Equal(t, "probe 25 of 24", progress(25, 24))
	assert.Equal(t, "probe 1", progress(1, 0))
}
