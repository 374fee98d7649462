// internal/health/monitor.go
package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/credential"
	"github.com/xkilldash9x/cookiebot/internal/metrics"
	"github.com/xkilldash9x/cookiebot/internal/timing"
)

// Checker performs a single probe.
type Checker interface {
	Probe(ctx context.Context, pair credential.Pair) (State, error)
}

// Monitor repeatedly probes the dependent service with one credential pair
// until the service reports unhealthy.
type Monitor struct {
	checker  Checker
	interval time.Duration
	nominal  int
	recorder *metrics.Recorder
	logger   *zap.Logger

	sleep timing.SleepFunc
	now   func() time.Time
}

func NewMonitor(checker Checker, cfg config.HealthConfig, rec *metrics.Recorder, logger *zap.Logger) *Monitor {
	return &Monitor{
		checker:  checker,
		interval: cfg.Interval,
		nominal:  cfg.NominalChecks,
		recorder: rec,
		logger:   logger.Named("health"),
		sleep:    timing.Sleep,
		now:      time.Now,
	}
}

// Run probes immediately and then once per interval. It returns nil on the
// first Unhealthy observation and ctx.Err() if ctx ends first. The probe
// count is only logged; Run never stops because of it.
func (m *Monitor) Run(ctx context.Context, pair credential.Pair) error {
	// A fresh limiter per run so the first probe is never delayed.
	limiter := rate.NewLimiter(rate.Every(m.interval), 1)

	for n := 1; ; n++ {
		now := m.now()
		r := limiter.ReserveN(now, 1)
		if err := m.sleep(ctx, r.DelayFrom(now)); err != nil {
			r.CancelAt(m.now())
			return err
		}

		m.logger.Info("Probing dependent service.", zap.Int("probe", n), zap.Int("nominal", m.nominal),
			zap.String("progress", progress(n, m.nominal)))

		state, err := m.checker.Probe(ctx, pair)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		m.recorder.Probe(state.String())

		if state != Healthy {
			m.logger.Warn("Dependent service unhealthy, requesting new credentials.",
				zap.Int("probe", n), zap.Error(err))
			return nil
		}
		m.logger.Info("Dependent service healthy.", zap.Int("probe", n), zap.Duration("next_in", m.interval))
	}
}

func progress(n, of int) string {
	if of <= 0 {
		return fmt.Sprintf("probe %d", n)
	}
	return fmt.Sprintf("probe %d of %d", n, of)
}
