// File: cmd/components.go
package cmd

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/acquirer"
	"github.com/xkilldash9x/cookiebot/internal/browser"
	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/health"
	"github.com/xkilldash9x/cookiebot/internal/metrics"
	"github.com/xkilldash9x/cookiebot/internal/publisher"
	"github.com/xkilldash9x/cookiebot/internal/retry"
	"github.com/xkilldash9x/cookiebot/internal/supervisor"
)

// components is the fully wired keep-alive pipeline.
type components struct {
	Recorder   *metrics.Recorder
	Acquirer   *acquirer.Acquirer
	Cycles     *retry.Controller
	Publisher  *publisher.Publisher
	Prober     *health.Prober
	Monitor    *health.Monitor
	Supervisor *supervisor.Supervisor
}

// newDriver is swapped out in tests.
var newDriver = browser.NewDriver

// buildComponents wires every stage from cfg. Nothing is started; browsers
// launch per attempt and the metrics server is started by the caller.
func buildComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{Recorder: metrics.NewRecorder()}

	driver, err := newDriver(cfg.Browser, logger)
	if err != nil {
		return nil, err
	}

	if c.Acquirer, err = acquirer.New(driver, cfg, logger); err != nil {
		return nil, err
	}
	c.Cycles = retry.NewController(c.Acquirer, cfg.Retry, c.Recorder, logger)

	restarter := publisher.NewCommandRestarter(cfg.Restart, logger)
	c.Publisher = publisher.New(cfg.Publisher, restarter, c.Recorder, logger)

	if c.Prober, err = health.NewProber(cfg.Health, logger); err != nil {
		return nil, err
	}
	c.Monitor = health.NewMonitor(c.Prober, cfg.Health, c.Recorder, logger)

	c.Supervisor = supervisor.New(c.Cycles, c.Publisher, c.Monitor, cfg.Supervisor, c.Recorder, logger)
	return c, nil
}
