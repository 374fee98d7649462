// internal/publisher/publisher.go
package publisher

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/credential"
	"github.com/xkilldash9x/cookiebot/internal/faults"
	"github.com/xkilldash9x/cookiebot/internal/metrics"
	"github.com/xkilldash9x/cookiebot/internal/timing"
)

// Restarter restarts the service that reads the published credentials.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Publisher writes a credential pair to the shared auth store and the
// dependent service's env store, then restarts that service.
type Publisher struct {
	cfg       config.PublisherConfig
	restarter Restarter
	recorder  *metrics.Recorder
	logger    *zap.Logger
	sleep     timing.SleepFunc
}

// New builds a Publisher. rec may be nil.
func New(cfg config.PublisherConfig, restarter Restarter, rec *metrics.Recorder, logger *zap.Logger) *Publisher {
	return &Publisher{
		cfg:       cfg,
		restarter: restarter,
		recorder:  rec,
		logger:    logger.Named("publisher"),
		sleep:     timing.Sleep,
	}
}

func (p *Publisher) entries(pair credential.Pair) []Entry {
	return []Entry{
		{Key: p.cfg.TokenKey, Value: pair.Token},
		{Key: p.cfg.CookieKey, Value: pair.CookieHeader()},
	}
}

// Publish writes both stores and restarts the dependent service. The pair is
// never partially applied to a single store, but a failure after the auth
// store was written leaves that store updated.
func (p *Publisher) Publish(ctx context.Context, pair credential.Pair) (err error) {
	defer func() {
		if err != nil {
			p.recorder.Publish(metrics.OutcomeFailure, string(faults.KindOf(err)))
			return
		}
		p.recorder.Publish(metrics.OutcomeSuccess, "")
	}()

	if !pair.Complete() {
		return faults.Newf(faults.Configuration, "publish", "refusing to publish incomplete credential %s", pair)
	}

	entries := p.entries(pair)

	if err := writeDurable(p.cfg.AuthFile, RenderAuth(entries...)); err != nil {
		return faults.New(faults.IO, "write auth store", err)
	}
	p.logger.Info("Auth store updated.", zap.String("path", p.cfg.AuthFile))

	if err := p.updateEnv(entries); err != nil {
		return err
	}
	p.logger.Info("Env store updated.", zap.String("path", p.cfg.EnvFile))

	// Give file watchers and bind mounts a moment before the restart.
	if err := p.sleep(ctx, p.cfg.SettleDelay); err != nil {
		return err
	}

	if err := p.restarter.Restart(ctx); err != nil {
		return err
	}
	p.logger.Info("Credentials published.", zap.Object("credential", pair))
	return nil
}

func (p *Publisher) updateEnv(entries []Entry) error {
	content, err := os.ReadFile(p.cfg.EnvFile)
	if err != nil {
		return faults.New(faults.IO, "read env store", err)
	}
	// The dependent service owns this file; keep its inode and ownership.
	if err := updateInPlace(p.cfg.EnvFile, RenderEnv(content, entries...)); err != nil {
		return faults.New(faults.IO, "write env store", err)
	}
	return nil
}
