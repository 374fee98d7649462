// internal/retry/controller.go
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/credential"
	"github.com/xkilldash9x/cookiebot/internal/faults"
	"github.com/xkilldash9x/cookiebot/internal/metrics"
	"github.com/xkilldash9x/cookiebot/internal/timing"
)

// ErrNoCredentials is returned when every attempt in a cycle failed. It is
// recoverable: the caller decides when to start another cycle.
var ErrNoCredentials = errors.New("retry cycle exhausted without credentials")

// Acquirer performs one login attempt.
type Acquirer interface {
	Acquire(ctx context.Context) (credential.Pair, error)
}

// Controller runs bounded cycles of login attempts with escalating,
// jittered delays between them.
type Controller struct {
	acquirer    Acquirer
	maxAttempts int
	backoff     []time.Duration
	jitter      time.Duration
	logger      *zap.Logger
	recorder    *metrics.Recorder

	sleep     timing.SleepFunc
	randDelay func(bound time.Duration) time.Duration
	now       func() time.Time
}

// NewController builds a Controller from the retry section. rec may be nil.
func NewController(acq Acquirer, cfg config.RetryConfig, rec *metrics.Recorder, logger *zap.Logger) *Controller {
	return &Controller{
		acquirer:    acq,
		maxAttempts: cfg.MaxAttempts,
		backoff:     append([]time.Duration(nil), cfg.Backoff...),
		jitter:      cfg.Jitter,
		logger:      logger.Named("retry"),
		recorder:    rec,
		sleep:       timing.Sleep,
		randDelay:   uniformJitter,
		now:         time.Now,
	}
}

// uniformJitter returns a duration in [0, bound).
func uniformJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(bound)))
}

// Delay is the wait after failed attempt i (0-indexed): the i-th backoff
// entry, clamped to the last one, plus jitter.
func (c *Controller) Delay(i int) time.Duration {
	if len(c.backoff) == 0 {
		return c.randDelay(c.jitter)
	}
	idx := min(i, len(c.backoff)-1)
	return c.backoff[idx] + c.randDelay(c.jitter)
}

// RunCycle calls the acquirer up to maxAttempts times and returns the first
// pair obtained. It sleeps only between attempts: never after a success and
// never after the final failure. If ctx ends while waiting, ctx.Err() is
// returned instead of ErrNoCredentials.
func (c *Controller) RunCycle(ctx context.Context) (credential.Pair, error) {
	logger := c.logger.With(zap.String("cycle_id", uuid.NewString()))

	for i := 0; i < c.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return credential.Pair{}, err
		}

		n := i + 1
		logger.Info("Login attempt starting.", zap.Int("attempt", n), zap.Int("max_attempts", c.maxAttempts))
		start := c.now()
		pair, err := c.acquirer.Acquire(ctx)
		took := c.now().Sub(start)

		if err == nil {
			c.recorder.Attempt(metrics.OutcomeSuccess, "", took)
			c.recorder.Cycle(metrics.OutcomeSuccess)
			logger.Info("Credentials acquired.", zap.Int("attempt", n), zap.Duration("took", took))
			return pair, nil
		}

		kind := faults.KindOf(err)
		c.recorder.Attempt(metrics.OutcomeFailure, string(kind), took)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return credential.Pair{}, ctxErr
		}

		if n == c.maxAttempts {
			logger.Error("Login attempt failed; no attempts left.",
				zap.Int("attempt", n), zap.String("kind", string(kind)), zap.Error(err))
			break
		}

		delay := c.Delay(i)
		logger.Warn("Login attempt failed; backing off.",
			zap.Int("attempt", n),
			zap.String("kind", string(kind)),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return credential.Pair{}, err
		}
	}

	c.recorder.Cycle(metrics.OutcomeFailure)
	return credential.Pair{}, ErrNoCredentials
}
