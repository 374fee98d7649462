// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/credential"
	"github.com/xkilldash9x/cookiebot/internal/faults"
	"github.com/xkilldash9x/cookiebot/internal/metrics"
	"github.com/xkilldash9x/cookiebot/internal/retry"
	"github.com/xkilldash9x/cookiebot/internal/timing"
)

// State is the phase of the keep-alive loop.
type State int

const (
	Acquiring State = iota
	Monitoring
	Dormant
)

var allStates = []string{Acquiring.String(), Monitoring.String(), Dormant.String()}

func (s State) String() string {
	switch s {
	case Acquiring:
		return "acquiring"
	case Monitoring:
		return "monitoring"
	case Dormant:
		return "dormant"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CycleRunner obtains a fresh credential pair or reports exhaustion with
// retry.ErrNoCredentials.
type CycleRunner interface {
	RunCycle(ctx context.Context) (credential.Pair, error)
}

// Publisher hands a pair to the dependent service.
type Publisher interface {
	Publish(ctx context.Context, pair credential.Pair) error
}

// Monitor blocks while the dependent service stays healthy with pair.
type Monitor interface {
	Run(ctx context.Context, pair credential.Pair) error
}

// Supervisor drives the process-level loop:
//
//	Acquiring -(pair)-> Monitoring -(unhealthy)-> Acquiring
//	Acquiring -(exhausted)-> Dormant -(dormancy elapsed)-> Acquiring
//
// There is no terminal state; only ctx ends Run.
type Supervisor struct {
	cycles    CycleRunner
	publisher Publisher
	monitor   Monitor
	dormancy  time.Duration
	recorder  *metrics.Recorder
	logger    *zap.Logger

	sleep timing.SleepFunc
	state State
}

func New(cycles CycleRunner, pub Publisher, mon Monitor, cfg config.SupervisorConfig, rec *metrics.Recorder, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		cycles:    cycles,
		publisher: pub,
		monitor:   mon,
		dormancy:  cfg.Dormancy,
		recorder:  rec,
		logger:    logger.Named("supervisor"),
		sleep:     timing.Sleep,
		state:     Acquiring,
	}
}

// State returns the current phase.
func (s *Supervisor) State() State { return s.state }

// Run loops until ctx ends and then returns ctx.Err(). Failures inside a
// phase are logged and move the loop on; none of them stop it.
func (s *Supervisor) Run(ctx context.Context) error {
	var pair credential.Pair
	s.enter(Acquiring)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch s.state {
		case Acquiring:
			p, err := s.cycles.RunCycle(ctx)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if !errors.Is(err, retry.ErrNoCredentials) {
					s.logger.Error("Retry cycle failed unexpectedly.", zap.Error(err))
				}
				s.logger.Warn("No credentials this cycle, going dormant.", zap.Duration("dormancy", s.dormancy))
				s.enter(Dormant)
				continue
			}
			pair = p
			s.publish(ctx, pair)
			s.enter(Monitoring)

		case Monitoring:
			err := s.monitor.Run(ctx, pair)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				s.logger.Warn("Health monitor stopped with an error.", zap.Error(err))
			}
			s.enter(Acquiring)

		case Dormant:
			if err := s.sleep(ctx, s.dormancy); err != nil {
				return err
			}
			s.enter(Acquiring)
		}
	}
}

// publish failures are not retried. The fresh pair is still monitored, so
// the next unhealthy probe starts a new cycle.
func (s *Supervisor) publish(ctx context.Context, pair credential.Pair) {
	if err := s.publisher.Publish(ctx, pair); err != nil {
		s.logger.Error("Publishing credentials failed; monitoring anyway.",
			zap.String("kind", string(faults.KindOf(err))),
			zap.Object("credential", pair),
			zap.Error(err),
		)
	}
}

func (s *Supervisor) enter(next State) {
	if next != s.state {
		s.logger.Info("State transition.", zap.Stringer("from", s.state), zap.Stringer("to", next))
	}
	s.state = next
	s.recorder.SetState(next.String(), allStates...)
}
