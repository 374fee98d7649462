// internal/supervisor/supervisor_test.go
package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/credential"
	"github.com/xkilldash9x/cookiebot/internal/faults"
	"github.com/xkilldash9x/cookiebot/internal/metrics"
	"github.com/xkilldash9x/cookiebot/internal/mocks"
	"github.com/xkilldash9x/cookiebot/internal/retry"
)

var (
	firstPair  = credential.Pair{Token: "tok-first-0001", SecondaryToken: "csrf-first-0001"}
	secondPair = credential.Pair{Token: "tok-second-002", SecondaryToken: "csrf-second-002"}
)

type harness struct {
	cycles *mocks.MockCycleRunner
	pub    *mocks.MockPublisher
	mon    *mocks.MockMonitor
	rec    *metrics.Recorder
	sup    *Supervisor
	slept  []time.Duration
	events []string
	ctx    context.Context
	cancel context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cycles: new(mocks.MockCycleRunner),
		pub:    new(mocks.MockPublisher),
		mon:    new(mocks.MockMonitor),
		rec:    metrics.NewRecorder(),
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	t.Cleanup(h.cancel)

	h.sup = New(h.cycles, h.pub, h.mon, config.SupervisorConfig{Dormancy: 24 * time.Hour}, h.rec, zaptest.NewLogger(t))
	h.sup.sleep = func(ctx context.Context, d time.Duration) error {
		h.slept = append(h.slept, d)
		h.events = append(h.events, "sleep")
		return ctx.Err()
	}
	return h
}

func (h *harness) note(event string) func(mock.Arguments) {
	return func(mock.Arguments) { h.events = append(h.events, event) }
}

// stopOnNextCycle cancels the run from inside the next retry cycle.
func (h *harness) stopOnNextCycle() {
	h.cycles.On("RunCycle", mock.Anything).
		Run(func(mock.Arguments) {
			h.events = append(h.events, "cycle")
			h.cancel()
		}).
		Return(credential.Pair{}, context.Canceled).Once()
}

func TestRunHappyPathReacquiresAfterUnhealthy(t *testing.T) {
	h := newHarness(t)

	h.cycles.On("RunCycle", mock.Anything).Run(h.note("cycle")).Return(firstPair, nil).Once()
	h.pub.On("Publish", mock.Anything, firstPair).Run(h.note("publish")).Return(nil).Once()
	h.mon.On("Run", mock.Anything, firstPair).Run(h.note("monitor")).Return(nil).Once()
	h.cycles.On("RunCycle", mock.Anything).Run(h.note("cycle")).Return(secondPair, nil).Once()
	h.pub.On("Publish", mock.Anything, secondPair).Run(h.note("publish")).Return(nil).Once()
	h.mon.On("Run", mock.Anything, secondPair).Run(h.note("monitor")).Return(nil).Once()
	h.stopOnNextCycle()

	err := h.sup.Run(h.ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"cycle", "publish", "monitor", "cycle", "publish", "monitor", "cycle"}, h.events)
	assert.Empty(t, h.slept)
	assert.Equal(t, Acquiring, h.sup.State())
	h.cycles.AssertExpectations(t)
	h.pub.AssertExpectations(t)
	h.mon.AssertExpectations(t)
}

func TestRunGoesDormantAfterExhaustedCycle(t *testing.T) {
	h := newHarness(t)

	h.cycles.On("RunCycle", mock.Anything).Run(h.note("cycle")).Return(credential.Pair{}, retry.ErrNoCredentials).Once()
	h.cycles.On("RunCycle", mock.Anything).Run(h.note("cycle")).Return(firstPair, nil).Once()
	h.pub.On("Publish", mock.Anything, firstPair).Run(h.note("publish")).Return(nil).Once()
	h.mon.On("Run", mock.Anything, firstPair).Run(func(mock.Arguments) {
		h.events = append(h.events, "monitor")
		h.cancel()
	}).Return(context.Canceled).Once()

	err := h.sup.Run(h.ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"cycle", "sleep", "cycle", "publish", "monitor"}, h.events)
	assert.Equal(t, []time.Duration{24 * time.Hour}, h.slept)
	assert.Equal(t, Monitoring, h.sup.State())
}

func TestRunMonitorsEvenWhenPublishFails(t *testing.T) {
	h := newHarness(t)

	h.cycles.On("RunCycle", mock.Anything).Run(h.note("cycle")).Return(firstPair, nil).Once()
	h.pub.On("Publish", mock.Anything, firstPair).Run(h.note("publish")).
		Return(faults.New(faults.Process, "restart rsshub", errors.New("exit status 1"))).Once()
	h.mon.On("Run", mock.Anything, firstPair).Run(h.note("monitor")).Return(nil).Once()
	h.stopOnNextCycle()

	err := h.sup.Run(h.ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"cycle", "publish", "monitor", "cycle"}, h.events)
	// A failed publish is never retried for the same pair.
	h.pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRunCancelDuringDormancy(t *testing.T) {
	h := newHarness(t)
	h.cycles.On("RunCycle", mock.Anything).Return(credential.Pair{}, retry.ErrNoCredentials).Once()
	h.sup.sleep = func(ctx context.Context, d time.Duration) error {
		h.cancel()
		return ctx.Err()
	}

	err := h.sup.Run(h.ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Dormant, h.sup.State())
	h.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestRunUnexpectedCycleErrorIsTreatedAsExhaustion(t *testing.T) {
	h := newHarness(t)
	h.cycles.On("RunCycle", mock.Anything).Run(h.note("cycle")).Return(credential.Pair{}, errors.New("boom")).Once()
	h.stopOnNextCycle()

	err := h.sup.Run(h.ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"cycle", "sleep", "cycle"}, h.events)
}

func TestRunMonitorErrorReturnsToAcquiring(t *testing.T) {
	h := newHarness(t)
	h.cycles.On("RunCycle", mock.Anything).Run(h.note("cycle")).Return(firstPair, nil).Once()
	h.pub.On("Publish", mock.Anything, firstPair).Return(nil).Once()
	h.mon.On("Run", mock.Anything, firstPair).Run(h.note("monitor")).Return(errors.New("odd")).Once()
	h.stopOnNextCycle()

	assert.ErrorIs(t, h.sup.Run(h.ctx), context.Canceled)
	assert.Equal(t, []string{"cycle", "monitor", "cycle"}, h.events)
}

func TestRunWithCanceledContextDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.cancel()

	assert.ErrorIs(t, h.sup.Run(h.ctx), context.Canceled)
	h.cycles.AssertNotCalled(t, "RunCycle", mock.Anything)
}

func TestStateGaugeTracksCurrentState(t *testing.T) {
	h := newHarness(t)
	h.cycles.On("RunCycle", mock.Anything).Return(firstPair, nil).Once()
	h.pub.On("Publish", mock.Anything, firstPair).Return(nil).Once()
	h.mon.On("Run", mock.Anything, firstPair).Run(func(mock.Arguments) { h.cancel() }).Return(context.Canceled).Once()

	require.ErrorIs(t, h.sup.Run(h.ctx), context.Canceled)

	expected := `
# HELP cookiebot_supervisor_state 1 for the state the supervisor is currently in, 0 otherwise.
# TYPE cookiebot_supervisor_state gauge
cookiebot_supervisor_state{state="acquiring"} 0
cookiebot_supervisor_state{state="dormant"} 0
cookiebot_supervisor_state{state="monitoring"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.rec.Registry(), strings.NewReader(expected), "cookiebot_supervisor_state"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "acquiring", Acquiring.String())
	assert.Equal(t, "monitoring", Monitoring.String())
	assert.Equal(t, "dormant", Dormant.String())
	assert.Equal(t, "State(9)", State(9).String())
}
