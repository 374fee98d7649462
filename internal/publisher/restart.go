// internal/publisher/restart.go
package publisher

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/faults"
)

// execCommandContext is swapped out in tests.
var execCommandContext = exec.CommandContext

// maxOutput caps how much command output is carried in an error.
const maxOutput = 4096

// CommandRestarter restarts the dependent service by running the configured
// lifecycle command with the service name appended, e.g.
// "docker compose up -d rsshub" inside the compose project directory.
type CommandRestarter struct {
	cfg    config.RestartConfig
	logger *zap.Logger
}

func NewCommandRestarter(cfg config.RestartConfig, logger *zap.Logger) *CommandRestarter {
	return &CommandRestarter{cfg: cfg, logger: logger.Named("restart")}
}

// Restart runs the command and waits for it. A non-zero exit, a missing
// binary, or the timeout all return a faults.Process error carrying the
// command's combined output.
func (r *CommandRestarter) Restart(ctx context.Context) error {
	if len(r.cfg.Command) == 0 {
		return faults.Newf(faults.Configuration, "restart", "no restart command configured")
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), r.cfg.Command[1:]...), r.cfg.Service)
	cmd := execCommandContext(ctx, r.cfg.Command[0], args...)
	cmd.Dir = r.cfg.Workdir

	line := strings.Join(append([]string{r.cfg.Command[0]}, args...), " ")
	r.logger.Info("Restarting dependent service.", zap.String("command", line), zap.String("workdir", r.cfg.Workdir))

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if len(output) > maxOutput {
		output = output[len(output)-maxOutput:]
	}
	if err != nil {
		return faults.New(faults.Process, "restart "+r.cfg.Service, fmt.Errorf("%s: %w: %s", line, err, output))
	}

	r.logger.Debug("Restart command finished.", zap.String("output", output))
	return nil
}
