// File: cmd/run.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/cookiebot/internal/metrics"
)

func newRunCmd(a *app) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the keep-alive loop until interrupted",
		Long: `Acquires credentials, publishes them to the dependent service, and
health-checks the service until it reports unhealthy, then acquires again.
When every attempt in a cycle fails the loop sleeps for supervisor.dormancy
before trying again.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return a.v.BindPFlag("metrics.listen_address", cmd.Flags().Lookup("metrics-addr"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := a.logger()

			// The flag is bound after config was loaded; pick it up here.
			a.cfg.Metrics.ListenAddress = a.v.GetString("metrics.listen_address")

			c, err := buildComponents(a.cfg, logger)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return c.Supervisor.Run(gctx)
			})
			if addr := a.cfg.Metrics.ListenAddress; addr != "" {
				srv := metrics.NewServer(addr, c.Recorder, logger)
				g.Go(func() error {
					return srv.Run(gctx)
				})
			}

			err = g.Wait()
			logger.Info("Keep-alive loop stopped.", zap.Error(err))
			return err
		},
	}

	runCmd.Flags().String("metrics-addr", "", "address for the /metrics endpoint, e.g. :9090 (overrides metrics.listen_address)")
	return runCmd
}
