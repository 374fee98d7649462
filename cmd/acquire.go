// File: cmd/acquire.go
package cmd

import (
	"github.com/spf13/cobra"
)

func newAcquireCmd(a *app) *cobra.Command {
	var publish bool

	acquireCmd := &cobra.Command{
		Use:   "acquire",
		Short: "Runs one retry cycle of login attempts and prints the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := buildComponents(a.cfg, a.logger())
			if err != nil {
				return err
			}

			pair, err := c.Cycles.RunCycle(ctx)
			if err != nil {
				return err
			}
			printf(cmd, "acquired %s\n", pair)

			if !publish {
				return nil
			}
			if err := c.Publisher.Publish(ctx, pair); err != nil {
				return err
			}
			printf(cmd, "published to %s and %s\n", a.cfg.Publisher.AuthFile, a.cfg.Publisher.EnvFile)
			return nil
		},
	}

	acquireCmd.Flags().BoolVar(&publish, "publish", false, "write the stores and restart the dependent service after a successful cycle")
	return acquireCmd
}
