// File: cmd/probe.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/cookiebot/internal/credential"
	"github.com/xkilldash9x/cookiebot/internal/health"
)

func newProbeCmd(a *app) *cobra.Command {
	var pair credential.Pair

	probeCmd := &cobra.Command{
		Use:         "probe",
		Short:       "Checks the dependent service once with the given credential pair",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{partialConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			prober, err := health.NewProber(a.cfg.Health, a.logger())
			if err != nil {
				return err
			}

			state, err := prober.Probe(cmd.Context(), pair)
			printf(cmd, "%s\n", state)
			if state != health.Healthy {
				return fmt.Errorf("dependent service is %s: %w", state, err)
			}
			return nil
		},
	}

	probeCmd.Flags().StringVar(&pair.Token, "token", "", "session token (auth_token cookie)")
	probeCmd.Flags().StringVar(&pair.SecondaryToken, "secondary-token", "", "secondary token (ct0 cookie)")
	probeCmd.MarkFlagRequired("token")
	probeCmd.MarkFlagRequired("secondary-token")
	return probeCmd
}
