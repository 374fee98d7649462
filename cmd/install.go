// File: cmd/install.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/cookiebot/internal/browser"
)

func newInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "install-browser",
		Short:       "Downloads the Playwright driver and browser for the configured engine",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{partialConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return browser.EnsureInstalled(cmd.Context(), a.cfg.Browser, a.logger())
		},
	}
}
