// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/faults"
	"github.com/xkilldash9x/cookiebot/internal/observability"
)

// Command annotations controlling how much configuration is required.
const (
	// skipConfig marks commands that run without loading configuration.
	skipConfig = "cookiebot/skip-config"
	// partialConfig marks commands that load configuration without requiring
	// credentials or store paths.
	partialConfig = "cookiebot/partial-config"
)

// app carries state shared by one command tree. A fresh tree gets a fresh
// viper instance so tests never see each other's flags or files.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func (a *app) logger() *zap.Logger { return observability.GetLogger() }

// NewRootCommand builds the complete cobra tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "cookiebot",
		Short: "cookiebot keeps a dependent service supplied with fresh session credentials.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			if err := a.load(cmd.Annotations[partialConfig] != "true"); err != nil {
				// Errors still need a logger.
				observability.Initialize(config.NewDefaultConfig().Logger, stderrSyncer(cmd))
				return err
			}
			observability.Initialize(a.cfg.Logger, stderrSyncer(cmd))
			a.logger().Info("Starting cookiebot", zap.String("version", Version), zap.String("command", cmd.Name()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(a),
		newAcquireCmd(a),
		newProbeCmd(a),
		newInstallCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command with a signal-aware context. Errors are
// logged here; the caller only picks the exit code.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// ExitCode maps a command error to the process exit status: 0 for success
// or a requested shutdown, 1 for everything else, configuration errors
// included.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}

// load reads the optional config file, then the environment, and builds the
// config. A strict load validates every required input.
func (a *app) load(strict bool) error {
	config.SetDefaults(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("COOKIEBOT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return faults.New(faults.Configuration, "read config file", err)
		}
		// No config file; defaults and environment only.
	}

	if !strict {
		config.BindEnvironment(a.v)
		cfg := new(config.Config)
		if err := a.v.Unmarshal(cfg); err != nil {
			return faults.New(faults.Configuration, "unmarshal config", err)
		}
		a.cfg = cfg
		return nil
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// stderrSyncer sends console logs to the command's error stream so stdout
// carries only command output.
func stderrSyncer(cmd *cobra.Command) zapcore.WriteSyncer {
	return zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr()))
}

// printf writes user-facing command output.
func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
