package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aludratest/aludra/internal/config"
	"github.com/aludratest/aludra/internal/observability"
)

var cfgFile string

// osExit is swapped out by tests.
var osExit = os.Exit

type configKey struct{}

// configFrom returns the configuration loaded by the root command.
func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey{}).(*config.Config)
	if !ok {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aludra",
		Short:         "Aludra synchronizes and retries UI element interactions for test automation.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "aludra"})
				return err
			}
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", v.ConfigFileUsed()),
				zap.String("driver", cfg.Driver().Kind))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey{}, cfg))
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./aludra.yaml)")
	root.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	root.AddCommand(
		newResolveCmd(),
		newProbeCmd(),
		newCheckCmd(),
		newProxyCmd(),
	)
	return root
}

// Execute runs the root command with a signal aware context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		osExit(1)
	}
}

// initializeConfig reads the config file and ALUDRA_ environment variables into v.
func initializeConfig(v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("aludra")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ALUDRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
