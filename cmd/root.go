// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/selfheal/internal/config"
	"github.com/xkilldash9x/selfheal/internal/observability"
)

type contextKey string

// configKey stores the validated *config.Config in a command's context.
const configKey contextKey = "config"

// flagBindings maps command flags onto configuration keys. A flag only
// overrides the config when it is set on the command line.
var flagBindings = map[string]string{
	"mode":     "self_healing.mode",
	"analyzer": "self_healing.analyzer",
	"driver":   "browser.driver",
	"headless": "browser.headless",
}

// NewRootCommand builds a fresh command tree. Nothing is shared between
// instances, so tests and repeated invocations never leak flag state.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "selfheal",
		Short: "selfheal recovers browser tests from broken element locators.",
		Long: `selfheal captures a failed element lookup, derives replacement selectors from the
page, validates them against the live browser and, in auto mode, writes the winner
back into the locator definitions. Every attempt is recorded in a healing report.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				basicLogger, _ := zap.NewDevelopment()
				defer basicLogger.Sync()
				basicLogger.Error("Failed to initialize configuration", zap.Error(err))
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "selfheal"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting selfheal", zap.String("version", Version))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newHealCmd(nil))
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with ctx and logs a failure before returning it.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	defer observability.Sync()
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if logger := observability.GetLogger(); logger != nil {
		logger.Error("Command execution failed", zap.Error(err))
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

// initializeConfig reads the config file and environment into v and binds
// any command-line overrides.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SELFHEAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	for flag, key := range flagBindings {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding --%s: %w", flag, err)
			}
		}
	}
	return nil
}

// getConfigFromContext returns the config stored by the root PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}
