// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/internal/agent"
	"github.com/xkilldash9x/autopilot-cli/internal/config"
	"github.com/xkilldash9x/autopilot-cli/internal/observability"
)

type contextKey string

// configKey stores the validated *config.Config in the command context.
const configKey contextKey = "config"

var cfgFile string

// NewRootCommand builds a fresh command tree. A new tree per invocation keeps
// flag state from leaking between executions.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "autopilot",
		Short:         "Autopilot drives an autonomous agent one authorized command at a time.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			// 1. Initialize configuration loading
			if err := initializeConfig(v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// 2. Create the configuration object from viper.
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "autopilot"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// 3. Initialize the logger with the loaded config.
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting autopilot", zap.String("version", Version))

			// 4. Store the validated config in the command's context for subcommands.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with ctx and reports the failure, if any.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, agent.ErrInterrupted), errors.Is(err, context.Canceled):
		observability.GetLogger().Info("Run aborted.", zap.Error(err))
	default:
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		rootCmd.PrintErrln("Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads in the config file and AUTOPILOT_* environment variables.
func initializeConfig(v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AUTOPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// getConfig returns the configuration loaded by the root command.
func getConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
