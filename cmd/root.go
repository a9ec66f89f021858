// cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/madanlalit/heimdall/internal/config"
	"github.com/madanlalit/heimdall/internal/observability"
)

const envPrefix = "HEIMDALL"

// flagKeys maps command flags onto the config keys they override.
var flagKeys = map[string]string{
	"provider":  "llm.provider",
	"model":     "llm.model",
	"endpoint":  "llm.endpoint",
	"max-steps": "agent.max_steps",
	"headless":  "browser.headless",
	"cdp-url":   "browser.cdp_url",
	"log-level": "logger.level",
}

// app carries the resolved configuration from the root pre-run hook to the
// subcommands of a single command tree.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

// NewRootCommand builds a fresh command tree with its own viper instance, so
// repeated executions (tests) do not share state.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "heimdall",
		Short:         "Heimdall drives a browser with an LLM to complete web tasks.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(a.v)
			if err := initializeConfig(a.v, cfgFile); err != nil {
				return err
			}
			if err := bindFlags(a.v, cmd.Flags()); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", a.v.ConfigFileUsed()),
			)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command with a signal aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Command aborted.")
	} else {
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file, if any, and enables environment
// overrides such as HEIMDALL_LLM_PROVIDER.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}
	return nil
}

// bindFlags lets explicitly set flags take precedence over file and env values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}
