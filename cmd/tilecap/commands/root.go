package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bryanchriswhite/tilecap/internal/config"
	"github.com/bryanchriswhite/tilecap/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "tilecap",
		Short: "tilecap - capture a single window from i3 or Sway",
		Long: `tilecap finds a window by name through the i3/Sway IPC socket and
captures its pixels continuously, using MIT-SHM on X11 and XWayland or
wlr-screencopy on native Wayland.

Features:
  • Window discovery over the i3/Sway IPC tree
  • Zero-copy X11 capture through shared memory
  • wlr-screencopy capture of native Wayland windows
  • Lock-free publication of the latest complete frame
  • PNG/JPEG snapshots and a small HTTP status API`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/tilecap/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human readable console logs")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config file, lets the global log flags and the
// given command flags (config key -> flag name) override it, validates the
// result and configures logging.
func loadConfig(cmd *cobra.Command, flags map[string]string) (*config.Manager, config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	v := configMgr.GetViper()
	bindings := map[string]*pflag.Flag{
		config.KeyLogLevel:  rootCmd.PersistentFlags().Lookup("log-level"),
		config.KeyLogPretty: rootCmd.PersistentFlags().Lookup("log-pretty"),
	}
	for key, name := range flags {
		bindings[key] = cmd.Flags().Lookup(name)
	}
	for key, flag := range bindings {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, config.Config{}, fmt.Errorf("failed to bind --%s: %w", flag.Name, err)
		}
	}

	cfg, err := configMgr.Get()
	if err != nil {
		return nil, config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, config.Config{}, fmt.Errorf("invalid configuration in %s: %w", configMgr.GetConfigPath(), err)
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	logger.WithComponent("config").Debug().
		Str("path", configMgr.GetConfigPath()).
		Str("backend", cfg.Capture.Backend).
		Msg("Configuration loaded")
	return configMgr, cfg, nil
}
