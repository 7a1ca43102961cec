package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/tilecap/internal/config"
)

var configFormat string

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the tilecap config file",
		Long: `Inspect and edit the tilecap config file.

Every key can also be overridden from the environment: capture.backend is
read from TILECAP_CAPTURE_BACKEND, server.port from TILECAP_SERVER_PORT.`,
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Example: `  tilecap config show
  tilecap config show --format json`,
		Args: cobra.NoArgs,
		RunE: withConfig(showConfig),
	}
	show.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format (yaml or json)")

	configCmd.AddCommand(
		show,
		&cobra.Command{
			Use:     "get KEY",
			Short:   "Print one value",
			Example: `  tilecap config get capture.wayland_timeout`,
			Args:    cobra.ExactArgs(1),
			RunE:    withConfig(getConfig),
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Validate a value and save it",
			Example: `  tilecap config set capture.backend wayland
  tilecap config set capture.backoff_threshold 5`,
			Args: cobra.ExactArgs(2),
			RunE: withConfig(setConfig),
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List every key with its default",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return listKeys(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			RunE: withConfig(func(m *config.Manager, _ []string) error {
				fmt.Println(m.GetConfigPath())
				return nil
			}),
		},
	)
	rootCmd.AddCommand(configCmd)
}

// withConfig opens the config file without applying command-line
// overrides, so whatever is saved reflects only the file and the edit.
func withConfig(fn func(*config.Manager, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, err := config.NewManager(GetConfigFile())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return fn(m, args)
	}
}

func showConfig(m *config.Manager, _ []string) error {
	settings, err := m.Settings()
	if err != nil {
		return err
	}
	return encode(os.Stdout, configFormat, settings)
}

func getConfig(m *config.Manager, args []string) error {
	value, err := m.Value(args[0])
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func setConfig(m *config.Manager, args []string) error {
	key, value := args[0], args[1]
	if err := m.Set(key, value); err != nil {
		return err
	}
	cfg, err := m.Get()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}
	if err := m.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("%s = %s (saved to %s)\n", key, value, m.GetConfigPath())
	return nil
}

func listKeys(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KEY\tDEFAULT\tENV")
	for _, key := range config.Keys() {
		def, _ := config.Default(key)
		env := config.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		fmt.Fprintf(w, "%s\t%v\t%s\n", key, def, env)
	}
	return nil
}

// encode writes v as YAML or JSON.
func encode(out io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", format)
	}
}
