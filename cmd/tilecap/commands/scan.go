package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/tilecap/internal/capture"
	"github.com/bryanchriswhite/tilecap/internal/window"
)

var scanCmd = &cobra.Command{
	Use:   "scan [NAME]",
	Short: "Find a window in the i3/Sway layout tree",
	Long: `Query the window manager over its IPC socket and print the first window
whose name contains NAME, searching tiled windows before floating ones.

With --all every client window in the tree is listed instead.`,
	Example: `  # Locate a terminal
  tilecap scan Terminal

  # Print the match as JSON
  tilecap scan Firefox --format json

  # List every window
  tilecap scan --all`,
	Args: func(cmd *cobra.Command, args []string) error {
		if scanAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runScan,
}

var (
	scanFormat string
	scanAll    bool
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "output format (table or json)")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "list every window")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", scanFormat)
	}

	_, cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	scanner := window.NewScanner(window.WithTimeout(cfg.Scanner.IPCTimeout))
	defer scanner.Close()

	var windows []window.WindowInfo
	if scanAll {
		root, err := scanner.Tree()
		if err != nil {
			return fmt.Errorf("failed to read window tree from %s: %w", scanner.Server(), err)
		}
		windows = window.Windows(root, scanner.Server())
	} else {
		info := scanner.Scan(args[0])
		if !info.Found {
			return fmt.Errorf("%w: %q", capture.ErrWindowNotFound, args[0])
		}
		windows = []window.WindowInfo{info}
	}

	if scanFormat == "json" {
		if scanAll {
			return encode(os.Stdout, "json", windows)
		}
		return encode(os.Stdout, "json", windows[0])
	}
	return printWindowsTable(windows)
}

func printWindowsTable(windows []window.WindowInfo) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tXID\tAPP_ID\tGEOMETRY\tSERVER")
	fmt.Fprintln(w, "----\t---\t------\t--------\t------")

	for _, win := range windows {
		appID := win.AppID
		if appID == "" {
			appID = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%dx%d+%d+%d\t%s\n",
			win.Name, win.ID, appID,
			win.Geometry.Width, win.Geometry.Height, win.Geometry.X, win.Geometry.Y,
			win.Server)
	}
	return nil
}
