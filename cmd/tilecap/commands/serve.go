package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/tilecap/internal/api"
	"github.com/bryanchriswhite/tilecap/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve NAME",
	Short: "Capture a window and serve it over HTTP",
	Long: `Capture the window whose name contains NAME and start an HTTP server
exposing the capture status and the latest frame.

Endpoints:
  GET /api/health      liveness
  GET /api/status      window, backend, state, frame count and fps
  GET /api/status/ws   status pushed over a websocket
  GET /api/window      the captured window
  GET /api/frame       latest frame (?format=png|jpeg&width=N&order=rgba|bgra|bgrx)`,
	Example: `  # Serve on the configured port (8080 by default)
  tilecap serve Terminal

  # Serve on a custom port
  tilecap serve Terminal --port 9090`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "server port (default is 8080)")
	serveCmd.Flags().String("backend", "", "capture backend (auto, x11, wayland)")
}

func runServe(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd, map[string]string{
		config.KeyServerPort: "port",
		config.KeyBackend:    "backend",
	})
	if err != nil {
		return err
	}

	mgr, err := startCapture(cfg, args[0])
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	win := mgr.Window()
	fmt.Printf("Capturing %q with %s backend\n", win.Name, mgr.BackendName())
	fmt.Printf("   - API: http://localhost:%d/api\n", cfg.Server.Port)
	fmt.Println("   - Press Ctrl+C to stop")

	server := api.NewServer(mgr, cfg.Server.StatusInterval)
	if err := server.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	fmt.Println("Shutting down gracefully...")
	return nil
}
