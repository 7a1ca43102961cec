package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/tilecap/internal/capture"
	"github.com/bryanchriswhite/tilecap/internal/config"
	"github.com/bryanchriswhite/tilecap/internal/frame"
	"github.com/bryanchriswhite/tilecap/internal/logger"
	"github.com/bryanchriswhite/tilecap/internal/output"
	"github.com/bryanchriswhite/tilecap/internal/window"
)

var captureCmd = &cobra.Command{
	Use:   "capture NAME",
	Short: "Capture a window and report the frame rate",
	Long: `Find the window whose name contains NAME and capture it continuously,
printing the number of frames published each second until interrupted or
until --duration elapses.

With --snapshot the last complete frame is written to a PNG or JPEG file
(chosen by extension) when capture stops.`,
	Example: `  # Capture until Ctrl+C
  tilecap capture Terminal

  # Force the Wayland backend for ten seconds and keep the last frame
  tilecap capture Firefox --backend wayland --duration 10s --snapshot firefox.png`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

var (
	captureDuration time.Duration
	captureSnapshot string
	captureOrder    string
)

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("backend", "", "capture backend (auto, x11, wayland)")
	captureCmd.Flags().DurationVarP(&captureDuration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
	captureCmd.Flags().StringVarP(&captureSnapshot, "snapshot", "s", "", "write the last frame to this file on exit")
	captureCmd.Flags().StringVar(&captureOrder, "order", "", "channel order of the snapshot (rgba, bgra, bgrx); default is the backend's")
}

// startCapture discovers the window and starts a capture manager for it.
func startCapture(cfg config.Config, name string) (*capture.Manager, error) {
	scanner := window.NewScanner(window.WithTimeout(cfg.Scanner.IPCTimeout))
	defer scanner.Close()

	mgr := capture.NewManager(name,
		capture.WithOptions(cfg.CaptureOptions()),
		capture.WithScanner(scanner),
	)
	if err := mgr.Init(); err != nil {
		return nil, err
	}
	if err := mgr.Start(); err != nil {
		mgr.Close()
		return nil, err
	}
	return mgr, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runCapture(cmd *cobra.Command, args []string) error {
	order, hasOrder := frame.OrderRGBA, false
	if captureOrder != "" {
		var ok bool
		if order, ok = frame.ParseChannelOrder(captureOrder); !ok {
			return fmt.Errorf("invalid channel order: %s (use rgba, bgra or bgrx)", captureOrder)
		}
		hasOrder = true
	}

	_, cfg, err := loadConfig(cmd, map[string]string{config.KeyBackend: "backend"})
	if err != nil {
		return err
	}

	mgr, err := startCapture(cfg, args[0])
	if err != nil {
		return err
	}
	defer mgr.Close()

	win := mgr.Window()
	fmt.Printf("Capturing %q (%dx%d) with %s backend\n",
		win.Name, win.Geometry.Width, win.Geometry.Height, mgr.BackendName())

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	if captureDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, captureDuration)
		defer stop()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last := mgr.FrameCount()
	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-ticker.C:
			n := mgr.FrameCount()
			fmt.Printf("%d frames/s (total %d", n-last, n)
			if f := mgr.ConsecutiveFailures(); f > 0 {
				fmt.Printf(", %d consecutive failures", f)
			}
			fmt.Println(")")
			last = n
		}
	}

	// Stopped, so the published buffer no longer changes.
	mgr.Stop()
	total := mgr.FrameCount()
	fmt.Printf("Captured %d frames\n", total)

	if captureSnapshot == "" {
		return nil
	}
	if total == 0 {
		return fmt.Errorf("no frame captured, snapshot not written")
	}
	if !hasOrder {
		order = mgr.Order()
	}
	if err := output.WriteFile(captureSnapshot, mgr.ActiveBuffer(), output.Options{Order: order}); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	logger.WithComponent("capture-manager").Info().
		Str("path", captureSnapshot).
		Str("order", order.String()).
		Msg("Snapshot written")
	fmt.Printf("Snapshot written to %s\n", captureSnapshot)
	return nil
}
