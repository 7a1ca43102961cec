package commands

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bryanchriswhite/tilecap/internal/config"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile = ""
	})
	return rootCmd.Execute()
}

func TestConfigSetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := execute(t, "config", "set", "capture.backend", "wayland", "--config", path); err != nil {
		t.Fatalf("config set: %v", err)
	}

	m, err := config.NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := m.Get()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Capture.Backend != "wayland" {
		t.Errorf("backend = %q, want wayland", cfg.Capture.Backend)
	}
}

func TestConfigSetRejectsBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	err := execute(t, "config", "set", "capture.fps", "60", "--config", path)
	if !errors.Is(err, config.ErrUnknownKey) {
		t.Errorf("unknown key: %v", err)
	}
	if err := execute(t, "config", "set", "--config", path, "--", "capture.backoff_delay", "-5ms"); err == nil {
		t.Error("negative duration saved")
	}
}

func TestScanArgs(t *testing.T) {
	scanAll = false
	if err := scanCmd.Args(scanCmd, nil); err == nil {
		t.Error("scan without a name accepted")
	}
	scanAll = true
	defer func() { scanAll = false }()
	if err := scanCmd.Args(scanCmd, []string{"Terminal"}); err == nil {
		t.Error("scan --all with a name accepted")
	}
	if err := scanCmd.Args(scanCmd, nil); err != nil {
		t.Errorf("scan --all: %v", err)
	}
}

func TestListKeys(t *testing.T) {
	var out bytes.Buffer
	if err := listKeys(&out); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"capture.backoff_delay", "10ms", "TILECAP_SERVER_STATUS_INTERVAL"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("key listing lacks %q:\n%s", want, out.String())
		}
	}
}
