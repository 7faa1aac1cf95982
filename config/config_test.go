package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pop-os/upgrade-daemon/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	if cfg.BusName != "com.system76.PopUpgrade" {
		t.Errorf("got BusName %q, want com.system76.PopUpgrade", cfg.BusName)
	}
	if cfg.TickInterval != 200*time.Millisecond {
		t.Errorf("got TickInterval %v, want 200ms", cfg.TickInterval)
	}
	if cfg.FetchRetries != 3 {
		t.Errorf("got FetchRetries %d, want 3", cfg.FetchRetries)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := config.Default()

	source := &config.Config{
		Observer:     "noop",
		TickInterval: 50 * time.Millisecond,
	}
	cfg.Merge(source)

	if cfg.Observer != "noop" {
		t.Errorf("got Observer %q, want noop", cfg.Observer)
	}
	if cfg.TickInterval != 50*time.Millisecond {
		t.Errorf("got TickInterval %v, want 50ms", cfg.TickInterval)
	}
}

func TestConfig_Merge_ZeroValuesPreserveDefaults(t *testing.T) {
	cfg := config.Default()
	original := cfg.BusName

	cfg.Merge(&config.Config{})

	if cfg.BusName != original {
		t.Errorf("got BusName %q, want %q (preserved default)", cfg.BusName, original)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
		"observer": "noop",
		"fetch_retries": 5,
		"sentinels": {
			"startup_upgrade_file": "/tmp/pop-upgrade"
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Observer != "noop" {
		t.Errorf("got Observer %q, want noop", cfg.Observer)
	}
	if cfg.FetchRetries != 5 {
		t.Errorf("got FetchRetries %d, want 5", cfg.FetchRetries)
	}
	if cfg.Sentinels.StartupUpgradeFile != "/tmp/pop-upgrade" {
		t.Errorf("got StartupUpgradeFile %q, want /tmp/pop-upgrade", cfg.Sentinels.StartupUpgradeFile)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}
