// Package config holds the daemon's initialization parameters: IPC bus
// identity, retry budgets, the dispatcher's poll interval, the observer to
// wire into every subsystem, and the sentinel file paths of spec.md §6.2.
// daemon.New keeps the *Config on the Daemon, and Daemon.Run reads its
// TickInterval; no other package holds a *Config after wiring.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const (
	defaultBusName       = "com.system76.PopUpgrade"
	defaultObjectPath    = "/com/system76/PopUpgrade"
	defaultObserver      = "slog"
	defaultTickInterval  = 200 * time.Millisecond
	defaultFetchRetries  = 3
	defaultRepairRetries = 3
)

// Config is the top-level daemon configuration, unmarshalable from JSON and
// mergeable with defaults field by field, mirroring kernel.Config /
// kernel.LoadConfig.
type Config struct {
	BusName    string `json:"bus_name,omitempty"`
	ObjectPath string `json:"object_path,omitempty"`
	Observer   string `json:"observer,omitempty"`

	// TickInterval bounds how often the dispatcher drains its
	// foreground-result channel and the event bus; spec.md §9 names 500ms as
	// the ceiling.
	TickInterval time.Duration `json:"tick_interval,omitempty"`

	FetchRetries  int `json:"fetch_retries,omitempty"`
	RepairRetries int `json:"repair_retries,omitempty"`

	Fetch    FetchConfig    `json:"fetch"`
	Recovery RecoveryConfig `json:"recovery"`
	Release  ReleaseConfig  `json:"release"`
	Repair   RepairConfig   `json:"repair"`

	Sentinels SentinelConfig `json:"sentinels"`
}

// Default returns a Config with sensible defaults for every subsystem.
func Default() Config {
	return Config{
		BusName:       defaultBusName,
		ObjectPath:    defaultObjectPath,
		Observer:      defaultObserver,
		TickInterval:  defaultTickInterval,
		FetchRetries:  defaultFetchRetries,
		RepairRetries: defaultRepairRetries,
		Fetch:         DefaultFetchConfig(),
		Recovery:      DefaultRecoveryConfig(),
		Release:       DefaultReleaseConfig(),
		Repair:        DefaultRepairConfig(),
		Sentinels:     DefaultSentinelConfig(),
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's own Merge method.
func (c *Config) Merge(source *Config) {
	if source.BusName != "" {
		c.BusName = source.BusName
	}
	if source.ObjectPath != "" {
		c.ObjectPath = source.ObjectPath
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.TickInterval > 0 {
		c.TickInterval = source.TickInterval
	}
	if source.FetchRetries > 0 {
		c.FetchRetries = source.FetchRetries
	}
	if source.RepairRetries > 0 {
		c.RepairRetries = source.RepairRetries
	}

	c.Fetch.Merge(&source.Fetch)
	c.Recovery.Merge(&source.Recovery)
	c.Release.Merge(&source.Release)
	c.Repair.Merge(&source.Repair)
	c.Sentinels.Merge(&source.Sentinels)
}

// Load reads a JSON config file, merges it over Default(), and returns the
// resulting Config.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
