package config

// FetchConfig holds the package-fetch workflow's tunables beyond the fixed
// fetcher.PackageProfile concurrency caps (spec.md §4.5).
type FetchConfig struct {
	Observer string `json:"observer,omitempty"`
}

// DefaultFetchConfig returns FetchConfig defaults.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{Observer: defaultObserver}
}

// Merge applies non-zero values from source into c.
func (c *FetchConfig) Merge(source *FetchConfig) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// RecoveryConfig holds the recovery-partition-refresh workflow's tunables
// beyond the fixed fetcher.RecoveryProfile concurrency caps (spec.md §4.6).
type RecoveryConfig struct {
	Observer string `json:"observer,omitempty"`
}

// DefaultRecoveryConfig returns RecoveryConfig defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{Observer: defaultObserver}
}

// Merge applies non-zero values from source into c.
func (c *RecoveryConfig) Merge(source *RecoveryConfig) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// ReleaseConfig holds the release-upgrade workflow's tunables (spec.md §4.7).
type ReleaseConfig struct {
	Observer string `json:"observer,omitempty"`
}

// DefaultReleaseConfig returns ReleaseConfig defaults.
func DefaultReleaseConfig() ReleaseConfig {
	return ReleaseConfig{Observer: defaultObserver}
}

// Merge applies non-zero values from source into c.
func (c *ReleaseConfig) Merge(source *ReleaseConfig) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// RepairConfig holds the repair sub-routine's tunables (spec.md §4.8).
type RepairConfig struct {
	Retries  int    `json:"retries,omitempty"`
	Observer string `json:"observer,omitempty"`
}

// DefaultRepairConfig returns RepairConfig defaults.
func DefaultRepairConfig() RepairConfig {
	return RepairConfig{Retries: defaultRepairRetries, Observer: defaultObserver}
}

// Merge applies non-zero values from source into c.
func (c *RepairConfig) Merge(source *RepairConfig) {
	if source.Retries > 0 {
		c.Retries = source.Retries
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// SentinelConfig holds the filesystem sentinel paths of spec.md §6.2, so
// tests and alternate deployments can redirect them without touching the
// packages that read/write them at their package-level redirectable vars.
type SentinelConfig struct {
	RuntimeStateDir      string `json:"runtime_state_dir,omitempty"`
	RestartScheduledFile string `json:"restart_scheduled_file,omitempty"`
	TransitionalSnapsFile string `json:"transitional_snaps_file,omitempty"`
	StartupUpgradeFile   string `json:"startup_upgrade_file,omitempty"`
	ReleaseFetchFile     string `json:"release_fetch_file,omitempty"`
	SystemUpdateSymlink  string `json:"system_update_symlink,omitempty"`
	DismissedFile        string `json:"dismissed_file,omitempty"`
	InstallDateFile      string `json:"install_date_file,omitempty"`
	RecoveryVersionFile  string `json:"recovery_version_file,omitempty"`
}

// DefaultSentinelConfig returns the real system paths of spec.md §6.2.
func DefaultSentinelConfig() SentinelConfig {
	return SentinelConfig{
		RuntimeStateDir:       "/var/lib/pop-upgrade",
		RestartScheduledFile:  "/var/lib/pop-upgrade/restarting",
		TransitionalSnapsFile: "/var/lib/pop-upgrade/transitional_snaps",
		StartupUpgradeFile:    "/pop-upgrade",
		ReleaseFetchFile:      "/pop_preparing_release_upgrade",
		SystemUpdateSymlink:   "/system-update",
		DismissedFile:         "/usr/lib/pop-upgrade/dismissed",
		InstallDateFile:       "/usr/lib/pop-upgrade/install_date",
		RecoveryVersionFile:   "/recovery/version",
	}
}

// Merge applies non-empty values from source into c.
func (c *SentinelConfig) Merge(source *SentinelConfig) {
	if source.RuntimeStateDir != "" {
		c.RuntimeStateDir = source.RuntimeStateDir
	}
	if source.RestartScheduledFile != "" {
		c.RestartScheduledFile = source.RestartScheduledFile
	}
	if source.TransitionalSnapsFile != "" {
		c.TransitionalSnapsFile = source.TransitionalSnapsFile
	}
	if source.StartupUpgradeFile != "" {
		c.StartupUpgradeFile = source.StartupUpgradeFile
	}
	if source.ReleaseFetchFile != "" {
		c.ReleaseFetchFile = source.ReleaseFetchFile
	}
	if source.SystemUpdateSymlink != "" {
		c.SystemUpdateSymlink = source.SystemUpdateSymlink
	}
	if source.DismissedFile != "" {
		c.DismissedFile = source.DismissedFile
	}
	if source.InstallDateFile != "" {
		c.InstallDateFile = source.InstallDateFile
	}
	if source.RecoveryVersionFile != "" {
		c.RecoveryVersionFile = source.RecoveryVersionFile
	}
}

// Apply writes every sentinel path into the package-level redirectable vars
// that the release and ipc packages already expose, so daemon wiring can
// point the whole tree at Config's paths with one call.
func (c *SentinelConfig) Apply() {
	applySentinels(*c)
}
