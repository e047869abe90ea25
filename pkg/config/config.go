package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	// DefaultPoolSize is the number of profile slots when none is configured
	DefaultPoolSize = 5

	// DefaultFreshness is how recent a slot's cookie copy may be before an
	// import is skipped
	DefaultFreshness = 10 * time.Minute

	// DefaultWindowSize matches the original bridge default
	DefaultWindowSize = "1280,720"

	// DefaultChannel launches the system Chrome instead of bundled Chromium
	DefaultChannel = "chrome"
)

// DefaultCriticalOrigins lists the origins whose IndexedDB state travels
// with session imports. Everything else is left behind to keep imports
// small.
var DefaultCriticalOrigins = []string{
	"*.google.com", "google.com",
	"*.notion.so", "notion.so",
	"*.github.com", "github.com",
	"*.amazon.fr", "amazon.fr",
	"*.homeexchange.fr", "homeexchange.fr",
}

// Config is the runtime configuration, read from
// <data-dir>/config.yaml with HYDRA_* environment overrides
// (HYDRA_PROFILE_DIR, HYDRA_POOL_SIZE, HYDRA_HEADLESS, ...).
type Config struct {
	// DataDir is the root under which profiles, locks and logs live.
	// Config key profile_dir, default ~/.hydraspecter.
	DataDir string `mapstructure:"profile_dir"`

	// PoolSize is the number of profile slots
	PoolSize int `mapstructure:"pool_size"`

	// ExternalProfile is the everyday browser profile sessions are
	// imported from; empty disables importing
	ExternalProfile string `mapstructure:"external_profile"`

	// CriticalOrigins filters which IndexedDB origins are imported
	CriticalOrigins []string `mapstructure:"critical_origins"`

	// Freshness is the import freshness threshold, e.g. "10m"
	Freshness time.Duration `mapstructure:"freshness"`

	// SnapshotScript is an optional privileged copy script used when the
	// external cookie store cannot be read any other way
	SnapshotScript string `mapstructure:"snapshot_script"`

	// Headless launches browsers without a visible window
	Headless bool `mapstructure:"headless"`

	// Channel selects the browser build; empty uses bundled Chromium
	Channel string `mapstructure:"channel"`

	// Proxy is forwarded to the browser as --proxy-server
	Proxy string `mapstructure:"proxy"`

	// WindowSize is "width,height" in pixels
	WindowSize string `mapstructure:"window_size"`

	// WindowPosition is "x,y" in pixels; empty leaves placement to the
	// window manager
	WindowPosition string `mapstructure:"window_position"`

	// Debug enables debug-level logging
	Debug bool `mapstructure:"debug"`
}

// Load reads the configuration. Resolution order is environment, then
// config file, then defaults; a missing config file is not an error.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	// The data root must be known before the config file can be found,
	// so its env override is read directly.
	dataDir := os.Getenv("HYDRA_PROFILE_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(home, ".hydraspecter")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dataDir)

	setDefaults(dataDir, home)

	viper.SetEnvPrefix("HYDRA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.DataDir, err = homedir.Expand(cfg.DataDir); err != nil {
		return nil, err
	}
	if cfg.ExternalProfile, err = homedir.Expand(cfg.ExternalProfile); err != nil {
		return nil, err
	}
	if cfg.SnapshotScript, err = homedir.Expand(cfg.SnapshotScript); err != nil {
		return nil, err
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}

	return &cfg, nil
}

// setDefaults registers every key with viper so environment overrides are
// picked up during Unmarshal.
func setDefaults(dataDir, home string) {
	viper.SetDefault("profile_dir", dataDir)
	viper.SetDefault("pool_size", DefaultPoolSize)
	viper.SetDefault("external_profile", DefaultExternalProfile(home))
	viper.SetDefault("critical_origins", DefaultCriticalOrigins)
	viper.SetDefault("freshness", DefaultFreshness.String())
	viper.SetDefault("snapshot_script", "")
	viper.SetDefault("headless", false)
	viper.SetDefault("channel", DefaultChannel)
	viper.SetDefault("proxy", "")
	viper.SetDefault("window_size", DefaultWindowSize)
	viper.SetDefault("window_position", "")
	viper.SetDefault("debug", false)
}

// DefaultExternalProfile returns the conventional Chrome default-profile
// directory for this platform. The path is not checked for existence;
// the importer treats a missing profile as nothing to import.
func DefaultExternalProfile(home string) string {
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(base, "Google", "Chrome", "User Data", "Default")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Google", "Chrome", "Default")
	default:
		return filepath.Join(home, ".config", "google-chrome", "Default")
	}
}

// ProfilesDir is where slot directories live.
func (c *Config) ProfilesDir() string {
	return filepath.Join(c.DataDir, "profiles")
}

// LocksDir is where slot lock records live.
func (c *Config) LocksDir() string {
	return filepath.Join(c.DataDir, "locks")
}

// LogsDir is where run logs live.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// SyncRulesPath is the optional override file for the session file
// manifest.
func (c *Config) SyncRulesPath() string {
	return filepath.Join(c.DataDir, "sync.yaml")
}

// EnsureDataDirs creates the on-disk layout under the data root.
func (c *Config) EnsureDataDirs() error {
	for _, dir := range []string{c.DataDir, c.ProfilesDir(), c.LocksDir(), c.LogsDir()} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return nil
}
