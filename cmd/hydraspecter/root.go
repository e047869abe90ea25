package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hydraspecter/hydraspecter/pkg/browser"
	"github.com/hydraspecter/hydraspecter/pkg/config"
	"github.com/hydraspecter/hydraspecter/pkg/logging"
	"github.com/hydraspecter/hydraspecter/pkg/profile"
	"github.com/hydraspecter/hydraspecter/pkg/security/dataroot"
	"github.com/hydraspecter/hydraspecter/pkg/session"
)

const version = "0.1.0"

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "hydraspecter",
	Short: "Persistent browser profile pool",
	Long: `HydraSpecter manages a pool of persistent Chrome profiles for browser
automation. Log in once, and sessions survive across runs: they are
imported from your everyday browser, carried by pool slots, and
propagated across the pool whenever a session closes.

Open a pooled browser:
  hydraspecter open
  hydraspecter open pool-2

Warm up the authenticated profile:
  hydraspecter login google

Inspect and manage slots:
  hydraspecter profiles list
  hydraspecter profiles release --force pool-1`,
	Version:      version,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// loadConfig reads configuration, applies global switches and prepares the
// on-disk layout. Every subcommand starts here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if debugFlag {
		cfg.Debug = true
	}
	logging.SetDebug(cfg.Debug)

	if err := cfg.EnsureDataDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// components is the assembled service graph the commands operate on.
type components struct {
	cfg         *config.Config
	pool        *profile.Pool
	importer    *session.Importer
	broadcaster *session.Broadcaster
	launcher    *browser.PlaywrightLauncher
	orch        *browser.Orchestrator
}

func buildPool(cfg *config.Config) (*profile.Pool, error) {
	return profile.NewPool(profile.PoolOptions{
		ProfilesDir: cfg.ProfilesDir(),
		LocksDir:    cfg.LocksDir(),
		Size:        cfg.PoolSize,
	})
}

// buildComponents wires the full graph. Playwright itself is initialized
// lazily on the first launch, so commands that never open a browser pay
// nothing for the launcher.
func buildComponents(cfg *config.Config) (*components, error) {
	pool, err := buildPool(cfg)
	if err != nil {
		return nil, err
	}

	guard, err := dataroot.NewGuard(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	manifest, err := session.LoadManifest(cfg.SyncRulesPath())
	if err != nil {
		return nil, err
	}

	importer, err := session.NewImporter(session.ImporterOptions{
		ExternalProfile:    cfg.ExternalProfile,
		FreshnessThreshold: cfg.Freshness,
		Snapshot:           session.NewPlatformSnapshotTaker(cfg.SnapshotScript, 0, nil),
		CriticalOrigins:    cfg.CriticalOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build session importer: %w", err)
	}

	broadcaster, err := session.NewBroadcaster(session.BroadcasterOptions{
		Slots:    pool,
		Manifest: manifest,
		Guard:    guard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build session broadcaster: %w", err)
	}

	launcher := browser.NewPlaywrightLauncher(nil)
	orch, err := browser.NewOrchestrator(browser.OrchestratorOptions{
		Pool:        pool,
		Launcher:    launcher,
		Importer:    importer,
		Broadcaster: broadcaster,
		Launch: browser.LaunchOptions{
			Headless:       cfg.Headless,
			Channel:        cfg.Channel,
			Proxy:          cfg.Proxy,
			WindowSize:     cfg.WindowSize,
			WindowPosition: cfg.WindowPosition,
		},
	})
	if err != nil {
		return nil, err
	}

	return &components{
		cfg:         cfg,
		pool:        pool,
		importer:    importer,
		broadcaster: broadcaster,
		launcher:    launcher,
		orch:        orch,
	}, nil
}
