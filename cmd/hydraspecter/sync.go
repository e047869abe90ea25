package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hydraspecter/hydraspecter/pkg/profile"
	"github.com/hydraspecter/hydraspecter/pkg/session"
)

var syncStateFile string

var syncCmd = &cobra.Command{
	Use:   "sync [slot]",
	Short: "Import your everyday browser session into a slot",
	Long: `Copy cookies and storage from your everyday browser profile into a pool
slot without launching anything. The slot is locked for the duration of
the copy. Defaults to the authenticated slot pool-0.

Recent slots are left alone: if the slot's cookie store is already
fresh relative to the external profile, the import is skipped.

With --state, a storage-state JSON file (cookies plus per-origin
localStorage, e.g. one captured by the companion extension) is
deposited into the slot instead of copying the external profile; it is
injected into the browser context at the slot's next open.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncStateFile, "state", "", "storage-state JSON file to deposit instead of importing the external profile")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if syncStateFile == "" && cfg.ExternalProfile == "" {
		return fmt.Errorf("no external profile configured; set external_profile or HYDRA_EXTERNAL_PROFILE, or pass --state")
	}

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}

	slotID := profile.AuthenticatedSlotID
	if len(args) > 0 {
		slotID = args[0]
	}

	slot, err := comps.pool.Acquire(cmd.Context(), slotID)
	if err != nil {
		return err
	}
	if slot.ID != slotID {
		// The requested slot was busy and the pool handed us a fallback;
		// importing there is not what the operator asked for.
		_ = comps.pool.Release(slot.ID)
		return fmt.Errorf("%s is busy; close its session or force-release it first", slotID)
	}
	defer func() { _ = comps.pool.Release(slot.ID) }()

	if syncStateFile != "" {
		if err := depositStateFile(slot.Path, syncStateFile); err != nil {
			return err
		}
		fmt.Printf("Deposited session state into %s; it is injected at the next open.\n", slot.ID)
		return nil
	}

	if comps.importer.ImportFromExternalProfile(cmd.Context(), slot.Path) {
		fmt.Printf("Session imported into %s.\n", slot.ID)
	} else {
		fmt.Printf("No session imported into %s; see the run log for details.\n", slot.ID)
	}
	return nil
}

// depositStateFile merges a storage-state JSON file into the slot's
// pending-session marker.
func depositStateFile(slotPath, statePath string) error {
	data, err := os.ReadFile(statePath)
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state session.State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", statePath, err)
	}

	return session.DepositState(slotPath, &state)
}
