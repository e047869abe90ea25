package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hydraspecter/hydraspecter/pkg/profile"
)

var propagateCmd = &cobra.Command{
	Use:   "propagate [slot]",
	Short: "Copy a slot's session to every other unlocked slot",
	Long: `Fan a slot's session files out across the pool. Slots that are locked
by a live process are skipped rather than written under a running
browser. Defaults to propagating from the authenticated slot pool-0.

A source with no cookies propagates nothing; an empty slot never
overwrites sessions elsewhere.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPropagate,
}

func init() {
	rootCmd.AddCommand(propagateCmd)
}

func runPropagate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}

	sourceID := profile.AuthenticatedSlotID
	if len(args) > 0 {
		sourceID = args[0]
	}

	report, err := comps.broadcaster.Propagate(cmd.Context(), sourceID)
	if err != nil {
		return err
	}

	fmt.Printf("Propagated from %s: %d synced, %d skipped.\n", sourceID, report.Synced, report.Skipped)
	return nil
}
