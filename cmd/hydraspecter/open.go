package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open [slot]",
	Short: "Open a pooled browser and keep it running",
	Long: `Open a browser context on a pool slot. The slot's session is refreshed
from your everyday browser profile first, then the browser stays up
until you press Ctrl+C or close its window; either way the session is
propagated to the rest of the pool and the slot is released.

Without an argument the first free slot is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = comps.launcher.Shutdown() }()

	preferred := ""
	if len(args) > 0 {
		preferred = args[0]
	}

	act, err := comps.orch.Open(cmd.Context(), preferred)
	if err != nil {
		return err
	}

	fmt.Printf("Opened %s (profile %s)\n", act.Slot.ID, act.Slot.Path)
	if !act.SessionSynced {
		fmt.Println("Note: no session was imported; the slot runs with its existing state.")
	}
	fmt.Println("Press Ctrl+C to close, or just close the browser window.")

	closed := make(chan struct{})
	act.Handle.OnClose(func() { close(closed) })

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		fmt.Println("\nClosing...")
		return comps.orch.Close(context.Background(), act.Slot.ID)
	case <-closed:
		// The orchestrator's own close handler has already propagated the
		// session and released the slot.
		fmt.Println("Browser closed.")
		return nil
	}
}
