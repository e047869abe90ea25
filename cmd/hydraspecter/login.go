package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/cobra"

	"github.com/hydraspecter/hydraspecter/pkg/browser"
	"github.com/hydraspecter/hydraspecter/pkg/profile"
)

// loginSite describes one site the login command can warm up: where to
// log in, and how to verify afterwards that the session stuck.
type loginSite struct {
	LoginURL         string
	CheckURL         string
	SuccessIndicator string
}

var loginSites = map[string]loginSite{
	"google": {
		LoginURL:         "https://accounts.google.com/",
		CheckURL:         "https://mail.google.com/",
		SuccessIndicator: "mail.google.com/mail",
	},
	"amazon": {
		LoginURL:         "https://www.amazon.fr/ap/signin",
		CheckURL:         "https://www.amazon.fr/gp/css/homepage.html",
		SuccessIndicator: "amazon.fr",
	},
	"notion": {
		LoginURL:         "https://www.notion.so/login",
		CheckURL:         "https://www.notion.so/",
		SuccessIndicator: "notion.so",
	},
	"homeexchange": {
		LoginURL:         "https://www.homeexchange.fr/login",
		CheckURL:         "https://www.homeexchange.fr/user/favorite",
		SuccessIndicator: "homeexchange.fr/user",
	},
	"github": {
		LoginURL:         "https://github.com/login",
		CheckURL:         "https://github.com/settings/profile",
		SuccessIndicator: "github.com/settings",
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [site]",
	Short: "Log in to a site once on the authenticated profile",
	Long: `Open the authenticated profile (pool-0) in a visible browser on a site's
login page, wait for you to log in by hand, then verify the session
persisted. Closing afterwards propagates the fresh session to every
other slot, so one manual login serves the whole pool.

Type 'done' at the prompt when you are logged in, or 'skip' to abort.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func siteNames() []string {
	names := make([]string, 0, len(loginSites))
	for name := range loginSites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runLogin(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Printf("Available sites: %s\n", strings.Join(siteNames(), ", "))
		return nil
	}

	name := strings.ToLower(args[0])
	site, ok := loginSites[name]
	if !ok {
		return fmt.Errorf("unknown site %q, available: %s", args[0], strings.Join(siteNames(), ", "))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Manual login needs a window to click in.
	cfg.Headless = false

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = comps.launcher.Shutdown() }()

	ctx := cmd.Context()
	act, err := openAuthenticated(ctx, comps)
	if err != nil {
		return err
	}

	fmt.Printf("MANUAL LOGIN: %s\n", strings.ToUpper(name))
	fmt.Printf("Profile: %s\n", act.Slot.Path)
	fmt.Printf("Opening %s\n", site.LoginURL)

	page := act.Handle.Page()
	if _, err := page.Goto(site.LoginURL, playwright.PageGotoOptions{Timeout: playwright.Float(30000)}); err != nil {
		_ = comps.orch.Close(ctx, act.Slot.ID)
		return fmt.Errorf("failed to open login page: %w", err)
	}

	fmt.Println("\nLog in to your account in the browser window.")
	fmt.Println("Type 'done' and press ENTER when finished, or 'skip' to abort.")

	if promptDoneOrSkip(os.Stdin) == "skip" {
		fmt.Println("Skipped.")
		return comps.orch.Close(ctx, act.Slot.ID)
	}

	fmt.Printf("Final URL: %s\n", page.URL())
	if err := comps.orch.Close(ctx, act.Slot.ID); err != nil {
		return err
	}

	// Reopen the profile from scratch: only a session that survives a
	// full close proves anything.
	fmt.Println("\nVerifying the session persisted...")
	act, err = openAuthenticated(ctx, comps)
	if err != nil {
		return err
	}

	page = act.Handle.Page()
	if _, err := page.Goto(site.CheckURL, playwright.PageGotoOptions{Timeout: playwright.Float(30000)}); err != nil {
		_ = comps.orch.Close(ctx, act.Slot.ID)
		return fmt.Errorf("failed to open check page: %w", err)
	}
	// Give post-login redirects time to settle.
	time.Sleep(5 * time.Second)

	url := page.URL()
	if strings.Contains(url, site.SuccessIndicator) {
		fmt.Println("Success, session persisted.")
		fmt.Println("Closing will propagate it to the rest of the pool.")
	} else {
		fmt.Printf("Session did not persist (landed on %s); log in again.\n", url)
	}

	return comps.orch.Close(ctx, act.Slot.ID)
}

// openAuthenticated opens pool-0 and refuses a fallback slot: logging in
// on any other profile would defeat the point.
func openAuthenticated(ctx context.Context, comps *components) (*browser.Active, error) {
	act, err := comps.orch.SwitchToAuthenticated(ctx)
	if errors.Is(err, browser.ErrNotAuthenticatedSlot) {
		_ = comps.orch.Close(ctx, act.Slot.ID)
		return nil, fmt.Errorf("%s is busy; free it first: hydraspecter profiles release --force %s",
			profile.AuthenticatedSlotID, profile.AuthenticatedSlotID)
	}
	if err != nil {
		return nil, err
	}
	return act, nil
}

// promptDoneOrSkip reads lines until one of the two commands appears.
// EOF counts as done so piped input cannot hang the command.
func promptDoneOrSkip(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	for {
		fmt.Print(">>> ")
		if !scanner.Scan() {
			return "done"
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "done":
			return "done"
		case "skip":
			return "skip"
		}
	}
}
