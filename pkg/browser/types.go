package browser

import (
	"context"

	"github.com/playwright-community/playwright-go"

	"github.com/hydraspecter/hydraspecter/pkg/session"
)

// LaunchOptions configures how persistent contexts are launched against
// profile slot directories.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Channel selects the browser build, e.g. "chrome" for the system
	// Chrome; empty uses the bundled Chromium
	Channel string

	// Proxy is forwarded to the browser as --proxy-server
	Proxy string

	// WindowSize is "width,height" in pixels
	WindowSize string

	// WindowPosition is "x,y" in pixels
	WindowPosition string

	// ExtraArgs are appended verbatim to the launch arguments
	ExtraArgs []string
}

// Launcher starts browser contexts bound to profile slot directories.
// The orchestrator depends on this interface, keeping the Playwright
// plumbing swappable in tests.
type Launcher interface {
	Launch(ctx context.Context, userDataDir string, opts LaunchOptions) (Handle, error)
}

// Handle is a live browser context running against a profile slot.
type Handle interface {
	// AddCookies injects cookies into the running context.
	AddCookies(cookies []session.Cookie) error

	// AddOriginStorage seeds per-origin localStorage in the running
	// context. Entries are applied to documents of the matching origin
	// before their own scripts run.
	AddOriginStorage(origins []session.OriginState) error

	// Page returns the context's active page.
	Page() playwright.Page

	// OnClose registers a callback fired when the context goes away,
	// including when the user closes the browser window themselves.
	OnClose(fn func())

	// Close shuts the context down, flushing profile state to disk.
	Close() error
}

// Launch arguments and defaults shared by every context. The mask
// arguments plus the dropped --enable-automation switch keep the browser
// from advertising that it is driven.
var automationMaskArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-infobars",
	"--disable-dev-shm-usage",
	"--no-first-run",
}

var ignoredDefaultArgs = []string{
	"--enable-automation",
}

// maskInitScript hides the last reliable automation marker from page
// scripts before any of them run.
const maskInitScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

const (
	DefaultWindowSize = "1280,720"
	DefaultChannel    = "chrome"
)
