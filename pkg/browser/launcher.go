package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/hydraspecter/hydraspecter/pkg/logging"
	"github.com/hydraspecter/hydraspecter/pkg/session"
)

// PlaywrightLauncher launches persistent Chromium contexts through the
// Playwright driver. The driver process is started once on first use and
// shared by every context.
type PlaywrightLauncher struct {
	mu          sync.Mutex
	pw          *playwright.Playwright
	initialized bool
	logger      *logging.Logger
}

// NewPlaywrightLauncher creates a launcher. The Playwright driver is not
// started until the first Launch call.
func NewPlaywrightLauncher(logger *logging.Logger) *PlaywrightLauncher {
	if logger == nil {
		logger, _ = logging.NewLogger("browser-launcher")
	}
	return &PlaywrightLauncher{logger: logger}
}

// initialize installs and starts the Playwright driver once. Driver
// output is discarded so it cannot interleave with CLI output.
func (l *PlaywrightLauncher) initialize(channel string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if channel != "" {
		// A real browser channel is configured, so only the driver is
		// needed, not the bundled Chromium download.
		opts.SkipInstallBrowsers = true
	} else {
		opts.Browsers = []string{"chromium"}
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	l.pw = pw
	l.initialized = true
	return nil
}

// Launch opens a persistent context on userDataDir. The context carries
// the automation-masking arguments and init script; cookies and local
// storage already present in the slot directory are picked up by the
// browser itself.
func (l *PlaywrightLauncher) Launch(ctx context.Context, userDataDir string, opts LaunchOptions) (Handle, error) {
	if err := l.initialize(opts.Channel); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := append([]string{}, automationMaskArgs...)
	if opts.WindowSize != "" {
		args = append(args, "--window-size="+opts.WindowSize)
	}
	if opts.WindowPosition != "" {
		args = append(args, "--window-position="+opts.WindowPosition)
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy-server="+opts.Proxy)
	}
	args = append(args, opts.ExtraArgs...)

	launchOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(opts.Headless),
		Args:              args,
		IgnoreDefaultArgs: ignoredDefaultArgs,
	}
	if opts.Channel != "" {
		launchOpts.Channel = playwright.String(opts.Channel)
	}
	if !opts.Headless {
		launchOpts.NoViewport = playwright.Bool(true)
	}

	browserCtx, err := l.pw.Chromium.LaunchPersistentContext(userDataDir, launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch persistent context on %s: %w", userDataDir, err)
	}

	if err := browserCtx.AddInitScript(playwright.Script{
		Content: playwright.String(maskInitScript),
	}); err != nil {
		_ = browserCtx.Close()
		return nil, fmt.Errorf("failed to add init script: %w", err)
	}

	var page playwright.Page
	if pages := browserCtx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = browserCtx.NewPage()
		if err != nil {
			_ = browserCtx.Close()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	l.logger.Infof("launched persistent context on %s (headless=%v channel=%q)", userDataDir, opts.Headless, opts.Channel)
	return &playwrightHandle{context: browserCtx, page: page}, nil
}

// Shutdown stops the Playwright driver. Contexts should be closed first.
func (l *PlaywrightLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized || l.pw == nil {
		return nil
	}
	if err := l.pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	l.pw = nil
	l.initialized = false
	return nil
}

// playwrightHandle adapts a Playwright persistent context to Handle.
type playwrightHandle struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func (h *playwrightHandle) AddCookies(cookies []session.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	pwCookies := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			Secure:   playwright.Bool(c.Secure),
			HttpOnly: playwright.Bool(c.HTTPOnly),
		}
		if c.Expires != 0 {
			cookie.Expires = playwright.Float(c.Expires)
		}
		if attr := sameSiteAttribute(c.SameSite); attr != nil {
			cookie.SameSite = attr
		}
		pwCookies = append(pwCookies, cookie)
	}

	return h.context.AddCookies(pwCookies)
}

func (h *playwrightHandle) AddOriginStorage(origins []session.OriginState) error {
	script, err := originStorageScript(origins)
	if err != nil {
		return err
	}
	if script == "" {
		return nil
	}
	return h.context.AddInitScript(playwright.Script{Content: playwright.String(script)})
}

// originStorageScript builds an init script that seeds localStorage for
// the given origins. The script runs on every document before its own
// scripts, writing only when the document's origin carries entries.
// Returns "" when no origin has anything to write.
func originStorageScript(origins []session.OriginState) (string, error) {
	byOrigin := make(map[string][]session.KV, len(origins))
	for _, origin := range origins {
		if len(origin.LocalStorage) > 0 {
			byOrigin[origin.Origin] = origin.LocalStorage
		}
	}
	if len(byOrigin) == 0 {
		return "", nil
	}

	data, err := json.Marshal(byOrigin)
	if err != nil {
		return "", fmt.Errorf("failed to encode origin storage: %w", err)
	}

	return fmt.Sprintf(`(() => {
  const entries = (%s)[location.origin];
  if (!entries) return;
  for (const entry of entries) {
    try { localStorage.setItem(entry.name, entry.value); } catch (e) {}
  }
})();`, data), nil
}

func (h *playwrightHandle) Page() playwright.Page {
	return h.page
}

func (h *playwrightHandle) OnClose(fn func()) {
	h.context.OnClose(func(playwright.BrowserContext) {
		fn()
	})
}

func (h *playwrightHandle) Close() error {
	return h.context.Close()
}

func sameSiteAttribute(value string) *playwright.SameSiteAttribute {
	switch value {
	case "Strict", "strict":
		return playwright.SameSiteAttributeStrict
	case "Lax", "lax":
		return playwright.SameSiteAttributeLax
	case "None", "none":
		return playwright.SameSiteAttributeNone
	default:
		return nil
	}
}
