// internal/browser/session/options.go
package session

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/madanlalit/heimdall/internal/config"
)

// BrowserFlags translates the browser configuration into Chrome command line
// flags, keyed without the leading "--". A false value removes a default flag.
func BrowserFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"no-first-run":                  true,
		"no-default-browser-check":      true,
		"disable-popup-blocking":        true,
		"disable-translate":             true,
		"disable-sync":                  true,
		"disable-extensions":            true,
		"disable-dev-shm-usage":         true,
		"disable-background-networking": true,
		"no-sandbox":                    true,
	}

	if cfg.Headless {
		flags["headless"] = "new"
		flags["hide-scrollbars"] = true
		flags["mute-audio"] = true
	} else {
		flags["headless"] = false
	}

	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
	}
	if cfg.UserDataDir != "" {
		flags["user-data-dir"] = cfg.UserDataDir
	}

	// Extra arguments from the config file win over everything above.
	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(strings.TrimSpace(arg), "--")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			flags[key] = value
			continue
		}
		flags[arg] = true
	}
	return flags
}

// AllocatorOptions builds the exec allocator options for launching Chrome.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range BrowserFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	return opts
}
