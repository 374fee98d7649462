// internal/browser/interface.go
package browser

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/config"
)

// Driver launches isolated browser sessions. Every session is a fresh
// browser with no state shared with any earlier one.
type Driver interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is the set of page capabilities the login flow needs. Every
// blocking call is bounded by the deadline of the ctx it is given; a deadline
// hit surfaces as a faults.InteractionTimeout error, anything else the page
// refuses as faults.UnexpectedInteraction.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	// Fill replaces the value of the input matching selector.
	Fill(ctx context.Context, selector, value string) error
	// Submit presses Enter in the input matching selector.
	Submit(ctx context.Context, selector string) error
	WaitVisible(ctx context.Context, selector string) error
	// WaitURL blocks until the page URL matches pattern.
	WaitURL(ctx context.Context, pattern *regexp.Regexp) error
	// WaitIdle blocks until the document has loaded and network activity settled.
	WaitIdle(ctx context.Context) error
	// Cookies returns every cookie in the browser keyed by name.
	Cookies(ctx context.Context) (map[string]string, error)
	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close releases the browser. Safe to call more than once.
	Close() error
}

// NewDriver returns the engine selected by cfg.Engine.
func NewDriver(cfg config.BrowserConfig, logger *zap.Logger) (Driver, error) {
	switch cfg.Engine {
	case config.EngineChromedp, "":
		return NewChromedpDriver(cfg, logger), nil
	case config.EnginePlaywright:
		return NewPlaywrightDriver(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported browser engine %q", cfg.Engine)
	}
}
