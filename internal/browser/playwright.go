// internal/browser/playwright.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/faults"
)

// PlaywrightDriver launches Firefox or Chromium through the Playwright driver.
// Each session gets its own driver process, browser, and browser context.
type PlaywrightDriver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

func NewPlaywrightDriver(cfg config.BrowserConfig, logger *zap.Logger) *PlaywrightDriver {
	return &PlaywrightDriver{cfg: cfg, logger: logger.Named("playwright")}
}

func (d *PlaywrightDriver) prepareLaunchOptions() playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.cfg.Headless),
		Args:     d.cfg.Args,
	}
	if d.cfg.LaunchTimeout > 0 {
		opts.Timeout = playwright.Float(float64(d.cfg.LaunchTimeout.Milliseconds()))
	}
	if d.cfg.ExecPath != "" {
		opts.ExecutablePath = playwright.String(d.cfg.ExecPath)
	}
	return opts
}

func (d *PlaywrightDriver) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, "launch browser", err)
	}
	id := uuid.NewString()
	logger := d.logger.With(zap.String("session_id", id), zap.String("product", d.cfg.Product))

	pw, err := playwright.Run()
	if err != nil {
		return nil, faults.New(faults.UnexpectedInteraction, "start playwright driver", err)
	}
	s := &playwrightSession{pw: pw, logger: logger}

	browserType := pw.Firefox
	if d.cfg.Product == "chromium" {
		browserType = pw.Chromium
	}
	s.browser, err = browserType.Launch(d.prepareLaunchOptions())
	if err != nil {
		s.Close()
		return nil, faults.New(faults.UnexpectedInteraction, "launch browser", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: d.cfg.Width, Height: d.cfg.Height},
	}
	if d.cfg.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(d.cfg.UserAgent)
	}
	s.bctx, err = s.browser.NewContext(contextOpts)
	if err != nil {
		s.Close()
		return nil, faults.New(faults.UnexpectedInteraction, "create browser context", err)
	}

	s.page, err = s.bctx.NewPage()
	if err != nil {
		s.Close()
		return nil, faults.New(faults.UnexpectedInteraction, "create page", err)
	}

	logger.Debug("Browser session started.", zap.String("browser_version", s.browser.Version()))
	return s, nil
}

type playwrightSession struct {
	pw        *playwright.Playwright
	browser   playwright.Browser
	bctx      playwright.BrowserContext
	page      playwright.Page
	logger    *zap.Logger
	closeOnce sync.Once
}

// timeoutFrom converts the ctx deadline into a Playwright timeout in
// milliseconds. Playwright reads 0 as "no timeout".
func timeoutFrom(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return playwright.Float(0)
	}
	remaining := time.Until(deadline)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	return playwright.Float(float64(remaining.Milliseconds()))
}

// check maps a Playwright error onto the fault kinds.
func (s *playwrightSession) check(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return faults.New(faults.InteractionTimeout, op, err)
	}
	return classify(ctx, op, err)
}

func (s *playwrightSession) Navigate(ctx context.Context, url string) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutFrom(ctx),
	})
	return s.check(ctx, "navigate "+url, err)
}

func (s *playwrightSession) Click(ctx context.Context, selector string) error {
	err := s.page.Click(selector, playwright.PageClickOptions{Timeout: timeoutFrom(ctx)})
	return s.check(ctx, "click "+selector, err)
}

func (s *playwrightSession) Fill(ctx context.Context, selector, value string) error {
	err := s.page.Fill(selector, value, playwright.PageFillOptions{Timeout: timeoutFrom(ctx)})
	return s.check(ctx, "fill "+selector, err)
}

func (s *playwrightSession) Submit(ctx context.Context, selector string) error {
	err := s.page.Press(selector, "Enter", playwright.PagePressOptions{Timeout: timeoutFrom(ctx)})
	return s.check(ctx, "submit "+selector, err)
}

func (s *playwrightSession) WaitVisible(ctx context.Context, selector string) error {
	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutFrom(ctx),
	})
	return s.check(ctx, "wait for "+selector, err)
}

func (s *playwrightSession) WaitURL(ctx context.Context, pattern *regexp.Regexp) error {
	err := s.page.WaitForURL(pattern, playwright.PageWaitForURLOptions{
		WaitUntil: playwright.WaitUntilStateCommit,
		Timeout:   timeoutFrom(ctx),
	})
	return s.check(ctx, "wait for url "+pattern.String(), err)
}

func (s *playwrightSession) WaitIdle(ctx context.Context) error {
	err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeoutFrom(ctx),
	})
	return s.check(ctx, "wait for idle", err)
}

func (s *playwrightSession) Cookies(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, "read cookies", err)
	}
	cookies, err := s.bctx.Cookies()
	if err != nil {
		return nil, s.check(ctx, "read cookies", err)
	}
	jar := make(map[string]string, len(cookies))
	for _, c := range cookies {
		jar[c.Name] = c.Value
	}
	return jar, nil
}

func (s *playwrightSession) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Timeout:  timeoutFrom(ctx),
	})
	if err != nil {
		return nil, s.check(ctx, "screenshot", err)
	}
	return buf, nil
}

// Close tears down in reverse order of creation. Errors are collected, not
// short-circuited, so the driver process is always stopped.
func (s *playwrightSession) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.bctx != nil {
			errs = append(errs, s.bctx.Close())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		if s.pw != nil {
			errs = append(errs, s.pw.Stop())
		}
		s.logger.Debug("Browser session closed.")
	})
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing playwright session: %w", err)
	}
	return nil
}
