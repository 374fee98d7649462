// internal/browser/chromedp.go
package browser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/faults"
)

const (
	pollInterval  = 250 * time.Millisecond
	idleQuietTime = 500 * time.Millisecond
)

// ChromedpDriver starts a dedicated Chrome process per session through a
// chromedp exec allocator. The allocator owns a throwaway profile directory,
// so nothing survives between sessions.
type ChromedpDriver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewChromedpDriver creates a driver; no browser is started until NewSession.
func NewChromedpDriver(cfg config.BrowserConfig, logger *zap.Logger) *ChromedpDriver {
	return &ChromedpDriver{cfg: cfg, logger: logger.Named("chromedp")}
}

// buildAllocatorOptions assembles the Chrome flags for a headless, container
// friendly instance.
func (d *ChromedpDriver) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
		chromedp.WindowSize(d.cfg.Width, d.cfg.Height),
	)
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}
	if d.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.cfg.UserAgent))
	}
	for _, arg := range d.cfg.Args {
		name, value := parseFlag(arg)
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// NewSession launches a browser and opens one tab. The browser lives until
// Close; ctx only bounds the launch itself.
func (d *ChromedpDriver) NewSession(ctx context.Context) (Session, error) {
	id := uuid.NewString()
	logger := d.logger.With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), d.buildAllocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	s := &chromedpSession{
		id:          id,
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		logger:      logger,
		tracker:     newInflightTracker(),
	}
	chromedp.ListenTarget(tabCtx, s.tracker.handle)

	// The first Run on a chromedp context starts the browser and binds its
	// lifetime to the context it was called with, so it must be the
	// long-lived tab context. The launch timeout is enforced from outside.
	launchCtx := ctx
	if d.cfg.LaunchTimeout > 0 {
		var cancel context.CancelFunc
		launchCtx, cancel = context.WithTimeout(ctx, d.cfg.LaunchTimeout)
		defer cancel()
	}
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx, network.Enable()) }()

	select {
	case err := <-started:
		if err != nil {
			s.Close()
			return nil, faults.New(faults.UnexpectedInteraction, "launch browser", err)
		}
	case <-launchCtx.Done():
		s.Close()
		<-started
		return nil, classify(launchCtx, "launch browser", launchCtx.Err())
	}

	logger.Debug("Browser session started.")
	return s, nil
}

type chromedpSession struct {
	id          string
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	tracker     *inflightTracker
	closeOnce   sync.Once
}

// runActions executes chromedp actions bounded by both the session lifetime
// and the caller's ctx, then classifies any failure against ctx.
func (s *chromedpSession) runActions(ctx context.Context, op string, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return classify(ctx, op, chromedp.Run(runCtx, actions...))
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	return s.runActions(ctx, "navigate "+url, chromedp.Navigate(url))
}

func (s *chromedpSession) Click(ctx context.Context, selector string) error {
	return s.runActions(ctx, "click "+selector, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *chromedpSession) Fill(ctx context.Context, selector, value string) error {
	return s.runActions(ctx, "fill "+selector,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (s *chromedpSession) Submit(ctx context.Context, selector string) error {
	return s.runActions(ctx, "submit "+selector, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
}

func (s *chromedpSession) WaitVisible(ctx context.Context, selector string) error {
	return s.runActions(ctx, "wait for "+selector, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromedpSession) WaitURL(ctx context.Context, pattern *regexp.Regexp) error {
	op := "wait for url " + pattern.String()
	return s.runActions(ctx, op, chromedp.ActionFunc(func(runCtx context.Context) error {
		return poll(runCtx, func() (bool, error) {
			var location string
			if err := chromedp.Location(&location).Do(runCtx); err != nil {
				return false, err
			}
			return pattern.MatchString(location), nil
		})
	}))
}

func (s *chromedpSession) WaitIdle(ctx context.Context) error {
	return s.runActions(ctx, "wait for idle",
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(runCtx context.Context) error {
			return poll(runCtx, func() (bool, error) {
				var state string
				if err := chromedp.Evaluate(`document.readyState`, &state).Do(runCtx); err != nil {
					return false, err
				}
				return state == "complete", nil
			})
		}),
		chromedp.ActionFunc(func(runCtx context.Context) error {
			return poll(runCtx, func() (bool, error) {
				quiet, open := s.tracker.quietFor(idleQuietTime)
				if !quiet {
					s.logger.Debug("Waiting for network idle.", zap.Int("inflight_requests", open))
				}
				return quiet, nil
			})
		}),
	)
}

func (s *chromedpSession) Cookies(ctx context.Context) (map[string]string, error) {
	jar := make(map[string]string)
	err := s.runActions(ctx, "read cookies", chromedp.ActionFunc(func(runCtx context.Context) error {
		cookies, err := storage.GetCookies().Do(runCtx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			jar[c.Name] = c.Value
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return jar, nil
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.runActions(ctx, "screenshot", chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close cancels the tab and then the allocator, which kills the browser
// process and removes its profile directory.
func (s *chromedpSession) Close() error {
	s.closeOnce.Do(func() {
		s.tabCancel()
		s.allocCancel()
		s.logger.Debug("Browser session closed.")
	})
	return nil
}

// poll calls check until it reports true, returns an error, or ctx ends.
func poll(ctx context.Context, check func() (bool, error)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("condition not met: %w", context.Cause(ctx))
		case <-ticker.C:
		}
	}
}

// parseFlag splits "--name=value" into a chromedp flag. A bare "--name" is a
// boolean switch.
func parseFlag(arg string) (string, interface{}) {
	name, value, ok := strings.Cut(strings.TrimLeft(arg, "-"), "=")
	if !ok {
		return name, true
	}
	return name, value
}
