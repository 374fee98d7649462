// internal/browser/install.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/config"
)

const playwrightInstallTimeout = 10 * time.Minute

// installPlaywright is swapped out in tests.
var installPlaywright = playwright.Install

// EnsureInstalled downloads the Playwright driver and the configured browser
// product when the playwright engine is selected. The chromedp engine uses
// the system Chrome, so there is nothing to install.
func EnsureInstalled(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) error {
	if cfg.Engine != config.EnginePlaywright {
		logger.Info("Engine uses the system browser; nothing to install.", zap.String("engine", cfg.Engine))
		return nil
	}

	logger.Info("Verifying Playwright browser installation...", zap.String("product", cfg.Product))
	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	// playwright.Install blocks and takes no context.
	install := installPlaywright
	errCh := make(chan error, 1)
	go func() {
		errCh <- install(&playwright.RunOptions{Browsers: []string{cfg.Product}})
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to install playwright browsers: %w", err)
		}
		logger.Info("Playwright browsers installed.", zap.String("product", cfg.Product))
		return nil
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}
