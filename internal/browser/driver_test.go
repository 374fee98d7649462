// internal/browser/driver_test.go
package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/faults"
)

func TestNewDriver(t *testing.T) {
	logger := zaptest.NewLogger(t)

	d, err := NewDriver(config.BrowserConfig{Engine: config.EngineChromedp}, logger)
	require.NoError(t, err)
	assert.IsType(t, &ChromedpDriver{}, d)

	d, err = NewDriver(config.BrowserConfig{Engine: config.EnginePlaywright, Product: "firefox"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &PlaywrightDriver{}, d)

	_, err = NewDriver(config.BrowserConfig{Engine: "lynx"}, logger)
	assert.ErrorContains(t, err, "unsupported browser engine")
}

func TestClassify(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, classify(context.Background(), "click", nil))
	})

	t.Run("expired operation deadline is a timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()

		err := classify(ctx, "wait for #user", context.Canceled)
		assert.Equal(t, faults.InteractionTimeout, faults.KindOf(err))
		assert.Contains(t, err.Error(), "wait for #user")
	})

	t.Run("wrapped deadline is a timeout", func(t *testing.T) {
		err := classify(context.Background(), "navigate", errors.Join(errors.New("cdp"), context.DeadlineExceeded))
		assert.Equal(t, faults.InteractionTimeout, faults.KindOf(err))
	})

	t.Run("cancellation stays detectable", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := classify(ctx, "fill", context.Canceled)
		assert.Equal(t, faults.UnexpectedInteraction, faults.KindOf(err))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("anything else is unexpected", func(t *testing.T) {
		err := classify(context.Background(), "click", errors.New("node not found"))
		assert.Equal(t, faults.UnexpectedInteraction, faults.KindOf(err))
	})
}

func TestParseFlag(t *testing.T) {
	tests := []struct {
		arg       string
		wantName  string
		wantValue interface{}
	}{
		{"--disable-gpu", "disable-gpu", true},
		{"--lang=en-US", "lang", "en-US"},
		{"proxy-server=http://127.0.0.1:8080", "proxy-server", "http://127.0.0.1:8080"},
	}
	for _, tt := range tests {
		name, value := parseFlag(tt.arg)
		assert.Equal(t, tt.wantName, name, tt.arg)
		assert.Equal(t, tt.wantValue, value, tt.arg)
	}
}

func TestBuildAllocatorOptions(t *testing.T) {
	d := NewChromedpDriver(config.BrowserConfig{
		Headless:  true,
		Width:     1280,
		Height:    720,
		ExecPath:  "/usr/bin/chromium",
		UserAgent: "cookiebot-test",
		Args:      []string{"--lang=en-US"},
	}, zaptest.NewLogger(t))

	opts := d.buildAllocatorOptions()
	// Defaults, five fixed flags, then exec path, user agent, and one extra arg.
	assert.Greater(t, len(opts), 8)
}

func TestTimeoutFrom(t *testing.T) {
	assert.Equal(t, 0.0, *timeoutFrom(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	ms := *timeoutFrom(ctx)
	assert.InDelta(t, 15000, ms, 1000)

	expired, cancelExpired := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancelExpired()
	<-expired.Done()
	assert.Equal(t, 1.0, *timeoutFrom(expired))
}
