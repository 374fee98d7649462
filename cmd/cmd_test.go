// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/browser"
	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/faults"
	"github.com/xkilldash9x/cookiebot/internal/mocks"
	"github.com/xkilldash9x/cookiebot/internal/observability"
	"github.com/xkilldash9x/cookiebot/internal/retry"
)

// executeCommand runs a fresh command tree and returns stdout, stderr (where
// logs go) and the error.
func executeCommand(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// clearRequiredEnv makes sure the host environment cannot satisfy required
// inputs behind a test's back. Empty values count as unset.
func clearRequiredEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"X_USER", "X_PASS", "AUTH_FILE", "RSS_ENV", "RSS_CONTAINER",
		"COOKIEBOT_CREDENTIALS_IDENTITY", "COOKIEBOT_CREDENTIALS_SECRET",
		"COOKIEBOT_PUBLISHER_AUTH_FILE", "COOKIEBOT_PUBLISHER_ENV_FILE", "COOKIEBOT_RESTART_SERVICE",
	} {
		t.Setenv(name, "")
	}
}

// deployment is a temp directory with an env store and a config file that
// points every path into it.
type deployment struct {
	dir        string
	authFile   string
	envFile    string
	configFile string
}

func newDeployment(t *testing.T, extraYAML string) *deployment {
	t.Helper()
	clearRequiredEnv(t)
	dir := t.TempDir()
	d := &deployment{
		dir:        dir,
		authFile:   filepath.Join(dir, "auth.env"),
		envFile:    filepath.Join(dir, ".env"),
		configFile: filepath.Join(dir, "config.yaml"),
	}
	require.NoError(t, os.WriteFile(d.envFile, []byte("PORT=1200\n"), 0o644))

	content := fmt.Sprintf(`
logger:
  level: debug
  format: json
publisher:
  auth_file: %q
  env_file: %q
  settle_delay: 10ms
restart:
  command: ["true"]
  workdir: %q
  timeout: 10s
diagnostics:
  dir: %q
%s`, d.authFile, d.envFile, dir, dir, extraYAML)
	require.NoError(t, os.WriteFile(d.configFile, []byte(content), 0o600))
	return d
}

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("X_USER", "someone@example.com")
	t.Setenv("X_PASS", "hunter2")
	t.Setenv("RSS_CONTAINER", "rsshub")
}

// stubDriver replaces the browser engine for the duration of a test.
func stubDriver(t *testing.T, d browser.Driver) {
	t.Helper()
	newDriver = func(config.BrowserConfig, *zap.Logger) (browser.Driver, error) { return d, nil }
	t.Cleanup(func() { newDriver = browser.NewDriver })
}

// loggedInSession is a browser session on which every step succeeds.
func loggedInSession(jar map[string]string) *mocks.MockSession {
	s := new(mocks.MockSession)
	s.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	s.On("Click", mock.Anything, mock.Anything).Return(nil)
	s.On("WaitVisible", mock.Anything, mock.Anything).Return(nil)
	s.On("Fill", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	s.On("Submit", mock.Anything, mock.Anything).Return(nil)
	s.On("WaitURL", mock.Anything, mock.Anything).Return(nil)
	s.On("WaitIdle", mock.Anything).Return(nil)
	s.On("Cookies", mock.Anything).Return(jar, nil)
	s.On("Close").Return(nil)
	return s
}

func TestVersion(t *testing.T) {
	clearRequiredEnv(t)

	out, _, err := executeCommand(t, context.Background(), "version")
	require.NoError(t, err)
	assert.Equal(t, "cookiebot "+Version+"\n", out)

	out, _, err = executeCommand(t, context.Background(), "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestMissingRequiredInputIsConfigurationError(t *testing.T) {
	d := newDeployment(t, "")

	_, _, err := executeCommand(t, context.Background(), "run", "--config", d.configFile)
	require.Error(t, err)
	assert.Equal(t, faults.Configuration, faults.KindOf(err))
	assert.ErrorContains(t, err, "credentials.identity is required")
	assert.Equal(t, 1, ExitCode(err))
}

func TestMalformedConfigFileIsConfigurationError(t *testing.T) {
	clearRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry: [unclosed"), 0o600))

	_, _, err := executeCommand(t, context.Background(), "version", "--config", path)
	require.NoError(t, err, "version never loads configuration")

	_, _, err = executeCommand(t, context.Background(), "probe", "--config", path, "--token", "a", "--secondary-token", "b")
	assert.Equal(t, faults.Configuration, faults.KindOf(err))
}

func TestProbe(t *testing.T) {
	var gotKey string
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	// probe needs no credentials or store paths.
	clearRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("health:\n  url_template: %q\n", srv.URL+"/feed?key={{.SecondaryToken}}")), 0o600))

	out, _, err := executeCommand(t, context.Background(), "probe", "--config", path, "--token", "tok", "--secondary-token", "csrf-9")
	require.NoError(t, err)
	assert.Equal(t, "healthy\n", out)
	assert.Equal(t, "csrf-9", gotKey)

	healthy = false
	out, _, err = executeCommand(t, context.Background(), "probe", "--config", path, "--token", "tok", "--secondary-token", "csrf-9")
	require.Error(t, err)
	assert.Equal(t, "unhealthy\n", out)
	assert.Equal(t, 1, ExitCode(err))
}

func TestProbeRequiresTokens(t *testing.T) {
	clearRequiredEnv(t)
	_, _, err := executeCommand(t, context.Background(), "probe", "--token", "only-one")
	assert.ErrorContains(t, err, "required flag")
}

func TestAcquirePrintsRedactedPair(t *testing.T) {
	d := newDeployment(t, "")
	setCredentials(t)

	jar := map[string]string{"auth_token": "tok-cli-0001", "ct0": "csrf-cli-0001"}
	driver := new(mocks.MockDriver)
	driver.On("NewSession", mock.Anything).Return(loggedInSession(jar), nil)
	stubDriver(t, driver)

	out, stderr, err := executeCommand(t, context.Background(), "acquire", "--config", d.configFile)
	require.NoError(t, err)
	assert.Contains(t, out, "acquired Pair{token:tok-***(12)")
	assert.NotContains(t, out, "tok-cli-0001")
	assert.NotContains(t, stderr, "tok-cli-0001")
	assert.NoFileExists(t, d.authFile, "nothing is published without --publish")
}

func TestAcquireAndPublish(t *testing.T) {
	d := newDeployment(t, "")
	setCredentials(t)

	jar := map[string]string{"auth_token": "tok-cli-0001", "ct0": "csrf-cli-0001"}
	driver := new(mocks.MockDriver)
	driver.On("NewSession", mock.Anything).Return(loggedInSession(jar), nil)
	stubDriver(t, driver)

	out, _, err := executeCommand(t, context.Background(), "acquire", "--publish", "--config", d.configFile)
	require.NoError(t, err)
	assert.Contains(t, out, "published to "+d.authFile)

	auth, err := os.ReadFile(d.authFile)
	require.NoError(t, err)
	assert.Equal(t, "TWITTER_AUTH_TOKEN=tok-cli-0001\nTWITTER_COOKIE=auth_token=tok-cli-0001; ct0=csrf-cli-0001\n", string(auth))

	env, err := os.ReadFile(d.envFile)
	require.NoError(t, err)
	assert.Equal(t, "PORT=1200\nTWITTER_AUTH_TOKEN=tok-cli-0001\nTWITTER_COOKIE=auth_token=tok-cli-0001; ct0=csrf-cli-0001\n", string(env))
}

func TestAcquireExhaustedCycle(t *testing.T) {
	d := newDeployment(t, "retry:\n  max_attempts: 1\n")
	setCredentials(t)

	driver := new(mocks.MockDriver)
	driver.On("NewSession", mock.Anything).
		Return(nil, faults.New(faults.UnexpectedInteraction, "launch browser", fmt.Errorf("no chrome"))).Once()
	stubDriver(t, driver)

	_, _, err := executeCommand(t, context.Background(), "acquire", "--config", d.configFile)
	assert.ErrorIs(t, err, retry.ErrNoCredentials)
	assert.Equal(t, 1, ExitCode(err))
	driver.AssertExpectations(t)
}

func TestRunStopsOnCancel(t *testing.T) {
	d := newDeployment(t, "")
	setCredentials(t)
	stubDriver(t, new(mocks.MockDriver))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := executeCommand(t, ctx, "run", "--config", d.configFile, "--metrics-addr", "127.0.0.1:0")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ExitCode(err))
}

func TestRunReportsMetricsBindFailure(t *testing.T) {
	d := newDeployment(t, "")
	setCredentials(t)

	// Supervisor blocks in the first cycle until the bind failure cancels it.
	cycleDriver := new(mocks.MockDriver)
	cycleDriver.On("NewSession", mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.Canceled).Maybe()
	stubDriver(t, cycleDriver)

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	_, _, err = executeCommand(t, context.Background(), "run", "--config", d.configFile, "--metrics-addr", taken.Addr().String())
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to bind")
	assert.Equal(t, 1, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 0, ExitCode(fmt.Errorf("shutting down: %w", context.Canceled)))
	assert.Equal(t, 1, ExitCode(faults.New(faults.Configuration, "load", nil)))
	assert.Equal(t, 1, ExitCode(retry.ErrNoCredentials))
}
