// File: internal/config/config.go
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/cookiebot/internal/faults"
)

// Config holds the entire application configuration. It is built once at
// startup and handed to each component; nothing reads the process
// environment after that.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Flow        FlowConfig        `mapstructure:"flow" yaml:"flow"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Retry       RetryConfig       `mapstructure:"retry" yaml:"retry"`
	Publisher   PublisherConfig   `mapstructure:"publisher" yaml:"publisher"`
	Restart     RestartConfig     `mapstructure:"restart" yaml:"restart"`
	Health      HealthConfig      `mapstructure:"health" yaml:"health"`
	Supervisor  SupervisorConfig  `mapstructure:"supervisor" yaml:"supervisor"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported browser engines.
const (
	EngineChromedp   = "chromedp"
	EnginePlaywright = "playwright"
)

// BrowserConfig holds settings for the isolated browser launched per attempt.
type BrowserConfig struct {
	Engine   string   `mapstructure:"engine" yaml:"engine"`
	// Product selects the playwright browser type ("firefox" or "chromium").
	Product  string   `mapstructure:"product" yaml:"product"`
	Headless bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args     []string `mapstructure:"args" yaml:"args"`
	Width    int      `mapstructure:"width" yaml:"width"`
	Height   int      `mapstructure:"height" yaml:"height"`
	// UserAgent overrides the engine default when set.
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// FlowConfig describes the login sequence: where to go, what to type into,
// and how long each bounded wait may take.
type FlowConfig struct {
	EntryURL               string       `mapstructure:"entry_url" yaml:"entry_url"`
	LoginLinkSelector      string       `mapstructure:"login_link_selector" yaml:"login_link_selector"`
	IdentitySelector       string       `mapstructure:"identity_selector" yaml:"identity_selector"`
	DisambiguationSelector string       `mapstructure:"disambiguation_selector" yaml:"disambiguation_selector"`
	SecretSelectors        []string     `mapstructure:"secret_selectors" yaml:"secret_selectors"`
	LandingURLPattern      string       `mapstructure:"landing_url_pattern" yaml:"landing_url_pattern"`
	WarmupURL              string       `mapstructure:"warmup_url" yaml:"warmup_url"`
	Timeouts               FlowTimeouts `mapstructure:"timeouts" yaml:"timeouts"`
}

// FlowTimeouts bounds every wait in the login sequence.
type FlowTimeouts struct {
	Navigate       time.Duration `mapstructure:"navigate" yaml:"navigate"`
	LoginLink      time.Duration `mapstructure:"login_link" yaml:"login_link"`
	Identity       time.Duration `mapstructure:"identity" yaml:"identity"`
	Disambiguation time.Duration `mapstructure:"disambiguation" yaml:"disambiguation"`
	Secret         time.Duration `mapstructure:"secret" yaml:"secret"`
	Landing        time.Duration `mapstructure:"landing" yaml:"landing"`
	Warmup         time.Duration `mapstructure:"warmup" yaml:"warmup"`
	Cookies        time.Duration `mapstructure:"cookies" yaml:"cookies"`
	Snapshot       time.Duration `mapstructure:"snapshot" yaml:"snapshot"`
}

// CredentialsConfig is the login identity. Secret is never written to YAML.
type CredentialsConfig struct {
	Identity string `mapstructure:"identity" yaml:"identity"`
	// Handle is typed on the optional "confirm your username" step.
	// Falls back to Identity when empty.
	Handle string `mapstructure:"handle" yaml:"handle"`
	Secret string `mapstructure:"secret" yaml:"-"`
}

// RetryConfig configures the backoff controller.
type RetryConfig struct {
	MaxAttempts int             `mapstructure:"max_attempts" yaml:"max_attempts"`
	Backoff     []time.Duration `mapstructure:"backoff" yaml:"backoff"`
	Jitter      time.Duration   `mapstructure:"jitter" yaml:"jitter"`
}

// PublisherConfig locates the two configuration stores and names their keys.
type PublisherConfig struct {
	AuthFile    string        `mapstructure:"auth_file" yaml:"auth_file"`
	EnvFile     string        `mapstructure:"env_file" yaml:"env_file"`
	TokenKey    string        `mapstructure:"token_key" yaml:"token_key"`
	CookieKey   string        `mapstructure:"cookie_key" yaml:"cookie_key"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// RestartConfig describes the dependent-service lifecycle command.
type RestartConfig struct {
	Command []string      `mapstructure:"command" yaml:"command"`
	Service string        `mapstructure:"service" yaml:"service"`
	Workdir string        `mapstructure:"workdir" yaml:"workdir"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// HealthConfig configures the dependent-service probe.
type HealthConfig struct {
	URLTemplate   string        `mapstructure:"url_template" yaml:"url_template"`
	Interval      time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NominalChecks int           `mapstructure:"nominal_checks" yaml:"nominal_checks"`
}

// SupervisorConfig configures the outer loop.
type SupervisorConfig struct {
	Dormancy time.Duration `mapstructure:"dormancy" yaml:"dormancy"`
}

// DiagnosticsConfig controls failure snapshots.
type DiagnosticsConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir"`
	CaptureProgress bool   `mapstructure:"capture_progress" yaml:"capture_progress"`
}

// MetricsConfig controls the optional prometheus endpoint. An empty
// ListenAddress disables the server; metrics are still recorded.
type MetricsConfig struct {
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cookiebot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.engine", EngineChromedp)
	v.SetDefault("browser.product", "firefox")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)
	v.SetDefault("browser.launch_timeout", "60s")

	// -- Flow --
	v.SetDefault("flow.entry_url", "https://twitter.com/")
	v.SetDefault("flow.login_link_selector", `a[href="/login"]`)
	v.SetDefault("flow.identity_selector", `input[autocomplete="username"]`)
	v.SetDefault("flow.disambiguation_selector", `input[data-testid="ocfEnterTextTextInput"]`)
	v.SetDefault("flow.secret_selectors", []string{
		`input[autocomplete="current-password"]`,
		`input[autocapitalize="sentences"]`,
	})
	v.SetDefault("flow.landing_url_pattern", `/home|/timeline`)
	v.SetDefault("flow.warmup_url", "https://twitter.com/home")
	v.SetDefault("flow.timeouts.navigate", "45s")
	v.SetDefault("flow.timeouts.login_link", "10s")
	v.SetDefault("flow.timeouts.identity", "15s")
	v.SetDefault("flow.timeouts.disambiguation", "5s")
	v.SetDefault("flow.timeouts.secret", "15s")
	v.SetDefault("flow.timeouts.landing", "30s")
	v.SetDefault("flow.timeouts.warmup", "15s")
	v.SetDefault("flow.timeouts.cookies", "10s")
	v.SetDefault("flow.timeouts.snapshot", "10s")

	// -- Retry --
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.backoff", []string{"60s", "300s", "900s", "1800s", "3600s"})
	v.SetDefault("retry.jitter", "30s")

	// -- Publisher --
	v.SetDefault("publisher.auth_file", "/shared/auth.env")
	v.SetDefault("publisher.token_key", "TWITTER_AUTH_TOKEN")
	v.SetDefault("publisher.cookie_key", "TWITTER_COOKIE")
	v.SetDefault("publisher.settle_delay", "1s")

	// -- Restart --
	v.SetDefault("restart.command", []string{"docker", "compose", "up", "-d"})
	v.SetDefault("restart.workdir", "/opt/rssstack")
	v.SetDefault("restart.timeout", "5m")

	// -- Health --
	v.SetDefault("health.url_template", "http://localhost:1200/twitter/list/1936936171382468729?key={{.SecondaryToken}}&limit=1")
	v.SetDefault("health.interval", "600s")
	v.SetDefault("health.timeout", "60s")
	v.SetDefault("health.nominal_checks", 24)

	// -- Supervisor --
	v.SetDefault("supervisor.dormancy", "24h")

	// -- Diagnostics --
	v.SetDefault("diagnostics.dir", "/tmp")
	v.SetDefault("diagnostics.capture_progress", false)

	// -- Metrics --
	v.SetDefault("metrics.listen_address", "")
}

// BindEnvironment maps configuration keys to environment variables. Each key
// accepts the prefixed name first and the historical deployment name second.
func BindEnvironment(v *viper.Viper) {
	v.BindEnv("credentials.identity", "COOKIEBOT_CREDENTIALS_IDENTITY", "X_USER")
	v.BindEnv("credentials.secret", "COOKIEBOT_CREDENTIALS_SECRET", "X_PASS")
	v.BindEnv("credentials.handle", "COOKIEBOT_CREDENTIALS_HANDLE")
	v.BindEnv("publisher.auth_file", "COOKIEBOT_PUBLISHER_AUTH_FILE", "AUTH_FILE")
	v.BindEnv("publisher.env_file", "COOKIEBOT_PUBLISHER_ENV_FILE", "RSS_ENV")
	v.BindEnv("restart.service", "COOKIEBOT_RESTART_SERVICE", "RSS_CONTAINER")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
// A returned error is always classified as faults.Configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	BindEnvironment(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, faults.New(faults.Configuration, "unmarshal config", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, faults.New(faults.Configuration, "expand paths", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, faults.New(faults.Configuration, "invalid configuration", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every filesystem path.
func (c *Config) expandPaths() error {
	paths := []*string{
		&c.Publisher.AuthFile,
		&c.Publisher.EnvFile,
		&c.Restart.Workdir,
		&c.Diagnostics.Dir,
		&c.Logger.LogFile,
		&c.Browser.ExecPath,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Credentials.Identity == "" {
		return fmt.Errorf("credentials.identity is required (hint: set X_USER)")
	}
	if c.Credentials.Secret == "" {
		return fmt.Errorf("credentials.secret is required (hint: set X_PASS)")
	}
	if c.Publisher.AuthFile == "" {
		return fmt.Errorf("publisher.auth_file is required (hint: set AUTH_FILE)")
	}
	if c.Publisher.EnvFile == "" {
		return fmt.Errorf("publisher.env_file is required (hint: set RSS_ENV)")
	}
	if c.Restart.Service == "" {
		return fmt.Errorf("restart.service is required (hint: set RSS_CONTAINER)")
	}
	if err := c.Publisher.Validate(); err != nil {
		return fmt.Errorf("publisher configuration invalid: %w", err)
	}
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Flow.Validate(); err != nil {
		return fmt.Errorf("flow configuration invalid: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry configuration invalid: %w", err)
	}
	if len(c.Restart.Command) == 0 {
		return fmt.Errorf("restart.command must not be empty")
	}
	if c.Health.URLTemplate == "" {
		return fmt.Errorf("health.url_template is required")
	}
	if c.Health.Interval <= 0 || c.Health.Timeout <= 0 {
		return fmt.Errorf("health.interval and health.timeout must be positive durations")
	}
	if c.Supervisor.Dormancy <= 0 {
		return fmt.Errorf("supervisor.dormancy must be a positive duration")
	}
	return nil
}

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the store key names. Each must be a plain environment
// variable name, and the two must differ.
func (p *PublisherConfig) Validate() error {
	for name, key := range map[string]string{"token_key": p.TokenKey, "cookie_key": p.CookieKey} {
		if !envKeyPattern.MatchString(key) {
			return fmt.Errorf("%s must be an environment variable name, got %q", name, key)
		}
	}
	if p.TokenKey == p.CookieKey {
		return fmt.Errorf("token_key and cookie_key must differ, both are %q", p.TokenKey)
	}
	return nil
}

// Validate checks the browser engine selection.
func (b *BrowserConfig) Validate() error {
	switch b.Engine {
	case EngineChromedp:
	case EnginePlaywright:
		if b.Product != "firefox" && b.Product != "chromium" {
			return fmt.Errorf("product must be firefox or chromium, got %q", b.Product)
		}
	default:
		return fmt.Errorf("unsupported engine %q", b.Engine)
	}
	return nil
}

// Validate checks the login flow description.
func (f *FlowConfig) Validate() error {
	if f.EntryURL == "" || f.IdentitySelector == "" {
		return fmt.Errorf("entry_url and identity_selector are required")
	}
	if len(f.SecretSelectors) == 0 {
		return fmt.Errorf("secret_selectors must list at least one selector")
	}
	if _, err := regexp.Compile(f.LandingURLPattern); err != nil || f.LandingURLPattern == "" {
		return fmt.Errorf("landing_url_pattern must be a valid regular expression")
	}
	return nil
}

// Validate checks the backoff policy.
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if len(r.Backoff) == 0 {
		return fmt.Errorf("backoff must list at least one duration")
	}
	for i := 1; i < len(r.Backoff); i++ {
		if r.Backoff[i] < r.Backoff[i-1] {
			return fmt.Errorf("backoff must be non-decreasing")
		}
	}
	if r.Jitter < 0 {
		return fmt.Errorf("jitter must not be negative")
	}
	return nil
}
