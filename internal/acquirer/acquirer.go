// internal/acquirer/acquirer.go
package acquirer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/browser"
	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/credential"
	"github.com/xkilldash9x/cookiebot/internal/faults"
)

// Step names one stage of the login sequence. It appears in failures, log
// lines, and snapshot file names.
type Step string

const (
	StepLaunch         Step = "launch"
	StepNavigate       Step = "navigate"
	StepOpenLogin      Step = "open_login"
	StepIdentity       Step = "enter_identity"
	StepDisambiguation Step = "disambiguate"
	StepWaitSecret     Step = "wait_secret"
	StepSecret         Step = "enter_secret"
	StepWaitLanding    Step = "wait_landing"
	StepWarmup         Step = "warmup"
	StepReadCookies    Step = "read_cookies"
)

// StepOutcome is the result of an optional step the site may or may not
// present.
type StepOutcome int

const (
	StepNotOffered StepOutcome = iota
	StepSucceeded
	StepFailed
)

func (o StepOutcome) String() string {
	switch o {
	case StepNotOffered:
		return "not_offered"
	case StepSucceeded:
		return "succeeded"
	case StepFailed:
		return "failed"
	default:
		return fmt.Sprintf("StepOutcome(%d)", int(o))
	}
}

// Failure describes an attempt that ended without a credential pair.
// SnapshotPath is empty when no snapshot could be taken.
type Failure struct {
	Step         Step
	SnapshotPath string
	Err          error
}

func (f *Failure) Error() string {
	if f.SnapshotPath != "" {
		return fmt.Sprintf("login failed at %s (snapshot %s): %v", f.Step, f.SnapshotPath, f.Err)
	}
	return fmt.Sprintf("login failed at %s: %v", f.Step, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Acquirer performs exactly one login attempt per call. It never retries;
// that is the retry controller's job.
type Acquirer struct {
	driver  browser.Driver
	flow    config.FlowConfig
	creds   config.CredentialsConfig
	diag    config.DiagnosticsConfig
	landing *regexp.Regexp
	logger  *zap.Logger
	now     func() time.Time
}

// New builds an Acquirer. The landing pattern is compiled here so a bad
// pattern is a configuration error rather than a failed attempt.
func New(driver browser.Driver, cfg *config.Config, logger *zap.Logger) (*Acquirer, error) {
	landing, err := regexp.Compile(cfg.Flow.LandingURLPattern)
	if err != nil {
		return nil, faults.New(faults.Configuration, "compile landing_url_pattern", err)
	}
	return &Acquirer{
		driver:  driver,
		flow:    cfg.Flow,
		creds:   cfg.Credentials,
		diag:    cfg.Diagnostics,
		landing: landing,
		logger:  logger.Named("acquirer"),
		now:     time.Now,
	}, nil
}

// Acquire drives a fresh browser through the login flow and returns both
// session cookies, or a *Failure. The browser is released on every path.
func (a *Acquirer) Acquire(ctx context.Context) (credential.Pair, error) {
	logger := a.logger.With(zap.String("attempt_id", uuid.NewString()))
	logger.Info("Starting login attempt.")

	session, err := a.driver.NewSession(ctx)
	if err != nil {
		return credential.Pair{}, &Failure{Step: StepLaunch, Err: asInteraction(err)}
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close browser session.", zap.Error(err))
		}
	}()

	r := &attempt{Acquirer: a, session: session, logger: logger}
	pair, step, err := r.login(ctx)
	if err != nil {
		f := &Failure{Step: step, Err: asInteraction(err)}
		f.SnapshotPath = r.snapshot(ctx, string(step)+"_fail")
		logger.Warn("Login attempt failed.",
			zap.String("step", string(step)),
			zap.String("kind", string(faults.KindOf(f.Err))),
			zap.String("snapshot", f.SnapshotPath),
			zap.Error(f.Err),
		)
		return credential.Pair{}, f
	}

	logger.Info("Login attempt succeeded.", zap.Object("credential", pair))
	return pair, nil
}

// attempt is the state of one Acquire call.
type attempt struct {
	*Acquirer
	session browser.Session
	logger  *zap.Logger
}

// within runs fn under a per-step timeout derived from ctx.
func within(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(stepCtx)
}

func (r *attempt) login(ctx context.Context) (credential.Pair, Step, error) {
	t := r.flow.Timeouts

	r.logger.Debug("Opening entry page.", zap.String("url", r.flow.EntryURL))
	if err := within(ctx, t.Navigate, func(ctx context.Context) error {
		return r.session.Navigate(ctx, r.flow.EntryURL)
	}); err != nil {
		return credential.Pair{}, StepNavigate, err
	}

	if r.flow.LoginLinkSelector != "" {
		if err := within(ctx, t.LoginLink, func(ctx context.Context) error {
			return r.session.Click(ctx, r.flow.LoginLinkSelector)
		}); err != nil {
			return credential.Pair{}, StepOpenLogin, err
		}
	}

	if err := within(ctx, t.Identity, func(ctx context.Context) error {
		return r.fillAndSubmit(ctx, r.flow.IdentitySelector, r.creds.Identity)
	}); err != nil {
		return credential.Pair{}, StepIdentity, err
	}

	outcome, err := r.disambiguate(ctx)
	r.logger.Debug("Disambiguation step finished.", zap.Stringer("outcome", outcome))
	if outcome == StepFailed {
		return credential.Pair{}, StepDisambiguation, err
	}

	secretSelector, err := r.findSecretInput(ctx)
	if err != nil {
		return credential.Pair{}, StepWaitSecret, err
	}
	if err := within(ctx, t.Secret, func(ctx context.Context) error {
		if err := r.session.Fill(ctx, secretSelector, r.creds.Secret); err != nil {
			return err
		}
		if r.diag.CaptureProgress {
			r.snapshot(ctx, "after_secret_fill")
		}
		return r.session.Submit(ctx, secretSelector)
	}); err != nil {
		return credential.Pair{}, StepSecret, err
	}

	if err := within(ctx, t.Landing, func(ctx context.Context) error {
		return r.session.WaitURL(ctx, r.landing)
	}); err != nil {
		return credential.Pair{}, StepWaitLanding, err
	}

	// Some session cookies are only issued once the authenticated home page
	// has fully loaded.
	if r.flow.WarmupURL != "" {
		if err := within(ctx, t.Warmup, func(ctx context.Context) error {
			if err := r.session.Navigate(ctx, r.flow.WarmupURL); err != nil {
				return err
			}
			return r.session.WaitIdle(ctx)
		}); err != nil {
			return credential.Pair{}, StepWarmup, err
		}
		if r.diag.CaptureProgress {
			r.snapshot(ctx, "warmup")
		}
	}

	var jar map[string]string
	if err := within(ctx, t.Cookies, func(ctx context.Context) error {
		var err error
		jar, err = r.session.Cookies(ctx)
		return err
	}); err != nil {
		return credential.Pair{}, StepReadCookies, err
	}
	pair, err := extractPair(jar)
	if err != nil {
		return credential.Pair{}, StepReadCookies, err
	}
	return pair, "", nil
}

func (r *attempt) fillAndSubmit(ctx context.Context, selector, value string) error {
	if err := r.session.WaitVisible(ctx, selector); err != nil {
		return err
	}
	if err := r.session.Fill(ctx, selector, value); err != nil {
		return err
	}
	return r.session.Submit(ctx, selector)
}

// disambiguate handles the "confirm your username" prompt the site shows
// only sometimes. Not seeing it within the timeout is a normal outcome.
func (r *attempt) disambiguate(ctx context.Context) (StepOutcome, error) {
	if r.flow.DisambiguationSelector == "" {
		return StepNotOffered, nil
	}
	t := r.flow.Timeouts

	err := within(ctx, t.Disambiguation, func(ctx context.Context) error {
		return r.session.WaitVisible(ctx, r.flow.DisambiguationSelector)
	})
	switch {
	case err == nil:
	case faults.Is(err, faults.InteractionTimeout) && ctx.Err() == nil:
		return StepNotOffered, nil
	default:
		return StepFailed, err
	}

	value := r.creds.Handle
	if value == "" {
		value = r.creds.Identity
	}
	if err := within(ctx, t.Disambiguation, func(ctx context.Context) error {
		if err := r.session.Fill(ctx, r.flow.DisambiguationSelector, value); err != nil {
			return err
		}
		return r.session.Submit(ctx, r.flow.DisambiguationSelector)
	}); err != nil {
		return StepFailed, err
	}
	return StepSucceeded, nil
}

// findSecretInput returns the first secret selector that becomes visible.
// Each candidate gets the full secret timeout.
func (r *attempt) findSecretInput(ctx context.Context) (string, error) {
	var lastErr error
	for _, sel := range r.flow.SecretSelectors {
		err := within(ctx, r.flow.Timeouts.Secret, func(ctx context.Context) error {
			return r.session.WaitVisible(ctx, sel)
		})
		if err == nil {
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("no secret input became visible: %w", lastErr)
}

// extractPair pulls both session cookies out of the jar. Either both are
// present or the attempt fails.
func extractPair(jar map[string]string) (credential.Pair, error) {
	pair := credential.Pair{
		Token:          jar[credential.TokenCookie],
		SecondaryToken: jar[credential.SecondaryCookie],
	}
	if pair.Token == "" {
		return credential.Pair{}, faults.Newf(faults.UnexpectedInteraction, "read cookies", "cookie %q missing after login", credential.TokenCookie)
	}
	if pair.SecondaryToken == "" {
		return credential.Pair{}, faults.Newf(faults.UnexpectedInteraction, "read cookies", "cookie %q missing after login", credential.SecondaryCookie)
	}
	return pair, nil
}

// snapshot writes a full-page PNG to the diagnostics directory and returns
// its path, or "" when it could not be taken. It runs on a detached context
// so a step that timed out can still be photographed.
func (r *attempt) snapshot(ctx context.Context, tag string) string {
	snapCtx, cancel := context.WithTimeout(browser.Detach(ctx), r.flow.Timeouts.Snapshot)
	defer cancel()

	png, err := r.session.Screenshot(snapCtx)
	if err != nil {
		r.logger.Warn("Could not capture diagnostic snapshot.", zap.String("tag", tag), zap.Error(err))
		return ""
	}
	if err := os.MkdirAll(r.diag.Dir, 0o755); err != nil {
		r.logger.Warn("Could not create diagnostics directory.", zap.String("dir", r.diag.Dir), zap.Error(err))
		return ""
	}
	path := filepath.Join(r.diag.Dir, fmt.Sprintf("cookiebot_%s_%d.png", tag, r.now().Unix()))
	if err := os.WriteFile(path, png, 0o600); err != nil {
		r.logger.Warn("Could not write diagnostic snapshot.", zap.String("path", path), zap.Error(err))
		return ""
	}
	r.logger.Info("Diagnostic snapshot saved.", zap.String("path", path))
	return path
}

// asInteraction guarantees the error carries one of the two acquisition
// kinds.
func asInteraction(err error) error {
	switch faults.KindOf(err) {
	case faults.InteractionTimeout, faults.UnexpectedInteraction:
		return err
	default:
		return faults.New(faults.UnexpectedInteraction, "login", err)
	}
}
