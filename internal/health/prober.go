// internal/health/prober.go
package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cookiebot/internal/config"
	"github.com/xkilldash9x/cookiebot/internal/credential"
	"github.com/xkilldash9x/cookiebot/internal/faults"
)

// State is the outcome of a single probe.
type State int

const (
	Healthy State = iota
	Unhealthy
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// drainLimit bounds how much of a response body is read before closing it,
// so keep-alive connections can be reused without trusting the server.
const drainLimit = 64 << 10

// Prober issues one bounded-time read request against the dependent service
// using a credential pair.
type Prober struct {
	tmpl    *template.Template
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber parses the URL template. Templates reference .Token and
// .SecondaryToken; anything else is a configuration error at render time.
func NewProber(cfg config.HealthConfig, logger *zap.Logger) (*Prober, error) {
	tmpl, err := template.New("health_url").Option("missingkey=error").Parse(cfg.URLTemplate)
	if err != nil {
		return nil, faults.New(faults.Configuration, "parse health.url_template", err)
	}
	return &Prober{
		tmpl: tmpl,
		// The per-probe context carries the deadline for both the request
		// and the body drain.
		client:  &http.Client{},
		timeout: cfg.Timeout,
		logger:  logger.Named("prober"),
	}, nil
}

// URL renders the probe URL for pair with every value query-escaped.
func (p *Prober) URL(pair credential.Pair) (string, error) {
	var buf bytes.Buffer
	data := struct{ Token, SecondaryToken string }{
		Token:          url.QueryEscape(pair.Token),
		SecondaryToken: url.QueryEscape(pair.SecondaryToken),
	}
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", faults.New(faults.Configuration, "render health url", err)
	}
	return buf.String(), nil
}

// Probe reports Healthy only for a 200 response. Any other status, a
// transport failure, or the timeout yields Unhealthy with an error saying
// why. Transport failures carry faults.Network.
func (p *Prober) Probe(ctx context.Context, pair credential.Pair) (State, error) {
	target, err := p.URL(pair)
	if err != nil {
		return Unhealthy, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Unhealthy, faults.New(faults.Configuration, "build health request", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// *url.Error echoes the full URL, which carries the credential.
		return Unhealthy, faults.New(faults.Network, "health probe "+req.URL.Host, unwrapURLError(err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	if resp.StatusCode != http.StatusOK {
		return Unhealthy, fmt.Errorf("health endpoint %s returned %s", req.URL.Host, resp.Status)
	}
	return Healthy, nil
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
