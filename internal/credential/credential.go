// internal/credential/credential.go
package credential

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Cookie names of the two session values the acquirer harvests.
const (
	TokenCookie     = "auth_token"
	SecondaryCookie = "ct0"
)

// Pair is the two opaque session values that together authorize requests to
// the dependent service. A Pair is a value type; a new acquisition produces a
// new Pair rather than mutating an old one.
type Pair struct {
	Token          string
	SecondaryToken string
}

// Complete reports whether both values are populated.
func (p Pair) Complete() bool {
	return p.Token != "" && p.SecondaryToken != ""
}

// CookieHeader renders the pair the way the dependent service expects it in
// a Cookie header.
func (p Pair) CookieHeader() string {
	return fmt.Sprintf("%s=%s; %s=%s", TokenCookie, p.Token, SecondaryCookie, p.SecondaryToken)
}

// String never prints the raw values.
func (p Pair) String() string {
	return fmt.Sprintf("Pair{token:%s secondary:%s}", fingerprint(p.Token), fingerprint(p.SecondaryToken))
}

// MarshalLogObject lets the pair be logged with zap.Object without leaking it.
func (p Pair) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("token", fingerprint(p.Token))
	enc.AddString("secondary_token", fingerprint(p.SecondaryToken))
	return nil
}

// fingerprint keeps a short prefix plus the length, enough to tell two
// values apart in a log without making either one usable.
func fingerprint(v string) string {
	if v == "" {
		return "<empty>"
	}
	const keep = 4
	if len(v) <= keep*2 {
		return fmt.Sprintf("***(%d)", len(v))
	}
	return fmt.Sprintf("%s***(%d)", v[:keep], len(v))
}
