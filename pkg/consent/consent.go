// Package consent derives a ConsentStatus from a collapse event's consent
// token. The token itself never leaves this package; only the derived
// status and reason are carried forward.
package consent

import (
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tequmsa/awareness/pkg/contracts"
)

// Mode selects how tokens are checked.
type Mode string

const (
	// ModePattern validates tokens against a configured regular expression.
	ModePattern Mode = "pattern"
	// ModeJWT requires tokens to be well-formed JWTs with subject and
	// expiry claims.
	ModeJWT Mode = "jwt"
)

// DefaultTokenPattern accepts opaque tokens of at least 16 url-safe chars.
const DefaultTokenPattern = `^[A-Za-z0-9_\-\.]{16,}$`

// Checker evaluates consent tokens deterministically.
type Checker struct {
	mode    Mode
	pattern *regexp.Regexp
	secret  []byte
	now     func() time.Time
}

// NewPatternChecker builds a Checker that matches tokens against pattern.
func NewPatternChecker(pattern string) (*Checker, error) {
	if pattern == "" {
		pattern = DefaultTokenPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("consent: invalid token pattern: %w", err)
	}
	return &Checker{mode: ModePattern, pattern: re, now: time.Now}, nil
}

// NewJWTChecker builds a Checker that requires JWT-format tokens. If secret
// is non-empty the signature is verified (HMAC); otherwise only structure
// and expiry are checked.
func NewJWTChecker(secret []byte) *Checker {
	return &Checker{mode: ModeJWT, secret: secret, now: time.Now}
}

// WithClock overrides the clock for testing.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}

// Check derives the consent outcome for a token. A missing token is not an
// error; it maps to ConsentMissing. A present but malformed token maps to
// ConsentBlocked with a reason.
func (c *Checker) Check(token string) contracts.Consent {
	if token == "" {
		return contracts.Consent{Status: contracts.ConsentMissing}
	}

	switch c.mode {
	case ModeJWT:
		return c.checkJWT(token)
	default:
		if !c.pattern.MatchString(token) {
			return contracts.Consent{
				Status: contracts.ConsentBlocked,
				Reason: "consent token does not match configured pattern",
			}
		}
		return contracts.Consent{Status: contracts.ConsentValid}
	}
}

func (c *Checker) checkJWT(token string) contracts.Consent {
	parser := jwt.NewParser(jwt.WithTimeFunc(c.now))

	var claims jwt.RegisteredClaims
	var err error
	if len(c.secret) > 0 {
		_, err = parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return c.secret, nil
		})
	} else {
		_, _, err = parser.ParseUnverified(token, &claims)
	}
	if err != nil {
		return contracts.Consent{
			Status: contracts.ConsentBlocked,
			Reason: fmt.Sprintf("consent token rejected: %v", err),
		}
	}

	if claims.Subject == "" {
		return contracts.Consent{
			Status: contracts.ConsentBlocked,
			Reason: "consent token missing subject",
		}
	}
	if claims.ExpiresAt == nil {
		return contracts.Consent{
			Status: contracts.ConsentBlocked,
			Reason: "consent token missing expiry",
		}
	}
	if claims.ExpiresAt.Before(c.now()) {
		return contracts.Consent{
			Status: contracts.ConsentBlocked,
			Reason: "consent token expired",
		}
	}
	return contracts.Consent{Status: contracts.ConsentValid}
}
