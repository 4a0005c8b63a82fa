package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// Mode selection values, matching the security.mode config field.
const (
	ModeSecret = "secret"
	ModeJWT    = "jwt"
	ModeNone   = "none"
)

// secretHeader is the dedicated credential header for device agents that
// cannot easily set Authorization.
const secretHeader = "X-Presence-Secret"

// Authenticator decides whether an incoming request may mutate device state.
type Authenticator interface {
	// Authenticate returns nil if the request carries a valid credential,
	// ErrUnauthorized (possibly wrapped) otherwise.
	Authenticate(r *http.Request) error
}

// New constructs the Authenticator selected by mode.
//
// Parameters:
//   - mode: ModeSecret, ModeJWT, or ModeNone
//   - secret: shared secret (secret mode) or HS256 signing key (jwt mode)
//
// Returns:
//   - Authenticator: ready for use
//   - error: ErrUnknownMode for unrecognised modes
func New(mode, secret string) (Authenticator, error) {
	switch mode {
	case ModeSecret:
		return &secretAuthenticator{secret: []byte(secret)}, nil
	case ModeJWT:
		return &jwtAuthenticator{secret: secret}, nil
	case ModeNone:
		return allowAll{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// credential extracts the presented credential from a request, preferring
// the dedicated header over the Authorization bearer scheme.
func credential(r *http.Request) string {
	if v := r.Header.Get(secretHeader); v != "" {
		return v
	}
	authz := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return token
	}
	return ""
}

// secretAuthenticator compares a shared secret in constant time.
type secretAuthenticator struct {
	secret []byte
}

func (a *secretAuthenticator) Authenticate(r *http.Request) error {
	presented := credential(r)
	if presented == "" {
		return fmt.Errorf("%w: no credential presented", ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare([]byte(presented), a.secret) != 1 {
		return fmt.Errorf("%w: secret mismatch", ErrUnauthorized)
	}
	return nil
}

// jwtAuthenticator validates HS256 bearer tokens.
type jwtAuthenticator struct {
	secret string
}

func (a *jwtAuthenticator) Authenticate(r *http.Request) error {
	presented := credential(r)
	if presented == "" {
		return fmt.Errorf("%w: no credential presented", ErrUnauthorized)
	}
	if _, err := ParseToken(presented, a.secret); err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return nil
}

// allowAll passes every request. Used when security.mode is "none".
type allowAll struct{}

func (allowAll) Authenticate(*http.Request) error { return nil }
