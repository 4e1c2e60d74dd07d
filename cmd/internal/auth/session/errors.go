package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned by SignIn for an unknown login or a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a token is malformed, badly signed, of the wrong kind,
	// expired (access), denylisted or superseded (refresh).
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a structurally valid refresh token is past its exp.
	ErrTokenExpired = errors.New("token expired")

	// ErrStoreUnavailable is returned when a revocation check cannot reach its store.
	// Checks fail closed: the request is rejected rather than trusted.
	ErrStoreUnavailable = errors.New("token store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// TokenError carries the internal reason a token was rejected.
// Reason is for logs only; callers surface a generic message.
type TokenError struct {
	Reason string
}

func (e TokenError) Error() string {
	if e.Reason == "" {
		return ErrInvalidToken.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidToken.Error(), e.Reason)
}

func (e TokenError) Unwrap() error { return ErrInvalidToken }

func invalidToken(reason string) error { return TokenError{Reason: reason} }

// Reason returns the rejection reason carried by err, or "" when none.
func Reason(err error) string {
	var te TokenError
	if errors.As(err, &te) {
		return te.Reason
	}
	return ""
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
