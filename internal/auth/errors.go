package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("auth: not found")
	ErrAlreadyExists  = errors.New("auth: already exists")
	ErrInvalidInput   = errors.New("auth: invalid input")
	ErrForbidden      = errors.New("auth: forbidden")
	ErrAccessDenied   = errors.New("auth: access denied")
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrCycle          = errors.New("auth: entitlement cycle")
	ErrLoginThrottled = errors.New("auth: login throttled")
)

// AccessDeniedError is returned by Login on bad credentials and by Require when
// a token lacks an operation. Exactly one of Username or TokenID is set.
type AccessDeniedError struct {
	Username string
	TokenID  string
	Err      error
}

func (e *AccessDeniedError) Error() string {
	subject := "username " + e.Username
	if e.Username == "" {
		subject = "token " + e.TokenID
	}
	if e.Err != nil && !errors.Is(e.Err, ErrAccessDenied) {
		return fmt.Sprintf("%s for %s: %v", ErrAccessDenied, subject, e.Err)
	}
	return fmt.Sprintf("%s for %s", ErrAccessDenied, subject)
}

func (e *AccessDeniedError) Unwrap() []error {
	if e.Err == nil || errors.Is(e.Err, ErrAccessDenied) {
		return []error{ErrAccessDenied}
	}
	return []error{ErrAccessDenied, e.Err}
}
