package platform

import (
	"errors"
	"fmt"
)

// Failure taxonomy for platform calls. Callers branch with errors.Is; no code
// anywhere inspects error strings. ErrUnauthorized means the credentials
// themselves are bad (401); ErrPermissionDenied means valid credentials on a
// tier that forbids the call (403).
var (
	ErrUnauthorized     = errors.New("platform: invalid credentials")
	ErrPermissionDenied = errors.New("platform: permission denied")
	ErrRateLimited      = errors.New("platform: rate limited")
	ErrNotFound         = errors.New("platform: not found")
	ErrTransient        = errors.New("platform: transient failure")
)

// APIError carries the HTTP detail of a failed platform call and unwraps to
// one of the sentinel errors above.
type APIError struct {
	Kind   error
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (http %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("%v (http %d): %s", e.Kind, e.Status, e.Detail)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// ClassifyStatus maps an HTTP status code to the failure taxonomy.
func ClassifyStatus(status int) error {
	switch {
	case status == 401:
		return ErrUnauthorized
	case status == 403:
		return ErrPermissionDenied
	case status == 429:
		return ErrRateLimited
	case status == 404:
		return ErrNotFound
	default:
		return ErrTransient
	}
}

func IsUnauthorized(err error) bool     { return errors.Is(err, ErrUnauthorized) }
func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }
func IsRateLimited(err error) bool      { return errors.Is(err, ErrRateLimited) }
func IsNotFound(err error) bool         { return errors.Is(err, ErrNotFound) }
func IsTransient(err error) bool        { return errors.Is(err, ErrTransient) }
