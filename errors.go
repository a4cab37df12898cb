package redauth

import (
	"errors"

	"github.com/redforge/redauth/store"
	"github.com/redforge/redauth/token"
)

var (
	// ErrServiceClosed is an exported constant or variable used by the session service.
	ErrServiceClosed = errors.New("service closed")
	// ErrInvalidConfig is an exported constant or variable used by the session service.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidPhone is an exported constant or variable used by the session service.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrNoCredentials is an exported constant or variable used by the session service.
	ErrNoCredentials = errors.New("no stored credentials")
	// ErrNotLoggedIn is an exported constant or variable used by the session service.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrLoginCancelled is an exported constant or variable used by the session service.
	ErrLoginCancelled = errors.New("login cancelled by user")
	// ErrLoginTimeout is an exported constant or variable used by the session service.
	ErrLoginTimeout = errors.New("login timed out")
	// ErrSurfaceUnavailable is an exported constant or variable used by the session service.
	ErrSurfaceUnavailable = errors.New("no login surface configured")

	// ErrAccountNotFound re-exports the store sentinel so callers need only
	// this package for errors.Is checks.
	ErrAccountNotFound = store.ErrNotFound
	// ErrNoActiveAccount re-exports the store sentinel.
	ErrNoActiveAccount = store.ErrNoActiveAccount
	// ErrTokenExpired re-exports the token sentinel.
	ErrTokenExpired = token.ErrTokenExpired
	// ErrMissingSessionField re-exports the token sentinel.
	ErrMissingSessionField = token.ErrMissingSessionField
)
