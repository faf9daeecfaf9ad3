package bridge

import "errors"

var (
	// ErrIdentityInUse is returned when a live worker already holds the
	// requested identity on the same page.
	ErrIdentityInUse = errors.New("worker identity already in use on this page")
	// ErrInvalidIdentity is returned for an identity not shaped wkr_<ULID>.
	ErrInvalidIdentity = errors.New("invalid worker identity")
	// ErrResolve wraps failures to turn a worker source into a script URL.
	ErrResolve = errors.New("failed to resolve worker source")
	// ErrNotReady is reported by Err while initialization is in flight.
	ErrNotReady = errors.New("worker not initialized")
	// ErrNilPage is returned when a worker is constructed without a page.
	ErrNilPage = errors.New("page is required")
	// ErrEmptyScriptURL is returned when a worker is constructed without a
	// script URL.
	ErrEmptyScriptURL = errors.New("script URL is required")
)
