package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")

	// Data errors suppress detection for a pair; they are never trading faults.
	ErrMissingQuote = errors.New("missing quote")
	ErrStaleQuote   = errors.New("stale quote")
	ErrUnmatched    = errors.New("no confident match")
	ErrAmbiguous    = errors.New("ambiguous match")

	// Venue errors count toward the breaker's consecutive-error limit.
	ErrOrderRejected = errors.New("order rejected")
	ErrVenueTimeout  = errors.New("venue timeout")
	ErrMalformed     = errors.New("malformed venue response")

	// Risk vetoes and execution outcomes.
	ErrBreakerOpen   = errors.New("circuit breaker open")
	ErrLimitExceeded = errors.New("risk limit exceeded")
	ErrPairInFlight  = errors.New("pair execution in flight")
	ErrOneSidedFill  = errors.New("one-sided fill")
	ErrNoVenueClient = errors.New("no client for venue")
	ErrExpired       = errors.New("opportunity expired")
)
