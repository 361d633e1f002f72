package domain

import "errors"

var (
	// ErrOracleUnavailable is returned when an oracle call fails (network, timeout, non-2xx)
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrOracleResponseMalformed is returned when an oracle response cannot be decoded
	ErrOracleResponseMalformed = errors.New("oracle response malformed")

	// ErrInvalidSelection is returned when a pending id is unknown or an option index is out of range
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrPendingSelectionsRemain is returned when finalizing a session that still has pending choices
	ErrPendingSelectionsRemain = errors.New("pending selections remain")

	// ErrSessionNotFound is returned when a session id is unknown or expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionFinalized is returned when mutating a session that is already finalizing or closed
	ErrSessionFinalized = errors.New("session already finalized")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCatalogUnavailable is returned when the product catalog cannot be read
	ErrCatalogUnavailable = errors.New("product catalog unavailable")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)
