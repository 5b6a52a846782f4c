package tempus

import "errors"

// Sentinel kinds for a single lookup attempt.
var (
	// ErrTransient covers failures worth another attempt.
	ErrTransient = errors.New("transient lookup failure")
	// ErrRateLimited is a transient rejection (HTTP 429).
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformed is a transient unreadable response.
	ErrMalformed = errors.New("malformed response")
	// ErrNoRecord means the player has no time on the map.
	ErrNoRecord = errors.New("no personal record")
	// ErrRejected is a client error that retrying cannot fix.
	ErrRejected = errors.New("request rejected")
)

// Attempt result labels used for metrics and logs.
const (
	resultSuccess        = "success"
	resultNoRecord       = "no_record"
	resultRejected       = "rejected"
	resultRateLimited    = "rate_limited"
	resultServerError    = "server_error"
	resultTransportError = "transport_error"
	resultMalformed      = "malformed"
)

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, ErrNoRecord):
		return resultNoRecord
	case errors.Is(err, ErrRejected):
		return resultRejected
	case errors.Is(err, ErrRateLimited):
		return resultRateLimited
	case errors.Is(err, ErrMalformed):
		return resultMalformed
	case errors.Is(err, errServerStatus):
		return resultServerError
	default:
		return resultTransportError
	}
}

var (
	errServerStatus  = errors.New("server error")
	errNoReservation = errors.New("pacer: limiter refused reservation")
)
