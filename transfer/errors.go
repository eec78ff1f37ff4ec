package transfer

import (
	"errors"
	"net/http"
)

// Rejection taxonomy. Handlers map these to HTTP statuses and expose only
// the category to the caller; request detail stays in the operator logs.
var (
	// ErrUnauthorized rejects a pubkey outside the authorized peer set.
	ErrUnauthorized = errors.New("peer not authorized")
	// ErrStaleRequest rejects a timestamp outside the replay window.
	ErrStaleRequest = errors.New("request timestamp outside replay window")
	// ErrReplayDetected rejects a (pubkey, timestamp, signature) triple
	// that was already accepted within the replay window.
	ErrReplayDetected = errors.New("request replay detected")
	// ErrInvalidSignature rejects a signature that does not verify against
	// the canonical request message.
	ErrInvalidSignature = errors.New("invalid request signature")
	// ErrSizeExceeded rejects an upload larger than the per-log limit.
	ErrSizeExceeded = errors.New("log exceeds maximum size")
	// ErrStorageFull rejects an upload that cannot fit even after eviction.
	ErrStorageFull = errors.New("storage full")
	// ErrQuotaExceeded rejects a download past the peer's daily bandwidth cap.
	ErrQuotaExceeded = errors.New("daily download quota exceeded")
	// ErrNotFound rejects a request for an unknown log id.
	ErrNotFound = errors.New("log not found")
)

// statusFor maps a rejection to its HTTP status. Unknown errors are
// internal failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrStaleRequest), errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrReplayDetected):
		return http.StatusConflict
	case errors.Is(err, ErrSizeExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrStorageFull):
		return http.StatusInsufficientStorage
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// reasonFor labels a rejection for the rejected-requests metric.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrStaleRequest):
		return "stale_request"
	case errors.Is(err, ErrReplayDetected):
		return "replay_detected"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrSizeExceeded):
		return "size_exceeded"
	case errors.Is(err, ErrStorageFull):
		return "storage_full"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
