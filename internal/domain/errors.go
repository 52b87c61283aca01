package domain

import "errors"

// Failure taxonomy for the execution core. Callers dispatch with errors.Is;
// gateway implementations wrap these with transport detail via %w.
var (
	// ErrDataUnavailable means the upstream market data response was empty,
	// malformed, or missing fields. The cycle is skipped, never retried inline.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrNetwork covers transport failures and 5xx responses.
	ErrNetwork = errors.New("network error")

	// ErrRateLimited covers 429/418 responses from the exchange.
	ErrRateLimited = errors.New("rate limited")

	// ErrOrderRejected is a deterministic application-level refusal.
	// Retrying would resubmit into the same rejection, or worse.
	ErrOrderRejected = errors.New("order rejected")

	// ErrInsufficientBalance aborts the whole attempt.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyFilled is the cancel race: the order filled before the cancel
	// landed. Callers treat it as success of the fill path.
	ErrAlreadyFilled = errors.New("order already filled")
)

// Retryable reports whether err is transient and safe to retry with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimited)
}
