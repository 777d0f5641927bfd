package provider

import (
	"context"
	"errors"
	"net"
)

// Error taxonomy. Provider clients translate native error shapes into these
// sentinels (wrapped with %w) so the orchestrator never branches on
// provider-specific errors.
var (
	// ErrAuth means the credential is invalid, expired, or revoked. Not
	// retried within a run; surfaces as a re-authentication requirement.
	ErrAuth = errors.New("provider: credential invalid or expired")

	// ErrRateLimited means the provider throttled the call. Retryable with
	// backoff, bounded attempts.
	ErrRateLimited = errors.New("provider: rate limited")

	// ErrTransient covers network failures and provider 5xx responses.
	ErrTransient = errors.New("provider: transient failure")

	// ErrCursorExpired means the stored sync position is no longer usable
	// and discovery must fall back to a bounded rescan.
	ErrCursorExpired = errors.New("provider: sync cursor expired")

	// ErrNotSupported marks a capability a provider does not offer.
	ErrNotSupported = errors.New("provider: operation not supported")
)

// IsRetryable reports whether an error should be retried with backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// ClassifyNetworkError maps transport-level failures onto the taxonomy.
// Returns nil for a nil error and the original error when it is not a
// network failure.
func ClassifyNetworkError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Join(ErrTransient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTransient, err)
	}
	return err
}
