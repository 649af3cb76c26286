package moodo

import "errors"

var (
	// ErrAuth marks failures that require a full re-login: rejected
	// credentials or an expired session token. Never retried in place.
	ErrAuth = errors.New("authentication failed")

	// ErrConnection marks network, timeout and non-auth HTTP failures.
	// Retryable by the refresh scheduler or an explicit forced refresh.
	ErrConnection = errors.New("connection failed")
)
