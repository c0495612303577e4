package ponder

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the session lifecycle and backend taxonomy.
// Callers should test with errors.Is; everything returned by the package
// wraps one of these where the taxonomy applies.
var (
	// ErrSessionNotFound is returned when a session id is unknown to the archive.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when pause/resume is requested against
	// a session whose current status does not accept that action.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrCapacityExceeded is returned by Start and Resume when the number of
	// thinking sessions has reached the configured ceiling. No session record
	// is created on a rejected start.
	ErrCapacityExceeded = errors.New("session capacity exceeded")

	// ErrWorkerActive is returned by Resume when the prior unit of work has
	// not yet confirmed termination. Resuming before then would create a
	// second writer for the session's records.
	ErrWorkerActive = errors.New("prior session worker has not stopped")

	// ErrManagerClosed is returned by Start and Resume after Close.
	ErrManagerClosed = errors.New("manager is closed")

	// ErrBackendTimeout marks a single generation call that exceeded its
	// per-call deadline. Recoverable within the loop.
	ErrBackendTimeout = errors.New("backend call timed out")

	// ErrBackendUnavailable marks a generation call that failed outright.
	// Recoverable until the consecutive-failure threshold is crossed.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// wrapBackendError maps a raw provider failure onto the package taxonomy so
// the loop can distinguish timeouts from hard failures with errors.Is.
func wrapBackendError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
	case errors.Is(err, ErrBackendTimeout), errors.Is(err, ErrBackendUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

// isBackendError reports whether err belongs to the recoverable backend
// taxonomy, as opposed to an archive or lifecycle failure.
func isBackendError(err error) bool {
	return errors.Is(err, ErrBackendTimeout) || errors.Is(err, ErrBackendUnavailable)
}
