package lifecycle

import "errors"

// Engine error taxonomy. Every error leaving the engine wraps one of these;
// raw storage errors never cross this boundary.
var (
	// ErrInvalidConfig rejects malformed creation or update parameters
	// before any state change.
	ErrInvalidConfig = errors.New("invalid share configuration")

	// ErrInvalidState rejects an operation the current status does not
	// permit (e.g. changing expiry on a terminal share).
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrAlreadyTerminal marks a revoke of a share that is already
	// expired or revoked. Benign: the desired end state is reached, the
	// record is returned alongside, and retries are safe.
	ErrAlreadyTerminal = errors.New("share already in terminal state")

	// ErrNotFound covers unknown ids and tokens. The public access path
	// surfaces it identically to every other denial.
	ErrNotFound = errors.New("share not found")

	// ErrBusy means the per-record serialization point could not be
	// entered within the configured bound. Retryable.
	ErrBusy = errors.New("share record busy, retry")

	// ErrStorage wraps persistence failures. No state is considered
	// changed unless the store confirmed commit.
	ErrStorage = errors.New("share storage failure")
)
