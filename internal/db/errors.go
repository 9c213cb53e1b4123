package db

import "errors"

// Domain-level database error sentinels.
var (
	// ErrShareNotFound covers unknown ids and unknown tokens alike; the
	// public access path must not distinguish "never existed" from
	// "inaccessible".
	ErrShareNotFound = errors.New("share not found")

	// ErrTokenCollision means a freshly minted token already exists. With
	// 256-bit tokens this indicates a broken entropy source, so it is a
	// hard error rather than a retry.
	ErrTokenCollision = errors.New("share token collision")

	// ErrBusy means the per-record lock could not be acquired within the
	// configured bound. Callers may retry with backoff.
	ErrBusy = errors.New("share record busy")
)
