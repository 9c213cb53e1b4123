package models

import (
	"github.com/google/uuid"
)

// BulkRevokeResult partitions a bulk revoke batch for accurate reporting:
// records actually transitioned, records that were already terminal, and
// identifiers that matched nothing owned by the caller.
type BulkRevokeResult struct {
	RevokedIDs         []uuid.UUID `json:"revoked_ids"`
	AlreadyTerminalIDs []uuid.UUID `json:"already_terminal_ids"`
	NotFoundIDs        []uuid.UUID `json:"not_found_ids"`
}

// AccessResult is the outcome of an anonymous access attempt against a
// share token.
type AccessResult struct {
	Granted bool         `json:"granted"`
	Record  *ShareRecord `json:"record,omitempty"`
}
