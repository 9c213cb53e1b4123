package models

import (
	"time"

	"github.com/google/uuid"
)

// Share statuses. Stored for indexing, but always recomputed from the
// canonical fields via DeriveStatus at every transition.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusRevoked = "revoked"
)

// Share kinds.
const (
	KindProof      = "proof"
	KindFileBundle = "file_bundle"
)

// Recipient kinds.
const (
	RecipientEmail      = "email"
	RecipientPublicLink = "public_link"
)

// ReasonAutoRevoke is the revocation reason set when a share hits its
// access limit.
const ReasonAutoRevoke = "auto-revoke-after-access"

// ShareRecord is the lifecycle-tracked grant of access to a proof or file
// bundle via an opaque link.
type ShareRecord struct {
	ID                    uuid.UUID   `json:"id"`
	OwnerID               uuid.UUID   `json:"owner_id"`
	SubjectID             string      `json:"subject_id"`
	Kind                  string      `json:"kind"`
	Token                 string      `json:"token"`
	Status                string      `json:"status"`
	ActivatedAt           *time.Time  `json:"activated_at"`
	ExpiresAt             *time.Time  `json:"expires_at"`
	AutoRevokeAfterAccess *int        `json:"auto_revoke_after_access"`
	AccessCount           int64       `json:"access_count"`
	RevokedAt             *time.Time  `json:"revoked_at"`
	RevokedReason         *string     `json:"revoked_reason"`
	Recipients            []Recipient `json:"recipients"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// Recipient is a sharing target. Position preserves insertion order, which
// is the audit order.
type Recipient struct {
	Kind     string `json:"kind"`
	Target   string `json:"target"`
	Position int    `json:"position"`
}

// DeriveStatus computes the status implied by the canonical lifecycle
// fields at the given instant. Terminal conditions win over expiry, expiry
// over readiness.
func (s *ShareRecord) DeriveStatus(now time.Time) string {
	if s.RevokedAt != nil {
		return StatusRevoked
	}
	if s.AutoRevokeAfterAccess != nil && s.AccessCount >= int64(*s.AutoRevokeAfterAccess) {
		return StatusRevoked
	}
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return StatusExpired
	}
	if s.ActivatedAt == nil {
		return StatusPending
	}
	return StatusActive
}

// IsTerminal reports whether the status permits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusExpired || status == StatusRevoked
}

// ValidStatus reports whether the string names a known status.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusActive, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// ShareStats is the per-owner dashboard aggregation. Never persisted,
// always recomputed from the shares table.
type ShareStats struct {
	Active           int64 `json:"active"`
	Pending          int64 `json:"pending"`
	Expired          int64 `json:"expired"`
	Revoked          int64 `json:"revoked"`
	TotalAccessCount int64 `json:"total_access_count"`
}

// AccessEntry is one row of a share's access audit trail.
type AccessEntry struct {
	ShareID    uuid.UUID `json:"share_id"`
	Outcome    string    `json:"outcome"` // "granted" or a denial status
	OccurredAt time.Time `json:"occurred_at"`
}
