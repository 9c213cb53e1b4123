// Package lifecycle is the single authority for share state transitions.
// Every mutation of a ShareRecord, whether caller-driven, access-driven or
// sweeper-driven, passes through the engine and executes under the record's
// row lock.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"healthshare/internal/db"
	"healthshare/internal/models"
	"healthshare/internal/notify"
	"healthshare/internal/token"
)

// Engine enforces the share state machine on top of the store.
type Engine struct {
	db          *db.DB
	notifier    notify.Publisher
	lockTimeout time.Duration
}

// New creates a lifecycle engine.
func New(database *db.DB, notifier notify.Publisher, lockTimeout time.Duration) *Engine {
	return &Engine{db: database, notifier: notifier, lockTimeout: lockTimeout}
}

// CreateParams are the caller-supplied fields for a new share.
type CreateParams struct {
	OwnerID               uuid.UUID
	SubjectID             string
	Kind                  string
	Recipients            []models.Recipient
	ExpiresAt             *time.Time
	AutoRevokeAfterAccess *int
}

// Create mints a token and inserts a new share. Proof shares start pending
// until the generation service reports the subject ready; file bundles are
// immediately active.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*models.ShareRecord, error) {
	if err := validateParams(p.Kind, p.ExpiresAt, p.AutoRevokeAfterAccess, p.Recipients); err != nil {
		return nil, err
	}

	tok, err := token.Mint()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	now := time.Now()
	share := &models.ShareRecord{
		OwnerID:               p.OwnerID,
		SubjectID:             p.SubjectID,
		Kind:                  p.Kind,
		Token:                 tok,
		ExpiresAt:             p.ExpiresAt,
		AutoRevokeAfterAccess: p.AutoRevokeAfterAccess,
		Recipients:            p.Recipients,
	}
	if p.Kind == models.KindFileBundle {
		share.ActivatedAt = &now
	}
	share.Status = share.DeriveStatus(now)

	if err := e.db.CreateShare(ctx, share); err != nil {
		// A token collision is not retried blindly: it signals a broken
		// entropy source and surfaces as a hard failure.
		return nil, e.mapErr(err)
	}

	e.notifier.Publish(notify.Event{
		RecordID: share.ID,
		OwnerID:  share.OwnerID,
		Type:     notify.EventCreated,
		Status:   share.Status,
		At:       now,
	})
	return share, nil
}

// Activate transitions all pending shares for a subject to active, driven by
// the generation service's readiness callback. Duplicate callbacks match no
// rows and are no-ops.
func (e *Engine) Activate(ctx context.Context, subjectID string) error {
	_, err := e.db.ActivateBySubject(ctx, subjectID, time.Now())
	return e.mapErr(err)
}

// Revoke transitions a share to revoked. A share already terminal is
// returned unchanged together with ErrAlreadyTerminal; revokedAt is never
// overwritten.
func (e *Engine) Revoke(ctx context.Context, id uuid.UUID, reason string) (*models.ShareRecord, error) {
	var share *models.ShareRecord
	var terminal bool
	var events []notify.Event

	err := e.withShareTx(ctx, func(tx pgx.Tx) error {
		var err error
		share, err = e.db.LockShare(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now()
		status := share.DeriveStatus(now)
		if models.IsTerminal(status) {
			// Converge the stored status if the sweep hasn't caught up.
			if share.Status != status {
				share.Status = status
				if err := e.db.UpdateShareState(ctx, tx, share); err != nil {
					return err
				}
			}
			terminal = true
			return nil
		}

		share.RevokedAt = &now
		share.RevokedReason = &reason
		share.Status = share.DeriveStatus(now)
		if err := e.db.UpdateShareState(ctx, tx, share); err != nil {
			return err
		}
		events = append(events, notify.Event{
			RecordID: share.ID,
			OwnerID:  share.OwnerID,
			Type:     notify.EventRevoked,
			Status:   share.Status,
			At:       now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(events)
	if terminal {
		return share, ErrAlreadyTerminal
	}
	return share, nil
}

// BulkRevoke revokes a set of shares in one transaction, so observers see
// either none or all of the batch applied. Unknown ids are reported, never
// fatal; ids are locked in sorted order to keep concurrent batches from
// deadlocking each other.
func (e *Engine) BulkRevoke(ctx context.Context, ids []uuid.UUID, reason string) (*models.BulkRevokeResult, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := &models.BulkRevokeResult{
		RevokedIDs:         []uuid.UUID{},
		AlreadyTerminalIDs: []uuid.UUID{},
		NotFoundIDs:        []uuid.UUID{},
	}
	var events []notify.Event

	err := e.withShareTx(ctx, func(tx pgx.Tx) error {
		for _, id := range sorted {
			share, err := e.db.LockShare(ctx, tx, id)
			if errors.Is(err, db.ErrShareNotFound) {
				result.NotFoundIDs = append(result.NotFoundIDs, id)
				continue
			}
			if err != nil {
				return err
			}

			now := time.Now()
			if models.IsTerminal(share.DeriveStatus(now)) {
				result.AlreadyTerminalIDs = append(result.AlreadyTerminalIDs, id)
				continue
			}

			share.RevokedAt = &now
			share.RevokedReason = &reason
			share.Status = share.DeriveStatus(now)
			if err := e.db.UpdateShareState(ctx, tx, share); err != nil {
				return err
			}
			result.RevokedIDs = append(result.RevokedIDs, id)
			events = append(events, notify.Event{
				RecordID: share.ID,
				OwnerID:  share.OwnerID,
				Type:     notify.EventRevoked,
				Status:   share.Status,
				At:       now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(events)
	return result, nil
}

// SetExpiry updates the expiry and access-limit knobs. Allowed only while
// the share is pending or active. Lowering the access limit to at or below
// the current count revokes within the same call, so no record is left
// silently overdue.
func (e *Engine) SetExpiry(ctx context.Context, id uuid.UUID, expiresAt *time.Time, autoRevoke *int) (*models.ShareRecord, error) {
	if autoRevoke != nil && *autoRevoke <= 0 {
		return nil, fmt.Errorf("%w: auto_revoke_after_access must be positive", ErrInvalidConfig)
	}

	var share *models.ShareRecord
	var events []notify.Event

	err := e.withShareTx(ctx, func(tx pgx.Tx) error {
		var err error
		share, err = e.db.LockShare(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now()
		status := share.DeriveStatus(now)
		if status != models.StatusPending && status != models.StatusActive {
			return fmt.Errorf("%w: share is %s", ErrInvalidState, status)
		}

		share.ExpiresAt = expiresAt
		share.AutoRevokeAfterAccess = autoRevoke
		if autoRevoke != nil && share.AccessCount >= int64(*autoRevoke) {
			reason := models.ReasonAutoRevoke
			share.RevokedAt = &now
			share.RevokedReason = &reason
		}

		share.Status = share.DeriveStatus(now)
		if err := e.db.UpdateShareState(ctx, tx, share); err != nil {
			return err
		}
		if share.Status == models.StatusRevoked {
			events = append(events, notify.Event{
				RecordID: share.ID,
				OwnerID:  share.OwnerID,
				Type:     notify.EventRevoked,
				Status:   share.Status,
				At:       now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(events)
	return share, nil
}

// Validate looks a share up by token without touching the access counter.
// Unknown and malformed tokens are indistinguishable.
func (e *Engine) Validate(ctx context.Context, tok string) (*models.ShareRecord, error) {
	if !token.WellFormed(tok) {
		return nil, ErrNotFound
	}
	share, err := e.db.GetShareByToken(ctx, tok)
	if err != nil {
		return nil, e.mapErr(err)
	}
	return share, nil
}

// RecordAccess validates a token and, if the share is active, counts the
// access. The increment, the limit comparison and any auto-revoke commit in
// the same transaction, so a share with one remaining access admits exactly
// one of two concurrent callers.
func (e *Engine) RecordAccess(ctx context.Context, tok string) (*models.AccessResult, error) {
	if !token.WellFormed(tok) {
		return nil, ErrNotFound
	}

	var result *models.AccessResult
	var events []notify.Event

	err := e.withShareTx(ctx, func(tx pgx.Tx) error {
		share, err := e.db.LockShareByToken(ctx, tx, tok)
		if err != nil {
			return err
		}

		now := time.Now()
		status := share.DeriveStatus(now)

		if status != models.StatusActive {
			// Denied accesses are not counted. If time ran out since the
			// last sweep the stored status converges here rather than
			// waiting for the sweeper.
			if share.Status != status {
				share.Status = status
				if err := e.db.UpdateShareState(ctx, tx, share); err != nil {
					return err
				}
				if status == models.StatusExpired {
					events = append(events, notify.Event{
						RecordID: share.ID,
						OwnerID:  share.OwnerID,
						Type:     notify.EventExpired,
						Status:   status,
						At:       now,
					})
				}
			}
			if err := e.db.RecordAccessOutcome(ctx, tx, share.ID, status); err != nil {
				return err
			}
			events = append(events, notify.Event{
				RecordID: share.ID,
				OwnerID:  share.OwnerID,
				Type:     notify.EventAccessDenied,
				Status:   status,
				At:       now,
			})
			result = &models.AccessResult{Granted: false, Record: share}
			return nil
		}

		share.AccessCount++
		if share.AutoRevokeAfterAccess != nil && share.AccessCount >= int64(*share.AutoRevokeAfterAccess) {
			reason := models.ReasonAutoRevoke
			share.RevokedAt = &now
			share.RevokedReason = &reason
		}
		share.Status = share.DeriveStatus(now)
		if err := e.db.UpdateShareState(ctx, tx, share); err != nil {
			return err
		}
		if err := e.db.RecordAccessOutcome(ctx, tx, share.ID, "granted"); err != nil {
			return err
		}

		events = append(events, notify.Event{
			RecordID: share.ID,
			OwnerID:  share.OwnerID,
			Type:     notify.EventAccessGranted,
			Status:   share.Status,
			At:       now,
		})
		if share.Status == models.StatusRevoked {
			events = append(events, notify.Event{
				RecordID: share.ID,
				OwnerID:  share.OwnerID,
				Type:     notify.EventRevoked,
				Status:   share.Status,
				At:       now,
			})
		}
		result = &models.AccessResult{Granted: true, Record: share}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(events)
	return result, nil
}

// ExpireDue transitions one active share past its deadline to expired.
// Idempotent: a share already expired (or revoked meanwhile) is left alone.
func (e *Engine) ExpireDue(ctx context.Context, id uuid.UUID) error {
	var events []notify.Event

	err := e.withShareTx(ctx, func(tx pgx.Tx) error {
		share, err := e.db.LockShare(ctx, tx, id)
		if err != nil {
			return err
		}

		now := time.Now()
		status := share.DeriveStatus(now)
		if share.Status == status {
			return nil
		}
		share.Status = status
		if err := e.db.UpdateShareState(ctx, tx, share); err != nil {
			return err
		}
		if status == models.StatusExpired {
			events = append(events, notify.Event{
				RecordID: share.ID,
				OwnerID:  share.OwnerID,
				Type:     notify.EventExpired,
				Status:   status,
				At:       now,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.publish(events)
	return nil
}

// withShareTx runs fn inside a transaction with the bounded lock wait and
// maps any failure into the engine's error taxonomy.
func (e *Engine) withShareTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := e.db.BeginShareTx(ctx, e.lockTimeout)
	if err != nil {
		return e.mapErr(err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return e.mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return e.mapErr(err)
	}
	return nil
}

// publish emits events only after the transaction that produced them has
// committed.
func (e *Engine) publish(events []notify.Event) {
	for _, ev := range events {
		e.notifier.Publish(ev)
	}
}

// mapErr folds store errors into the engine taxonomy.
func (e *Engine) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrBusy):
		return ErrBusy
	case errors.Is(err, db.ErrShareNotFound):
		return ErrNotFound
	case errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrAlreadyTerminal):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}

// validateParams rejects malformed creation parameters before any state
// change.
func validateParams(kind string, expiresAt *time.Time, autoRevoke *int, recipients []models.Recipient) error {
	switch kind {
	case models.KindProof, models.KindFileBundle:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, kind)
	}
	if autoRevoke != nil && *autoRevoke <= 0 {
		return fmt.Errorf("%w: auto_revoke_after_access must be positive", ErrInvalidConfig)
	}
	for _, r := range recipients {
		switch r.Kind {
		case models.RecipientEmail, models.RecipientPublicLink:
		default:
			return fmt.Errorf("%w: unknown recipient kind %q", ErrInvalidConfig, r.Kind)
		}
	}
	return nil
}
