package db

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"healthshare/internal/models"
)

// shareColumns is the standard column list for share queries.
const shareColumns = `id, owner_id, subject_id, kind, token, status, activated_at,
	expires_at, auto_revoke_after_access, access_count, revoked_at, revoked_reason,
	created_at, updated_at`

// scanShare scans a row into a ShareRecord struct.
func scanShare(row pgx.Row) (*models.ShareRecord, error) {
	var s models.ShareRecord
	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.SubjectID,
		&s.Kind,
		&s.Token,
		&s.Status,
		&s.ActivatedAt,
		&s.ExpiresAt,
		&s.AutoRevokeAfterAccess,
		&s.AccessCount,
		&s.RevokedAt,
		&s.RevokedReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrShareNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// scanShares scans multiple rows into a slice of ShareRecords.
func scanShares(rows pgx.Rows) ([]models.ShareRecord, error) {
	defer rows.Close()

	var shares []models.ShareRecord
	for rows.Next() {
		var s models.ShareRecord
		if err := rows.Scan(
			&s.ID,
			&s.OwnerID,
			&s.SubjectID,
			&s.Kind,
			&s.Token,
			&s.Status,
			&s.ActivatedAt,
			&s.ExpiresAt,
			&s.AutoRevokeAfterAccess,
			&s.AccessCount,
			&s.RevokedAt,
			&s.RevokedReason,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}

	return shares, rows.Err()
}

// CreateShare inserts a share and its recipients in one transaction.
// The token must already be minted; a duplicate token is a hard error.
func (d *DB) CreateShare(ctx context.Context, share *models.ShareRecord) (err error) {
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	query := `
		INSERT INTO shares (owner_id, subject_id, kind, token, status, activated_at,
			expires_at, auto_revoke_after_access)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, access_count, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		share.OwnerID,
		share.SubjectID,
		share.Kind,
		share.Token,
		share.Status,
		share.ActivatedAt,
		share.ExpiresAt,
		share.AutoRevokeAfterAccess,
	).Scan(&share.ID, &share.AccessCount, &share.CreatedAt, &share.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenCollision
		}
		return err
	}

	insertRecipient := `
		INSERT INTO share_recipients (share_id, position, kind, target)
		VALUES ($1, $2, $3, $4)
	`
	for i := range share.Recipients {
		share.Recipients[i].Position = i
		if _, err = tx.Exec(ctx, insertRecipient,
			share.ID, i, share.Recipients[i].Kind, share.Recipients[i].Target,
		); err != nil {
			return err
		}
	}

	return nil
}

// BeginShareTx starts a transaction with the bounded per-record lock wait.
// Every state transition runs inside one of these.
func (d *DB) BeginShareTx(ctx context.Context, lockTimeout time.Duration) (pgx.Tx, error) {
	tx, err := d.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	// SET does not take bind parameters; the value is a formatted integer.
	ms := lockTimeout.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '`+strconv.FormatInt(ms, 10)+`ms'`); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

// LockShare loads a share by id under FOR UPDATE, serializing against other
// transitions on the same record.
func (d *DB) LockShare(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1 FOR UPDATE`
	share, err := scanShare(tx.QueryRow(ctx, query, id))
	if err != nil {
		if isLockTimeout(err) {
			return nil, ErrBusy
		}
		return nil, err
	}
	return share, nil
}

// LockShareByToken loads a share by token under FOR UPDATE.
func (d *DB) LockShareByToken(ctx context.Context, tx pgx.Tx, token string) (*models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE token = $1 FOR UPDATE`
	share, err := scanShare(tx.QueryRow(ctx, query, token))
	if err != nil {
		if isLockTimeout(err) {
			return nil, ErrBusy
		}
		return nil, err
	}
	return share, nil
}

// UpdateShareState writes the mutable lifecycle fields of a locked share.
func (d *DB) UpdateShareState(ctx context.Context, tx pgx.Tx, share *models.ShareRecord) error {
	query := `
		UPDATE shares
		SET status = $1, activated_at = $2, expires_at = $3, auto_revoke_after_access = $4,
			access_count = $5, revoked_at = $6, revoked_reason = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING updated_at
	`
	err := tx.QueryRow(ctx, query,
		share.Status,
		share.ActivatedAt,
		share.ExpiresAt,
		share.AutoRevokeAfterAccess,
		share.AccessCount,
		share.RevokedAt,
		share.RevokedReason,
		share.ID,
	).Scan(&share.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrShareNotFound
	}
	return err
}

// RecordAccessOutcome appends one row to the access audit trail.
func (d *DB) RecordAccessOutcome(ctx context.Context, tx pgx.Tx, shareID uuid.UUID, outcome string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO access_log (share_id, outcome) VALUES ($1, $2)`,
		shareID, outcome,
	)
	return err
}

// ActivateBySubject flips all pending shares for a subject to active.
// Returns the ids transitioned; duplicate callbacks match zero rows and are
// a no-op.
func (d *DB) ActivateBySubject(ctx context.Context, subjectID string, now time.Time) ([]uuid.UUID, error) {
	rows, err := d.Pool.Query(ctx, `
		UPDATE shares
		SET status = $1, activated_at = $2, updated_at = NOW()
		WHERE subject_id = $3 AND status = $4
		RETURNING id
	`, models.StatusActive, now, subjectID, models.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetShareByID retrieves a share by its id, with recipients.
func (d *DB) GetShareByID(ctx context.Context, id uuid.UUID) (*models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1`
	share, err := scanShare(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := d.loadRecipients(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

// GetOwnedShare retrieves a share by id scoped to its owner.
func (d *DB) GetOwnedShare(ctx context.Context, ownerID, id uuid.UUID) (*models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1 AND owner_id = $2`
	share, err := scanShare(d.Pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		return nil, err
	}
	if err := d.loadRecipients(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

// GetShareByToken retrieves a share by its public token.
func (d *DB) GetShareByToken(ctx context.Context, token string) (*models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE token = $1`
	return scanShare(d.Pool.QueryRow(ctx, query, token))
}

// loadRecipients fills in the ordered recipient list for a single share.
func (d *DB) loadRecipients(ctx context.Context, share *models.ShareRecord) error {
	rows, err := d.Pool.Query(ctx, `
		SELECT kind, target, position
		FROM share_recipients
		WHERE share_id = $1
		ORDER BY position ASC
	`, share.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.Kind, &r.Target, &r.Position); err != nil {
			return err
		}
		share.Recipients = append(share.Recipients, r)
	}
	return rows.Err()
}

// ListShares returns an owner's shares, newest first with a stable
// tie-break, optionally filtered by status and a substring search against
// the subject id and recipient targets.
func (d *DB) ListShares(ctx context.Context, ownerID uuid.UUID, statusFilter, search string) ([]models.ShareRecord, error) {
	sql := `SELECT ` + shareColumns + ` FROM shares WHERE owner_id = $1`
	args := []any{ownerID}

	if statusFilter != "" {
		sql += ` AND status = $` + strconv.Itoa(len(args)+1)
		args = append(args, statusFilter)
	}

	if search != "" {
		pattern := "%" + search + "%"
		n := strconv.Itoa(len(args) + 1)
		sql += ` AND (subject_id ILIKE $` + n + ` OR EXISTS (
			SELECT 1 FROM share_recipients r
			WHERE r.share_id = shares.id AND r.target ILIKE $` + n + `))`
		args = append(args, pattern)
	}

	sql += ` ORDER BY created_at DESC, id DESC`

	rows, err := d.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	shares, err := scanShares(rows)
	if err != nil {
		return nil, err
	}

	if err := d.loadRecipientsBatch(ctx, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// loadRecipientsBatch fills in recipients for a list of shares in one query.
func (d *DB) loadRecipientsBatch(ctx context.Context, shares []models.ShareRecord) error {
	if len(shares) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(shares))
	byID := make(map[uuid.UUID]*models.ShareRecord, len(shares))
	for i := range shares {
		ids[i] = shares[i].ID
		byID[shares[i].ID] = &shares[i]
	}

	rows, err := d.Pool.Query(ctx, `
		SELECT share_id, kind, target, position
		FROM share_recipients
		WHERE share_id = ANY($1)
		ORDER BY share_id, position ASC
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var shareID uuid.UUID
		var r models.Recipient
		if err := rows.Scan(&shareID, &r.Kind, &r.Target, &r.Position); err != nil {
			return err
		}
		if s, ok := byID[shareID]; ok {
			s.Recipients = append(s.Recipients, r)
		}
	}
	return rows.Err()
}

// GetShareStats aggregates an owner's shares by status. Computed on demand;
// nothing here is cached.
func (d *DB) GetShareStats(ctx context.Context, ownerID uuid.UUID) (*models.ShareStats, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(access_count), 0)
		FROM shares
		WHERE owner_id = $1
		GROUP BY status
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats models.ShareStats
	for rows.Next() {
		var status string
		var count, accesses int64
		if err := rows.Scan(&status, &count, &accesses); err != nil {
			return nil, err
		}
		switch status {
		case models.StatusActive:
			stats.Active = count
		case models.StatusPending:
			stats.Pending = count
		case models.StatusExpired:
			stats.Expired = count
		case models.StatusRevoked:
			stats.Revoked = count
		}
		stats.TotalAccessCount += accesses
	}
	return &stats, rows.Err()
}

// GetGlobalShareStats aggregates all shares regardless of owner, for the
// metrics exporter.
func (d *DB) GetGlobalShareStats(ctx context.Context) (map[string]int64, int64, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(access_count), 0)
		FROM shares
		GROUP BY status
	`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	var totalAccesses int64
	for rows.Next() {
		var status string
		var count, accesses int64
		if err := rows.Scan(&status, &count, &accesses); err != nil {
			return nil, 0, err
		}
		counts[status] = count
		totalAccesses += accesses
	}
	return counts, totalAccesses, rows.Err()
}

// GetDueShareIDs returns ids of active shares whose expiry has passed,
// oldest deadline first, capped at limit.
func (d *DB) GetDueShareIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT id
		FROM shares
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3
	`, models.StatusActive, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetAccessLog returns the audit trail for a share, newest first.
func (d *DB) GetAccessLog(ctx context.Context, shareID uuid.UUID, limit int) ([]models.AccessEntry, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT share_id, outcome, occurred_at
		FROM access_log
		WHERE share_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, shareID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AccessEntry
	for rows.Next() {
		var e models.AccessEntry
		if err := rows.Scan(&e.ShareID, &e.Outcome, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindOwnedShareIDs maps a set of ids to those actually owned by ownerID.
func (d *DB) FindOwnedShareIDs(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := d.Pool.Query(ctx,
		`SELECT id FROM shares WHERE owner_id = $1 AND id = ANY($2)`,
		ownerID, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owned := make(map[uuid.UUID]bool, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned[id] = true
	}
	return owned, rows.Err()
}
