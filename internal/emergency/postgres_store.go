package emergency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// PostgresStore keeps tokens in the emergency_tokens table. Issuance takes a
// transaction-scoped advisory lock on the (requester, patient) pair; updates
// lock the token row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL token store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tokenColumns = `
	id, requested_by, patient_id, reason, issued_at, expires_at, status,
	scope_ehr, scope_reports, scope_lab, times_used, last_used_at`

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, candidate *types.EmergencyToken, now time.Time) (*types.EmergencyToken, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	lockKey := "eat:" + pairKey(candidate.RequestedBy, candidate.PatientID)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, false, fmt.Errorf("failed to lock token pair: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM emergency_tokens
		WHERE requested_by = $1 AND patient_id = $2
		  AND status = 'active' AND expires_at > $3
		ORDER BY issued_at DESC
		LIMIT 1`,
		candidate.RequestedBy, candidate.PatientID, now,
	)
	existing, err := scanToken(row)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO emergency_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		candidate.ID,
		candidate.RequestedBy,
		candidate.PatientID,
		candidate.Reason,
		candidate.IssuedAt,
		candidate.ExpiresAt,
		string(candidate.Status),
		candidate.Scope.EHR,
		candidate.Scope.Reports,
		candidate.Scope.Lab,
		candidate.TimesUsed,
		nullTime(candidate.LastUsedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return candidate.Clone(), true, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*types.EmergencyToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM emergency_tokens WHERE id = $1`, id)
	return scanToken(row)
}

func (s *PostgresStore) Update(ctx context.Context, id string, fn func(*types.EmergencyToken) error) (*types.EmergencyToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM emergency_tokens WHERE id = $1 FOR UPDATE`, id)
	current, err := scanToken(row)
	if err != nil {
		return nil, err
	}

	next, changed, err := applyUpdate(current, fn)
	if err != nil {
		return nil, err
	}
	if !changed {
		return next, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE emergency_tokens
		SET status = $2, times_used = $3, last_used_at = $4,
		    scope_ehr = $5, scope_reports = $6, scope_lab = $7
		WHERE id = $1`,
		id,
		string(next.Status),
		next.TimesUsed,
		nullTime(next.LastUsedAt),
		next.Scope.EHR,
		next.Scope.Reports,
		next.Scope.Lab,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) ListByRequester(ctx context.Context, requester string) ([]*types.EmergencyToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM emergency_tokens
		WHERE requested_by = $1
		ORDER BY issued_at DESC, id DESC`,
		requester,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var out []*types.EmergencyToken
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// scanToken scans a database row into an EmergencyToken
func scanToken(scanner interface {
	Scan(dest ...interface{}) error
}) (*types.EmergencyToken, error) {
	var tok types.EmergencyToken
	var status string
	var lastUsed sql.NullTime

	err := scanner.Scan(
		&tok.ID,
		&tok.RequestedBy,
		&tok.PatientID,
		&tok.Reason,
		&tok.IssuedAt,
		&tok.ExpiresAt,
		&status,
		&tok.Scope.EHR,
		&tok.Scope.Reports,
		&tok.Scope.Lab,
		&tok.TimesUsed,
		&lastUsed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan token: %w", err)
	}

	tok.Status = types.TokenStatus(status)
	tok.IssuedAt = tok.IssuedAt.UTC()
	tok.ExpiresAt = tok.ExpiresAt.UTC()
	if lastUsed.Valid {
		t := lastUsed.Time.UTC()
		tok.LastUsedAt = &t
	}
	return &tok, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
