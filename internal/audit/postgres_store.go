package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// PostgresSink stores audit entries in the audit_entries table
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates a new PostgreSQL audit sink
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

const auditColumns = `
	id, actor, action, resource_type, resource_id, access_granted,
	is_emergency, details, timestamp, ip_address, prev_hash, hash`

// Append inserts a single audit entry
func (s *PostgresSink) Append(ctx context.Context, entry *types.AuditEntry) error {
	assignID(entry)

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal details: %v", types.ErrAuditWrite, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID,
		entry.Actor,
		string(entry.Action),
		entry.ResourceType,
		entry.ResourceID,
		entry.Granted,
		entry.Emergency,
		detailsJSON,
		entry.Timestamp,
		nullString(entry.Origin),
		nullString(entry.PrevHash),
		nullString(entry.Hash),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert audit entry: %v", types.ErrAuditWrite, err)
	}
	return nil
}

// Query retrieves audit entries matching q, most recent first
func (s *PostgresSink) Query(ctx context.Context, q *types.AuditQuery) ([]*types.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE TRUE`
	var args []interface{}
	argIndex := 1

	if q != nil {
		if q.Actor != "" {
			query += fmt.Sprintf(" AND actor = $%d", argIndex)
			args = append(args, q.Actor)
			argIndex++
		}
		if len(q.Actions) > 0 {
			actions := make([]string, len(q.Actions))
			for i, a := range q.Actions {
				actions[i] = string(a)
			}
			query += fmt.Sprintf(" AND action = ANY($%d)", argIndex)
			args = append(args, pq.Array(actions))
			argIndex++
		}
		if q.StartTime != nil {
			query += fmt.Sprintf(" AND timestamp >= $%d", argIndex)
			args = append(args, *q.StartTime)
			argIndex++
		}
		if q.EndTime != nil {
			query += fmt.Sprintf(" AND timestamp <= $%d", argIndex)
			args = append(args, *q.EndTime)
			argIndex++
		}
	}

	query += " ORDER BY seq DESC"
	if q != nil && q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, q.Limit)
	}

	return s.queryEntries(ctx, query, args...)
}

// Chain returns all entries in append order for chain verification
func (s *PostgresSink) Chain(ctx context.Context) ([]*types.AuditEntry, error) {
	return s.queryEntries(ctx, `SELECT `+auditColumns+` FROM audit_entries ORDER BY seq ASC`)
}

// LastHash returns the hash of the most recently appended entry
func (s *PostgresSink) LastHash(ctx context.Context) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT hash FROM audit_entries ORDER BY seq DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last audit hash: %w", err)
	}
	return hash.String, nil
}

func (s *PostgresSink) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*types.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

// scanAuditEntry scans a database row into an AuditEntry
func scanAuditEntry(scanner interface {
	Scan(dest ...interface{}) error
}) (*types.AuditEntry, error) {
	var entry types.AuditEntry
	var action string
	var origin, prevHash, hash sql.NullString
	var detailsJSON []byte

	err := scanner.Scan(
		&entry.ID,
		&entry.Actor,
		&action,
		&entry.ResourceType,
		&entry.ResourceID,
		&entry.Granted,
		&entry.Emergency,
		&detailsJSON,
		&entry.Timestamp,
		&origin,
		&prevHash,
		&hash,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	entry.Action = types.AuditAction(action)
	entry.Timestamp = entry.Timestamp.UTC()
	entry.Origin = origin.String
	entry.PrevHash = prevHash.String
	entry.Hash = hash.String

	if len(detailsJSON) > 0 && string(detailsJSON) != "null" {
		if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
	}
	return &entry, nil
}

// nullString returns sql.NullString for empty strings
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
