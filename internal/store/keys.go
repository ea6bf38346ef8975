// ABOUTME: Relay key store implementation for API credential management
// ABOUTME: Tokens are stored as bcrypt hashes; only the prefix survives for display

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateRelayKey inserts a new relay key. Returns ErrKeyExists when the name
// is already taken.
func (s *SQLiteStore) CreateRelayKey(ctx context.Context, key *RelayKey) error {
	if key.ID == "" {
		key.ID = uuid.New().String()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO relay_keys (id, name, token_hash, prefix, created_by, created_at, last_used_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		key.ID,
		key.Name,
		key.TokenHash,
		key.Prefix,
		nullString(key.CreatedBy),
		key.CreatedAt.UTC().Format(time.RFC3339),
		nullTime(key.LastUsedAt),
		nullTime(key.RevokedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrKeyExists
		}
		return fmt.Errorf("inserting relay key: %w", err)
	}

	s.logger.Info("created relay key", "id", key.ID, "name", key.Name, "prefix", key.Prefix)
	return nil
}

// GetRelayKey retrieves a relay key by ID.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStore) GetRelayKey(ctx context.Context, id string) (*RelayKey, error) {
	query := `
		SELECT id, name, token_hash, prefix, created_by, created_at, last_used_at, revoked_at
		FROM relay_keys
		WHERE id = ?
	`
	key, err := scanRelayKey(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying relay key: %w", err)
	}
	return key, nil
}

// ListRelayKeys returns all relay keys, newest first.
func (s *SQLiteStore) ListRelayKeys(ctx context.Context) ([]*RelayKey, error) {
	query := `
		SELECT id, name, token_hash, prefix, created_by, created_at, last_used_at, revoked_at
		FROM relay_keys
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying relay keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []*RelayKey
	for rows.Next() {
		key, err := scanRelayKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning relay key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relay keys: %w", err)
	}
	return keys, nil
}

// RevokeRelayKey marks a key as revoked. Revoking twice is a no-op.
func (s *SQLiteStore) RevokeRelayKey(ctx context.Context, id string) error {
	query := `UPDATE relay_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("revoking relay key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish missing from already-revoked
		if _, err := s.GetRelayKey(ctx, id); err != nil {
			return err
		}
		return nil
	}

	s.logger.Info("revoked relay key", "id", id)
	return nil
}

// TouchRelayKey records that a key was just used for authentication.
func (s *SQLiteStore) TouchRelayKey(ctx context.Context, id string) error {
	query := `UPDATE relay_keys SET last_used_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), id); err != nil {
		return fmt.Errorf("touching relay key: %w", err)
	}
	return nil
}

// DeleteRelayKey removes a key permanently.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStore) DeleteRelayKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM relay_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting relay key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted relay key", "id", id)
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRelayKey(row scanner) (*RelayKey, error) {
	var key RelayKey
	var createdBy sql.NullString
	var createdAtStr string
	var lastUsed, revoked sql.NullString

	if err := row.Scan(
		&key.ID,
		&key.Name,
		&key.TokenHash,
		&key.Prefix,
		&createdBy,
		&createdAtStr,
		&lastUsed,
		&revoked,
	); err != nil {
		return nil, err
	}

	key.CreatedBy = createdBy.String
	createdAt, err := parseTime(createdAtStr)
	if err != nil {
		return nil, err
	}
	key.CreatedAt = createdAt
	if key.LastUsedAt, err = scanNullTime(lastUsed); err != nil {
		return nil, err
	}
	if key.RevokedAt, err = scanNullTime(revoked); err != nil {
		return nil, err
	}
	return &key, nil
}
