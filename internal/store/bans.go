// ABOUTME: Ban rule persistence for blocking traffic by IP, endpoint, or event type
// ABOUTME: Unique (kind, value) pairs with ErrBanExists on duplicates

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateBanRule inserts a new ban rule.
// Returns ErrBanExists when an identical (kind, value) rule already exists.
func (s *SQLiteStore) CreateBanRule(ctx context.Context, rule *BanRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO ban_rules (id, kind, value, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rule.ID,
		rule.Kind,
		rule.Value,
		nullString(rule.Reason),
		nullString(rule.CreatedBy),
		rule.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrBanExists
		}
		return fmt.Errorf("inserting ban rule: %w", err)
	}

	s.logger.Info("created ban rule", "kind", rule.Kind, "value", rule.Value)
	return nil
}

// DeleteBanRule removes a ban rule by ID.
// Returns ErrNotFound if the rule doesn't exist.
func (s *SQLiteStore) DeleteBanRule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ban_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting ban rule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted ban rule", "id", id)
	return nil
}

// ListBanRules returns all ban rules, newest first.
func (s *SQLiteStore) ListBanRules(ctx context.Context) ([]*BanRule, error) {
	query := `
		SELECT id, kind, value, reason, created_by, created_at
		FROM ban_rules
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying ban rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []*BanRule
	for rows.Next() {
		var rule BanRule
		var reason, createdBy sql.NullString
		var createdAtStr string

		if err := rows.Scan(
			&rule.ID,
			&rule.Kind,
			&rule.Value,
			&reason,
			&createdBy,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning ban rule: %w", err)
		}

		rule.Reason = reason.String
		rule.CreatedBy = createdBy.String
		if rule.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, err
		}
		rules = append(rules, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ban rules: %w", err)
	}
	return rules, nil
}

// IsBanned reports whether a ban rule exists for the given kind and value.
func (s *SQLiteStore) IsBanned(ctx context.Context, kind, value string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ban_rules WHERE kind = ? AND value = ?`,
		kind, value,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking ban rule: %w", err)
	}
	return count > 0, nil
}
