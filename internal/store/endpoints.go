// ABOUTME: Endpoint store implementation for webhook destination management
// ABOUTME: CRUD over the endpoints table with RFC3339 timestamps

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateEndpoint inserts a new webhook destination.
func (s *SQLiteStore) CreateEndpoint(ctx context.Context, ep *Endpoint) error {
	if ep.ID == "" {
		ep.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = now
	}
	if ep.UpdatedAt.IsZero() {
		ep.UpdatedAt = now
	}

	query := `
		INSERT INTO endpoints (id, name, destination, description, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		ep.ID,
		ep.Name,
		ep.Destination,
		nullString(ep.Description),
		boolToInt(ep.Active),
		ep.CreatedAt.UTC().Format(time.RFC3339),
		ep.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting endpoint: %w", err)
	}

	s.logger.Debug("created endpoint", "id", ep.ID, "name", ep.Name)
	return nil
}

// GetEndpoint retrieves an endpoint by ID.
// Returns ErrNotFound if the endpoint doesn't exist.
func (s *SQLiteStore) GetEndpoint(ctx context.Context, id string) (*Endpoint, error) {
	query := `
		SELECT id, name, destination, description, active, created_at, updated_at
		FROM endpoints
		WHERE id = ?
	`
	ep, err := scanEndpoint(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying endpoint: %w", err)
	}
	return ep, nil
}

// UpdateEndpoint rewrites an endpoint's mutable fields.
func (s *SQLiteStore) UpdateEndpoint(ctx context.Context, ep *Endpoint) error {
	ep.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE endpoints
		SET name = ?, destination = ?, description = ?, active = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		ep.Name,
		ep.Destination,
		nullString(ep.Description),
		boolToInt(ep.Active),
		ep.UpdatedAt.UTC().Format(time.RFC3339),
		ep.ID,
	)
	if err != nil {
		return fmt.Errorf("updating endpoint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated endpoint", "id", ep.ID)
	return nil
}

// DeleteEndpoint removes an endpoint.
// Returns ErrNotFound if the endpoint doesn't exist.
func (s *SQLiteStore) DeleteEndpoint(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted endpoint", "id", id)
	return nil
}

// ListEndpoints returns all endpoints ordered by name.
func (s *SQLiteStore) ListEndpoints(ctx context.Context) ([]*Endpoint, error) {
	query := `
		SELECT id, name, destination, description, active, created_at, updated_at
		FROM endpoints
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying endpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var endpoints []*Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning endpoint: %w", err)
		}
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating endpoints: %w", err)
	}
	return endpoints, nil
}

func scanEndpoint(row scanner) (*Endpoint, error) {
	var ep Endpoint
	var description sql.NullString
	var active int
	var createdAtStr, updatedAtStr string

	if err := row.Scan(
		&ep.ID,
		&ep.Name,
		&ep.Destination,
		&description,
		&active,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	ep.Description = description.String
	ep.Active = active != 0

	var err error
	if ep.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if ep.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, err
	}
	return &ep, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
