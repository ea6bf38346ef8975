// ABOUTME: Delivery log persistence for webhooks that passed through the relay
// ABOUTME: Insert, filtered listing, counting, and retention purge

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultDeliveryLimit = 100

// InsertDelivery records one delivery log entry.
func (s *SQLiteStore) InsertDelivery(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO deliveries (id, endpoint_id, event_type, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ID,
		nullString(d.EndpointID),
		d.EventType,
		nullString(d.Payload),
		d.Status,
		d.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// GetDelivery retrieves a single delivery by ID.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	query := `
		SELECT id, endpoint_id, event_type, payload, status, created_at
		FROM deliveries
		WHERE id = ?
	`
	d, err := scanDelivery(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying delivery: %w", err)
	}
	return d, nil
}

// ListDeliveries returns deliveries newest first, narrowed by the filter.
// A zero Limit falls back to a sane default so the console never pulls
// the whole table.
func (s *SQLiteStore) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]*Delivery, error) {
	var conditions []string
	var args []any

	if filter.EndpointID != "" {
		conditions = append(conditions, "endpoint_id = ?")
		args = append(args, filter.EndpointID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := `
		SELECT id, endpoint_id, event_type, payload, status, created_at
		FROM deliveries
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeliveryLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deliveries []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deliveries: %w", err)
	}
	return deliveries, nil
}

// CountDeliveriesSince reports how many deliveries arrived at or after the
// given time. Used by the console dashboard.
func (s *SQLiteStore) CountDeliveriesSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries WHERE created_at >= ?`,
		since.UTC().Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting deliveries: %w", err)
	}
	return count, nil
}

// PurgeDeliveries deletes deliveries older than the given time and
// returns how many rows were removed.
func (s *SQLiteStore) PurgeDeliveries(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries WHERE created_at < ?`,
		olderThan.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("purging deliveries: %w", err)
	}
	purged, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if purged > 0 {
		s.logger.Info("purged old deliveries", "count", purged, "older_than", olderThan)
	}
	return purged, nil
}

func scanDelivery(row scanner) (*Delivery, error) {
	var d Delivery
	var endpointID, payload sql.NullString
	var createdAtStr string

	if err := row.Scan(
		&d.ID,
		&endpointID,
		&d.EventType,
		&payload,
		&d.Status,
		&createdAtStr,
	); err != nil {
		return nil, err
	}

	d.EndpointID = endpointID.String
	d.Payload = payload.String

	var err error
	if d.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	return &d, nil
}
