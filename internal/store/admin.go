// ABOUTME: Admin user, session, and invite types and store methods
// ABOUTME: Supports username/password auth for the console UI

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAdminUserNotFound is returned when an admin user doesn't exist.
var ErrAdminUserNotFound = errors.New("admin user not found")

// ErrAdminSessionNotFound is returned when a session doesn't exist or is expired.
var ErrAdminSessionNotFound = errors.New("admin session not found")

// ErrAdminInviteNotFound is returned when an invite doesn't exist.
var ErrAdminInviteNotFound = errors.New("admin invite not found")

// ErrAdminInviteUsed is returned when trying to use an already-used invite.
var ErrAdminInviteUsed = errors.New("admin invite already used")

// ErrAdminInviteExpired is returned when an invite has expired.
var ErrAdminInviteExpired = errors.New("admin invite expired")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// AdminUser represents an admin who can access the console.
type AdminUser struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt hash
	DisplayName  string
	CreatedAt    time.Time
}

// AdminSession represents an authenticated admin session.
type AdminSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// AdminInvite represents a signup invitation link.
type AdminInvite struct {
	ID        string
	CreatedBy string // user ID, empty for bootstrap invite
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    string // user ID who used the invite
}

// AdminStore defines the interface for admin-related persistence.
type AdminStore interface {
	// Admin Users
	CreateAdminUser(ctx context.Context, user *AdminUser) error
	GetAdminUser(ctx context.Context, id string) (*AdminUser, error)
	GetAdminUserByUsername(ctx context.Context, username string) (*AdminUser, error)
	UpdateAdminUserPassword(ctx context.Context, id, passwordHash string) error
	ListAdminUsers(ctx context.Context) ([]*AdminUser, error)
	CountAdminUsers(ctx context.Context) (int, error)

	// Sessions
	CreateAdminSession(ctx context.Context, session *AdminSession) error
	GetAdminSession(ctx context.Context, id string) (*AdminSession, error)
	DeleteAdminSession(ctx context.Context, id string) error
	DeleteExpiredAdminSessions(ctx context.Context) error

	// Invites
	CreateAdminInvite(ctx context.Context, invite *AdminInvite) error
	GetAdminInvite(ctx context.Context, id string) (*AdminInvite, error)
	UseAdminInvite(ctx context.Context, inviteID, userID string) error
}

// CreateAdminUser creates a new admin user.
func (s *SQLiteStore) CreateAdminUser(ctx context.Context, user *AdminUser) error {
	query := `
		INSERT INTO admin_users (id, username, password_hash, display_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.DisplayName,
		user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting admin user: %w", err)
	}

	s.logger.Info("created admin user", "id", user.ID, "username", user.Username)
	return nil
}

// GetAdminUser retrieves an admin user by ID.
func (s *SQLiteStore) GetAdminUser(ctx context.Context, id string) (*AdminUser, error) {
	query := `
		SELECT id, username, password_hash, display_name, created_at
		FROM admin_users
		WHERE id = ?
	`
	user, err := scanAdminUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdminUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin user: %w", err)
	}
	return user, nil
}

// GetAdminUserByUsername retrieves an admin user by username.
func (s *SQLiteStore) GetAdminUserByUsername(ctx context.Context, username string) (*AdminUser, error) {
	query := `
		SELECT id, username, password_hash, display_name, created_at
		FROM admin_users
		WHERE username = ?
	`
	user, err := scanAdminUser(s.db.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdminUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin user by username: %w", err)
	}
	return user, nil
}

// UpdateAdminUserPassword updates an admin user's password hash.
func (s *SQLiteStore) UpdateAdminUserPassword(ctx context.Context, id, passwordHash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE admin_users SET password_hash = ? WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating admin user password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAdminUserNotFound
	}

	s.logger.Info("updated admin user password", "id", id)
	return nil
}

// ListAdminUsers returns all admin users.
func (s *SQLiteStore) ListAdminUsers(ctx context.Context) ([]*AdminUser, error) {
	query := `
		SELECT id, username, password_hash, display_name, created_at
		FROM admin_users
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying admin users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*AdminUser
	for rows.Next() {
		user, err := scanAdminUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning admin user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating admin users: %w", err)
	}
	return users, nil
}

// CountAdminUsers returns the number of admin users.
func (s *SQLiteStore) CountAdminUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM admin_users").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting admin users: %w", err)
	}
	return count, nil
}

// CreateAdminSession creates a new admin session.
func (s *SQLiteStore) CreateAdminSession(ctx context.Context, session *AdminSession) error {
	query := `
		INSERT INTO admin_sessions (id, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.CreatedAt.UTC().Format(time.RFC3339),
		session.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting admin session: %w", err)
	}

	s.logger.Debug("created admin session", "id", session.ID, "user_id", session.UserID)
	return nil
}

// GetAdminSession retrieves a valid (non-expired) admin session.
func (s *SQLiteStore) GetAdminSession(ctx context.Context, id string) (*AdminSession, error) {
	query := `
		SELECT id, user_id, created_at, expires_at
		FROM admin_sessions
		WHERE id = ? AND expires_at > ?
	`

	var session AdminSession
	var createdAtStr, expiresAtStr string
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.db.QueryRowContext(ctx, query, id, now).Scan(
		&session.ID,
		&session.UserID,
		&createdAtStr,
		&expiresAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdminSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin session: %w", err)
	}

	if session.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if session.ExpiresAt, err = parseTime(expiresAtStr); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteAdminSession deletes an admin session.
func (s *SQLiteStore) DeleteAdminSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM admin_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting admin session: %w", err)
	}
	return nil
}

// DeleteExpiredAdminSessions removes all expired sessions.
func (s *SQLiteStore) DeleteExpiredAdminSessions(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, "DELETE FROM admin_sessions WHERE expires_at <= ?", now)
	if err != nil {
		return fmt.Errorf("deleting expired sessions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired admin sessions", "count", rowsAffected)
	}
	return nil
}

// CreateAdminInvite creates a new admin invite.
func (s *SQLiteStore) CreateAdminInvite(ctx context.Context, invite *AdminInvite) error {
	query := `
		INSERT INTO admin_invites (id, created_by, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		invite.ID,
		nullString(invite.CreatedBy),
		invite.CreatedAt.UTC().Format(time.RFC3339),
		invite.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting admin invite: %w", err)
	}

	s.logger.Info("created admin invite", "id", invite.ID, "expires_at", invite.ExpiresAt)
	return nil
}

// GetAdminInvite retrieves an admin invite by ID.
func (s *SQLiteStore) GetAdminInvite(ctx context.Context, id string) (*AdminInvite, error) {
	query := `
		SELECT id, created_by, created_at, expires_at, used_at, used_by
		FROM admin_invites
		WHERE id = ?
	`

	var invite AdminInvite
	var createdBy, usedBy, usedAtStr sql.NullString
	var createdAtStr, expiresAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&invite.ID,
		&createdBy,
		&createdAtStr,
		&expiresAtStr,
		&usedAtStr,
		&usedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAdminInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin invite: %w", err)
	}

	invite.CreatedBy = createdBy.String
	invite.UsedBy = usedBy.String

	if invite.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	if invite.ExpiresAt, err = parseTime(expiresAtStr); err != nil {
		return nil, err
	}
	if invite.UsedAt, err = scanNullTime(usedAtStr); err != nil {
		return nil, err
	}
	return &invite, nil
}

// UseAdminInvite atomically marks an invite as used by a user.
// Returns ErrAdminInviteUsed if already used, ErrAdminInviteExpired if expired,
// or ErrAdminInviteNotFound if the invite doesn't exist.
func (s *SQLiteStore) UseAdminInvite(ctx context.Context, inviteID, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	// Atomic update: only succeeds if the invite exists, is unused, and
	// has not expired. Avoids double-use races.
	query := `
		UPDATE admin_invites
		SET used_at = ?, used_by = ?
		WHERE id = ?
		  AND used_at IS NULL
		  AND expires_at > ?
	`

	result, err := s.db.ExecContext(ctx, query, now, userID, inviteID, now)
	if err != nil {
		return fmt.Errorf("marking invite as used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		s.logger.Info("admin invite used", "invite_id", inviteID, "user_id", userID)
		return nil
	}

	// Nothing updated: figure out which failure it was.
	invite, err := s.GetAdminInvite(ctx, inviteID)
	if err != nil {
		return err
	}
	if invite.UsedAt != nil {
		return ErrAdminInviteUsed
	}
	if time.Now().After(invite.ExpiresAt) {
		return ErrAdminInviteExpired
	}
	return fmt.Errorf("invite %s could not be used", inviteID)
}

func scanAdminUser(row scanner) (*AdminUser, error) {
	var user AdminUser
	var passwordHash sql.NullString
	var createdAtStr string

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&passwordHash,
		&user.DisplayName,
		&createdAtStr,
	); err != nil {
		return nil, err
	}

	user.PasswordHash = passwordHash.String

	var err error
	if user.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}
	return &user, nil
}
