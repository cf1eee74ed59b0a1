package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

const userColumns = `id, realm_id, username, email, password_hash, first_name, last_name, enabled, attributes, created_at`

func (s *Store) CreateUser(ctx context.Context, user *iam.User) error {
	user.ID = uuid.NewString()

	attrs, err := json.Marshal(attributesOrEmpty(user.Attributes))
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		INSERT INTO users (id, realm_id, username, email, password_hash, first_name, last_name, enabled, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		user.ID, user.RealmID, user.Username, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.Enabled, attrs,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return iam.Conflictf("username or email already exists in realm")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*iam.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, realmID, username string) (*iam.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE realm_id = $1 AND username = $2`, realmID, username)
}

func (s *Store) GetUserByEmail(ctx context.Context, realmID, email string) (*iam.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE realm_id = $1 AND email = $2`, realmID, email)
}

func (s *Store) getUser(ctx context.Context, query string, args ...interface{}) (*iam.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		key := fmt.Sprint(args[len(args)-1])
		return nil, iam.NewNotFound("user", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, realmID string, offset, limit int) ([]*iam.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE realm_id = $1
		ORDER BY created_at ASC, id ASC
		OFFSET $2 LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, realmID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*iam.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, user *iam.User) error {
	attrs, err := json.Marshal(attributesOrEmpty(user.Attributes))
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		UPDATE users
		SET username = $1, email = $2, password_hash = $3, first_name = $4, last_name = $5, enabled = $6, attributes = $7
		WHERE id = $8
	`
	result, err := s.db.ExecContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.Enabled, attrs, user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return iam.Conflictf("username or email already exists in realm")
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("user", user.ID)
	}
	return nil
}

func (s *Store) SetUserEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set user enabled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("user", id)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("user", id)
	}
	return nil
}

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (*iam.User, error) {
	var user iam.User
	var attrs []byte

	err := scanner.Scan(
		&user.ID, &user.RealmID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Enabled, &attrs, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &user.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	if len(user.Attributes) == 0 {
		user.Attributes = nil
	}
	return &user, nil
}

func attributesOrEmpty(attrs map[string]string) map[string]string {
	if attrs == nil {
		return map[string]string{}
	}
	return attrs
}
