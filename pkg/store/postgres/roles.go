package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

func (s *Store) CreateRole(ctx context.Context, role *iam.Role) error {
	role.ID = uuid.NewString()

	query := `
		INSERT INTO roles (id, realm_id, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query, role.ID, role.RealmID, role.Name, role.Description).Scan(&role.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return iam.Conflictf("role name %q already exists in realm", role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*iam.Role, error) {
	query := `SELECT id, realm_id, name, description, created_at FROM roles WHERE id = $1`

	var role iam.Role
	err := s.db.QueryRowContext(ctx, query, id).Scan(&role.ID, &role.RealmID, &role.Name, &role.Description, &role.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, iam.NewNotFound("role", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

func (s *Store) GetRoleByName(ctx context.Context, realmID, name string) (*iam.Role, error) {
	query := `SELECT id, realm_id, name, description, created_at FROM roles WHERE realm_id = $1 AND name = $2`

	var role iam.Role
	err := s.db.QueryRowContext(ctx, query, realmID, name).Scan(&role.ID, &role.RealmID, &role.Name, &role.Description, &role.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, iam.NewNotFound("role", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role by name: %w", err)
	}
	return &role, nil
}

func (s *Store) ListRoles(ctx context.Context, realmID string, offset, limit int) ([]*iam.Role, error) {
	query := `
		SELECT id, realm_id, name, description, created_at
		FROM roles
		WHERE realm_id = $1
		ORDER BY created_at ASC, id ASC
		OFFSET $2 LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, realmID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*iam.Role
	for rows.Next() {
		var role iam.Role
		if err := rows.Scan(&role.ID, &role.RealmID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, role *iam.Role) error {
	query := `UPDATE roles SET name = $1, description = $2 WHERE id = $3`

	result, err := s.db.ExecContext(ctx, query, role.Name, role.Description, role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return iam.Conflictf("role name %q already exists in realm", role.Name)
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("role", role.ID)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, id string) error {
	// Link rows cascade via ON DELETE CASCADE.
	result, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("role", id)
	}
	return nil
}
