package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

func (s *Store) CreatePermission(ctx context.Context, perm *iam.Permission) error {
	perm.ID = uuid.NewString()

	query := `
		INSERT INTO permissions (id, realm_id, resource, action)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query, perm.ID, perm.RealmID, perm.Resource, perm.Action).Scan(&perm.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return iam.Conflictf("permission %q already exists in realm", perm.Identifier())
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, id string) (*iam.Permission, error) {
	query := `SELECT id, realm_id, resource, action, created_at FROM permissions WHERE id = $1`

	var perm iam.Permission
	err := s.db.QueryRowContext(ctx, query, id).Scan(&perm.ID, &perm.RealmID, &perm.Resource, &perm.Action, &perm.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, iam.NewNotFound("permission", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &perm, nil
}

func (s *Store) GetPermissionByKey(ctx context.Context, realmID, resource, action string) (*iam.Permission, error) {
	query := `SELECT id, realm_id, resource, action, created_at FROM permissions WHERE realm_id = $1 AND resource = $2 AND action = $3`

	var perm iam.Permission
	err := s.db.QueryRowContext(ctx, query, realmID, resource, action).Scan(&perm.ID, &perm.RealmID, &perm.Resource, &perm.Action, &perm.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, iam.NewNotFound("permission", resource+":"+action)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission by key: %w", err)
	}
	return &perm, nil
}

func (s *Store) ListPermissions(ctx context.Context, realmID string, offset, limit int) ([]*iam.Permission, error) {
	query := `
		SELECT id, realm_id, resource, action, created_at
		FROM permissions
		WHERE realm_id = $1
		ORDER BY created_at ASC, id ASC
		OFFSET $2 LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, realmID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*iam.Permission
	for rows.Next() {
		var perm iam.Permission
		if err := rows.Scan(&perm.ID, &perm.RealmID, &perm.Resource, &perm.Action, &perm.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, &perm)
	}
	return perms, rows.Err()
}

func (s *Store) DeletePermission(ctx context.Context, id string) error {
	// Link rows cascade via ON DELETE CASCADE.
	result, err := s.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("permission", id)
	}
	return nil
}
