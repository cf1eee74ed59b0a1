package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

// foreignKeyViolation is the PostgreSQL error code for missing referenced rows.
const foreignKeyViolation = "23503"

func (s *Store) AddUserRole(ctx context.Context, userID, roleID string) error {
	return s.addLink(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		"user or role", userID, roleID)
}

func (s *Store) RemoveUserRole(ctx context.Context, userID, roleID string) error {
	// No-op when the pair does not exist.
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to remove user role: %w", err)
	}
	return nil
}

func (s *Store) UserRoleIDs(ctx context.Context, userID string) ([]string, error) {
	return s.linkIDs(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
}

func (s *Store) AddRolePermission(ctx context.Context, roleID, permissionID string) error {
	return s.addLink(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		"role or permission", roleID, permissionID)
}

func (s *Store) RemoveRolePermission(ctx context.Context, roleID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to remove role permission: %w", err)
	}
	return nil
}

func (s *Store) RolePermissionIDs(ctx context.Context, roleID string) ([]string, error) {
	return s.linkIDs(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
}

func (s *Store) BindPermissionPolicy(ctx context.Context, permissionID, policyID string) error {
	return s.addLink(ctx,
		`INSERT INTO permission_policies (permission_id, policy_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		"permission or policy", permissionID, policyID)
}

func (s *Store) UnbindPermissionPolicy(ctx context.Context, permissionID, policyID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM permission_policies WHERE permission_id = $1 AND policy_id = $2`, permissionID, policyID)
	if err != nil {
		return fmt.Errorf("failed to unbind permission policy: %w", err)
	}
	return nil
}

func (s *Store) PermissionPolicyIDs(ctx context.Context, permissionID string) ([]string, error) {
	return s.linkIDs(ctx, `SELECT policy_id FROM permission_policies WHERE permission_id = $1 ORDER BY policy_id`, permissionID)
}

// addLink performs an idempotent pair insert. ON CONFLICT DO NOTHING makes
// duplicate inserts succeed without effect; a foreign key violation means one
// side of the pair does not exist.
func (s *Store) addLink(ctx context.Context, query, kinds, a, b string) error {
	_, err := s.db.ExecContext(ctx, query, a, b)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == foreignKeyViolation {
			return iam.NewNotFound(kinds, a+"/"+b)
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

func (s *Store) linkIDs(ctx context.Context, query, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var linked string
		if err := rows.Scan(&linked); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		ids = append(ids, linked)
	}
	return ids, rows.Err()
}
