package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

func (s *Store) CreatePolicy(ctx context.Context, policy *iam.Policy) error {
	policy.ID = uuid.NewString()

	query := `
		INSERT INTO policies (id, realm_id, type, expression, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		policy.ID, policy.RealmID, string(policy.Type), policy.Expression, policy.Description,
	).Scan(&policy.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id string) (*iam.Policy, error) {
	query := `SELECT id, realm_id, type, expression, description, created_at FROM policies WHERE id = $1`

	policy, err := scanPolicy(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, iam.NewNotFound("policy", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	return policy, nil
}

func (s *Store) ListPolicies(ctx context.Context, realmID string, offset, limit int) ([]*iam.Policy, error) {
	query := `
		SELECT id, realm_id, type, expression, description, created_at
		FROM policies
		WHERE realm_id = $1
		ORDER BY created_at ASC, id ASC
		OFFSET $2 LIMIT $3
	`
	return s.queryPolicies(ctx, query, realmID, offset, limit)
}

func (s *Store) ListPoliciesByType(ctx context.Context, realmID string, typ iam.PolicyType) ([]*iam.Policy, error) {
	query := `
		SELECT id, realm_id, type, expression, description, created_at
		FROM policies
		WHERE realm_id = $1 AND type = $2
		ORDER BY created_at ASC, id ASC
	`
	return s.queryPolicies(ctx, query, realmID, string(typ))
}

func (s *Store) queryPolicies(ctx context.Context, query string, args ...interface{}) ([]*iam.Policy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []*iam.Policy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

func (s *Store) UpdatePolicy(ctx context.Context, policy *iam.Policy) error {
	query := `UPDATE policies SET type = $1, expression = $2, description = $3 WHERE id = $4`

	result, err := s.db.ExecContext(ctx, query, string(policy.Type), policy.Expression, policy.Description, policy.ID)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("policy", policy.ID)
	}
	return nil
}

func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	// Bindings cascade via ON DELETE CASCADE.
	result, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("policy", id)
	}
	return nil
}

func scanPolicy(scanner interface {
	Scan(dest ...interface{}) error
}) (*iam.Policy, error) {
	var policy iam.Policy
	var typ string
	err := scanner.Scan(&policy.ID, &policy.RealmID, &typ, &policy.Expression, &policy.Description, &policy.CreatedAt)
	if err != nil {
		return nil, err
	}
	policy.Type = iam.PolicyType(typ)
	return &policy, nil
}
