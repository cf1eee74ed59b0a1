package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

func (s *Store) CreateRealm(ctx context.Context, realm *iam.Realm) error {
	realm.ID = uuid.NewString()

	query := `
		INSERT INTO realms (id, name, enabled)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query, realm.ID, realm.Name, realm.Enabled).Scan(&realm.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return iam.Conflictf("realm name %q already exists", realm.Name)
		}
		return fmt.Errorf("failed to create realm: %w", err)
	}
	return nil
}

func (s *Store) GetRealm(ctx context.Context, id string) (*iam.Realm, error) {
	query := `SELECT id, name, enabled, created_at FROM realms WHERE id = $1`

	var realm iam.Realm
	err := s.db.QueryRowContext(ctx, query, id).Scan(&realm.ID, &realm.Name, &realm.Enabled, &realm.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, iam.NewNotFound("realm", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get realm: %w", err)
	}
	return &realm, nil
}

func (s *Store) GetRealmByName(ctx context.Context, name string) (*iam.Realm, error) {
	query := `SELECT id, name, enabled, created_at FROM realms WHERE name = $1`

	var realm iam.Realm
	err := s.db.QueryRowContext(ctx, query, name).Scan(&realm.ID, &realm.Name, &realm.Enabled, &realm.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, iam.NewNotFound("realm", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get realm by name: %w", err)
	}
	return &realm, nil
}

func (s *Store) ListRealms(ctx context.Context, offset, limit int) ([]*iam.Realm, error) {
	query := `
		SELECT id, name, enabled, created_at
		FROM realms
		ORDER BY created_at ASC, id ASC
		OFFSET $1 LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list realms: %w", err)
	}
	defer rows.Close()

	var realms []*iam.Realm
	for rows.Next() {
		var realm iam.Realm
		if err := rows.Scan(&realm.ID, &realm.Name, &realm.Enabled, &realm.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan realm: %w", err)
		}
		realms = append(realms, &realm)
	}
	return realms, rows.Err()
}

func (s *Store) UpdateRealm(ctx context.Context, realm *iam.Realm) error {
	query := `UPDATE realms SET name = $1, enabled = $2 WHERE id = $3`

	result, err := s.db.ExecContext(ctx, query, realm.Name, realm.Enabled, realm.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return iam.Conflictf("realm name %q already exists", realm.Name)
		}
		return fmt.Errorf("failed to update realm: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("realm", realm.ID)
	}
	return nil
}

func (s *Store) SetRealmEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE realms SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set realm enabled: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("realm", id)
	}
	return nil
}

func (s *Store) DeleteRealm(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM realms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete realm: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return iam.NewNotFound("realm", id)
	}
	return nil
}

func (s *Store) RealmCounts(ctx context.Context, realmID string) (iam.RealmCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users WHERE realm_id = $1),
			(SELECT COUNT(*) FROM roles WHERE realm_id = $1),
			(SELECT COUNT(*) FROM permissions WHERE realm_id = $1),
			(SELECT COUNT(*) FROM policies WHERE realm_id = $1),
			(SELECT COUNT(*) FROM tokens WHERE realm_id = $1)
	`
	var c iam.RealmCounts
	err := s.db.QueryRowContext(ctx, query, realmID).Scan(&c.Users, &c.Roles, &c.Permissions, &c.Policies, &c.Tokens)
	if err != nil {
		return iam.RealmCounts{}, fmt.Errorf("failed to count realm entities: %w", err)
	}
	return c, nil
}
