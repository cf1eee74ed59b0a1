package postgres

import (
	"context"
	"fmt"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the full schema, ordered by version.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create realms table",
			SQL: `
				CREATE TABLE IF NOT EXISTS realms (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					realm_id UUID NOT NULL REFERENCES realms(id),
					username VARCHAR(255) NOT NULL,
					email VARCHAR(255) NOT NULL,
					password_hash TEXT NOT NULL DEFAULT '',
					first_name VARCHAR(255) NOT NULL DEFAULT '',
					last_name VARCHAR(255) NOT NULL DEFAULT '',
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					attributes JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(realm_id, username),
					UNIQUE(realm_id, email)
				);

				CREATE INDEX IF NOT EXISTS idx_users_realm_id ON users(realm_id);
			`,
		},
		{
			Version:     3,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id UUID PRIMARY KEY,
					realm_id UUID NOT NULL REFERENCES realms(id),
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(realm_id, name)
				);

				CREATE INDEX IF NOT EXISTS idx_roles_realm_id ON roles(realm_id);
			`,
		},
		{
			Version:     4,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id UUID PRIMARY KEY,
					realm_id UUID NOT NULL REFERENCES realms(id),
					resource VARCHAR(255) NOT NULL,
					action VARCHAR(255) NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(realm_id, resource, action)
				);

				CREATE INDEX IF NOT EXISTS idx_permissions_realm_id ON permissions(realm_id);
			`,
		},
		{
			Version:     5,
			Description: "Create policies table",
			SQL: `
				CREATE TABLE IF NOT EXISTS policies (
					id UUID PRIMARY KEY,
					realm_id UUID NOT NULL REFERENCES realms(id),
					type VARCHAR(32) NOT NULL,
					expression TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_policies_realm_id ON policies(realm_id);
				CREATE INDEX IF NOT EXISTS idx_policies_type ON policies(realm_id, type);
			`,
		},
		{
			Version:     6,
			Description: "Create link tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, role_id)
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id UUID NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE TABLE IF NOT EXISTS permission_policies (
					permission_id UUID NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					policy_id UUID NOT NULL REFERENCES policies(id) ON DELETE CASCADE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (permission_id, policy_id)
				);

				CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles(role_id);
				CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_id ON role_permissions(permission_id);
				CREATE INDEX IF NOT EXISTS idx_permission_policies_policy_id ON permission_policies(policy_id);
			`,
		},
		{
			Version:     7,
			Description: "Create tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tokens (
					id UUID PRIMARY KEY,
					realm_id UUID NOT NULL REFERENCES realms(id),
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					client_id VARCHAR(255) NOT NULL DEFAULT '',
					token_type VARCHAR(32) NOT NULL,
					expires_at TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					revoked BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE INDEX IF NOT EXISTS idx_tokens_user_id ON tokens(user_id);
				CREATE INDEX IF NOT EXISTS idx_tokens_realm_id ON tokens(realm_id);
				CREATE INDEX IF NOT EXISTS idx_tokens_expires_at ON tokens(expires_at);
			`,
		},
	}
}

// Migrate applies all pending migrations inside a transaction each.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, m := range Migrations() {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			m.Version, m.Description); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
