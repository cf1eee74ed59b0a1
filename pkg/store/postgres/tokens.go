package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gatehouse-io/gatehouse/pkg/iam"
)

func (s *Store) CreateToken(ctx context.Context, token *iam.Token) error {
	token.ID = uuid.NewString()

	query := `
		INSERT INTO tokens (id, realm_id, user_id, client_id, token_type, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		token.ID, token.RealmID, token.UserID, token.ClientID, string(token.TokenType), token.ExpiresAt,
	).Scan(&token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, id string) (*iam.Token, error) {
	query := `
		SELECT id, realm_id, user_id, client_id, token_type, expires_at, created_at, revoked
		FROM tokens WHERE id = $1
	`
	token, err := scanToken(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, iam.NewNotFound("token", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

func (s *Store) ListTokensByUser(ctx context.Context, userID string, typ iam.TokenType) ([]*iam.Token, error) {
	query := `
		SELECT id, realm_id, user_id, client_id, token_type, expires_at, created_at, revoked
		FROM tokens
		WHERE user_id = $1 AND ($2 = '' OR token_type = $2)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, string(typ))
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*iam.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (s *Store) RevokeToken(ctx context.Context, id string) error {
	// Idempotent: unknown or already-revoked ids succeed silently.
	_, err := s.db.ExecContext(ctx, `UPDATE tokens SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *Store) RevokeTokensForUser(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke tokens for user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *Store) CountTokensByRealm(ctx context.Context, realmID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens WHERE realm_id = $1`, realmID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}

func scanToken(scanner interface {
	Scan(dest ...interface{}) error
}) (*iam.Token, error) {
	var token iam.Token
	var typ string
	err := scanner.Scan(
		&token.ID, &token.RealmID, &token.UserID, &token.ClientID,
		&typ, &token.ExpiresAt, &token.CreatedAt, &token.Revoked,
	)
	if err != nil {
		return nil, err
	}
	token.TokenType = iam.TokenType(typ)
	return &token, nil
}
