package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"consult-settlement/internal/domain"
)

type ServiceTokenRepository struct {
	db *sql.DB
}

func NewServiceTokenRepository(db *sql.DB) *ServiceTokenRepository {
	return &ServiceTokenRepository{db: db}
}

// FindByPlainToken resolves a bearer token to its stored record by sha256
// hash. Expired tokens are filtered in the query.
func (r *ServiceTokenRepository) FindByPlainToken(ctx context.Context, plainToken string) (*domain.ServiceToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, errors.New("empty token")
	}

	sum := sha256.Sum256([]byte(plainToken))
	hashStr := fmt.Sprintf("%x", sum)

	query := `
		SELECT id, name, token_hash, user_id, abilities, expires_at
		FROM service_tokens
		WHERE token_hash = $1
		  AND (expires_at IS NULL OR expires_at > $2)
		LIMIT 1
	`

	var token domain.ServiceToken
	err := r.db.QueryRowContext(ctx, query, hashStr, time.Now()).Scan(
		&token.ID,
		&token.Name,
		&token.TokenHash,
		&token.UserID,
		&token.Abilities,
		&token.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("token not found")
		}
		return nil, fmt.Errorf("lookup service token: %w", err)
	}

	return &token, nil
}
