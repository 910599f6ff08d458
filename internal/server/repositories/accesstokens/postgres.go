package accesstokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/server/models"
)

// PostgresRepository works over dbx.DBTX, so it can run inside a transaction.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID, name, tokenHash string) (*models.AccessToken, error) {
	query := `
		INSERT INTO access_tokens (user_id, name, token_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	t := &models.AccessToken{UserID: userID, Name: name, TokenHash: tokenHash}
	if err := r.db.QueryRowContext(ctx, query, userID, name, tokenHash).Scan(&t.ID, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.AccessToken, error) {
	query := `
		SELECT id, user_id, name, token_hash, created_at, last_used_at
		FROM access_tokens
		WHERE token_hash = $1
	`
	t := &models.AccessToken{}
	var lastUsed sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.CreatedAt, &lastUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}
	return t, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	query := `
		UPDATE access_tokens
		SET last_used_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByHash(ctx context.Context, tokenHash string) error {
	query := `
		DELETE FROM access_tokens
		WHERE token_hash = $1
	`
	if _, err := r.db.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	query := `
		DELETE FROM access_tokens
		WHERE user_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
