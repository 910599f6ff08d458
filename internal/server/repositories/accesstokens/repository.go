// Package accesstokens declares the repository contract for issued bearer
// tokens and its PostgreSQL implementation.
package accesstokens

import (
	"context"

	"github.com/dmitrijs2005/accounts/internal/server/models"
)

type Repository interface {
	// Create stores a token row for userID keyed by tokenHash.
	Create(ctx context.Context, userID, name, tokenHash string) (*models.AccessToken, error)

	// FindByHash returns common.ErrorNotFound when no row carries tokenHash.
	FindByHash(ctx context.Context, tokenHash string) (*models.AccessToken, error)

	// Touch records that the token was just used.
	Touch(ctx context.Context, id string) error

	// DeleteByHash revokes a single token. Deleting a missing token is not an error.
	DeleteByHash(ctx context.Context, tokenHash string) error

	// DeleteByUser revokes every token of userID and returns how many were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
