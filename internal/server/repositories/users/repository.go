// Package users declares the credential store contract for user records and
// its PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/accounts/internal/server/models"
)

// Repository persists users. Username and email uniqueness is enforced by
// the store itself; violations surface as *common.UniqueViolationError.
type Repository interface {
	// Create inserts user and fills in the generated ID and timestamps.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	// Update overwrites every mutable column of the row identified by user.ID.
	Update(ctx context.Context, user *models.User) (*models.User, error)
	Delete(ctx context.Context, id string) error

	// ExistsUsername and ExistsEmail ignore the row whose id equals exceptID
	// (pass "" to check against every user).
	ExistsUsername(ctx context.Context, username, exceptID string) (bool, error)
	ExistsEmail(ctx context.Context, email, exceptID string) (bool, error)
}
