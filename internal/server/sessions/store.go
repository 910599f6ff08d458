// Package sessions keeps server-side web sessions. A session may belong to a
// signed-in user or to a guest; both can carry a one-shot flash message.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accounts/internal/common"
)

// Session is the state referenced by the session cookie. UserID is empty
// for guests.
type Session struct {
	ID     string
	UserID string
}

// Store is implemented by the Redis and in-memory backends. Lookups of
// unknown or expired ids return common.ErrorNotFound. Every successful Get
// extends the session lifetime by the store TTL.
type Store interface {
	Create(ctx context.Context, userID string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Destroy(ctx context.Context, id string) error
	DestroyAll(ctx context.Context, userID string) error
	SetFlash(ctx context.Context, id, message string) error
	// PopFlash returns and clears the pending flash ("" when none).
	PopFlash(ctx context.Context, id string) (string, error)
}

const idBytes = 32

// DefaultTTL is used when a store is built with a non-positive TTL.
const DefaultTTL = 120 * time.Minute

func newID() (string, error) {
	return common.MakeRandHexString(idBytes)
}
