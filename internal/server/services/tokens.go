package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/cryptox"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/auth"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
)

// TokenName labels rows created for API logins and registrations.
const TokenName = "auth_token"

const tokenIDBytes = 32

// TokenIssuer mints and resolves bearer tokens. A token is a signed JWT whose
// jti names a server-side row; deleting the row revokes the token.
type TokenIssuer struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	secret      []byte
	log         logging.Logger
}

func NewTokenIssuer(db *sql.DB, m repomanager.RepositoryManager, secret []byte, l logging.Logger) *TokenIssuer {
	return &TokenIssuer{db: db, repomanager: m, secret: secret, log: l.With("module", "tokens")}
}

func hashTokenID(id string) string {
	return cryptox.Fingerprint(id)
}

// IssueToken creates a token for user.
func (t *TokenIssuer) IssueToken(ctx context.Context, user *models.User) (string, error) {
	return t.issue(ctx, t.db, user.ID)
}

func (t *TokenIssuer) issue(ctx context.Context, db dbx.DBTX, userID string) (string, error) {
	tokenID, err := common.MakeRandHexString(tokenIDBytes)
	if err != nil {
		return "", fmt.Errorf("token id: %w", err)
	}

	if _, err := t.repomanager.AccessTokens(db).Create(ctx, userID, TokenName, hashTokenID(tokenID)); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	token, err := auth.GenerateToken(userID, tokenID, t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Resolve returns the owner of token, or common.ErrUnauthenticated when the
// token is malformed, revoked or its user is gone.
func (t *TokenIssuer) Resolve(ctx context.Context, token string) (*models.User, error) {
	userID, tokenID, err := auth.ParseToken(token, t.secret)
	if err != nil {
		return nil, common.ErrUnauthenticated
	}

	row, err := t.repomanager.AccessTokens(t.db).FindByHash(ctx, hashTokenID(tokenID))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnauthenticated
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	if row.UserID != userID {
		return nil, common.ErrUnauthenticated
	}

	user, err := t.repomanager.Users(t.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnauthenticated
		}
		return nil, fmt.Errorf("load token owner: %w", err)
	}

	if err := t.repomanager.AccessTokens(t.db).Touch(ctx, row.ID); err != nil {
		t.log.Warn(ctx, "failed to record token use", "token_id", row.ID, "error", err)
	}
	return user, nil
}

// Revoke deletes a single token. Unknown or already revoked tokens are a no-op.
func (t *TokenIssuer) Revoke(ctx context.Context, token string) error {
	_, tokenID, err := auth.ParseToken(token, t.secret)
	if err != nil {
		return nil
	}
	if err := t.repomanager.AccessTokens(t.db).DeleteByHash(ctx, hashTokenID(tokenID)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeAll deletes every token of userID.
func (t *TokenIssuer) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return t.revokeAll(ctx, t.db, userID)
}

func (t *TokenIssuer) revokeAll(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	n, err := t.repomanager.AccessTokens(db).DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke tokens: %w", err)
	}
	return n, nil
}
