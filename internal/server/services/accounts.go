// Package services holds the account business logic. Every operation takes
// the caller's Identity explicitly; nothing reads a global "current user".
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/blobstore"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accounts/internal/server/sessions"
	"github.com/dmitrijs2005/accounts/internal/server/validation"
	"github.com/google/uuid"
)

// Identity is who is calling. UserID is set once a token or session has
// been resolved; Token or SessionID says which credential was used.
type Identity struct {
	UserID    string
	Token     string
	SessionID string
}

// PasswordHasher is satisfied by *auth.Hasher.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
	VerifyDummy(plain string)
}

type AccountService struct {
	db             *sql.DB
	repomanager    repomanager.RepositoryManager
	tokens         *TokenIssuer
	sessions       sessions.Store
	blobs          blobstore.Storage
	hasher         PasswordHasher
	maxAvatarBytes int64
	log            logging.Logger
}

type AccountDeps struct {
	DB             *sql.DB
	RepoManager    repomanager.RepositoryManager
	Tokens         *TokenIssuer
	Sessions       sessions.Store
	Blobs          blobstore.Storage
	Hasher         PasswordHasher
	MaxAvatarBytes int64
	Logger         logging.Logger
}

func NewAccountService(d AccountDeps) *AccountService {
	return &AccountService{
		db:             d.DB,
		repomanager:    d.RepoManager,
		tokens:         d.Tokens,
		sessions:       d.Sessions,
		blobs:          d.Blobs,
		hasher:         d.Hasher,
		maxAvatarBytes: d.MaxAvatarBytes,
		log:            d.Logger.With("module", "accounts"),
	}
}

// validator returns a Validator whose uniqueness lookups ignore exceptID.
func (s *AccountService) validator(exceptID string) *validation.Validator {
	users := s.repomanager.Users(s.db)
	return &validation.Validator{
		MaxAvatarBytes: s.maxAvatarBytes,
		Unique: func(ctx context.Context, field, value string) (bool, error) {
			switch field {
			case validation.FieldUsername:
				return users.ExistsUsername(ctx, value, exceptID)
			case validation.FieldEmail:
				return users.ExistsEmail(ctx, value, exceptID)
			}
			return false, nil
		},
	}
}

// storeAvatar saves an uploaded image and returns its ref.
func (s *AccountService) storeAvatar(ctx context.Context, up *validation.Upload) (string, error) {
	ext, ok := validation.ImageExt(up.Data)
	if !ok {
		return "", validation.FieldErr(validation.FieldAvatar, "The avatar field must be an image.")
	}
	ref, err := s.blobs.Store(ctx, up.Data, ext)
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return ref, nil
}

func (s *AccountService) discardBlob(ctx context.Context, ref string) {
	if err := s.blobs.Delete(ctx, ref); err != nil {
		s.log.Warn(ctx, "failed to delete blob", "ref", ref, "error", err)
	}
}

// writeError turns a constraint violation into the validation error the
// pre-check would have produced.
func writeError(err error) error {
	var uv *common.UniqueViolationError
	if errors.As(err, &uv) {
		return validation.FieldErr(uv.Field, validation.UniqueMessage(uv.Field))
	}
	return err
}

// Register creates an account. When wantToken is set a bearer token is
// issued in the same transaction as the user row.
func (s *AccountService) Register(ctx context.Context, in *validation.Input, wantToken bool) (*models.User, string, error) {
	in.Normalize()
	if err := s.validator("").Validate(ctx, validation.Rules, validation.ModeCreate, in); err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(*in.Password)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		Username:     *in.Username,
		Email:        *in.Email,
		PasswordHash: hash,
	}
	if in.Bio != nil && *in.Bio != "" {
		bio := *in.Bio
		user.Bio = &bio
	}

	var avatarRef string
	if in.Avatar != nil {
		if avatarRef, err = s.storeAvatar(ctx, in.Avatar); err != nil {
			return nil, "", err
		}
		user.AvatarRef = &avatarRef
	}

	var token string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).Create(ctx, user); err != nil {
			return err
		}
		if wantToken {
			var err error
			token, err = s.tokens.issue(ctx, tx, user.ID)
			return err
		}
		return nil
	})
	if err != nil {
		if avatarRef != "" {
			s.discardBlob(ctx, avatarRef)
		}
		return nil, "", writeError(err)
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)
	return user, token, nil
}

// Login checks credentials. Unknown emails and wrong passwords both return
// common.ErrInvalidCredentials after the same hashing work.
func (s *AccountService) Login(ctx context.Context, email, password string, wantToken bool) (*models.User, string, error) {
	email = validation.NormalizeEmail(email)
	in := &validation.Input{Email: &email, Password: &password}
	if err := s.validator("").Validate(ctx, validation.LoginRules, validation.ModeCreate, in); err != nil {
		return nil, "", err
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.VerifyDummy(password)
			return nil, "", common.ErrInvalidCredentials
		}
		return nil, "", err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, "", common.ErrInvalidCredentials
	}

	var token string
	if wantToken {
		if token, err = s.tokens.IssueToken(ctx, user); err != nil {
			return nil, "", err
		}
	}
	return user, token, nil
}

// StartSession opens a web session for user, discarding previousID so a
// session id never survives a change of identity.
func (s *AccountService) StartSession(ctx context.Context, user *models.User, previousID string) (*sessions.Session, error) {
	if previousID != "" {
		if err := s.sessions.Destroy(ctx, previousID); err != nil {
			s.log.Warn(ctx, "failed to drop previous session", "error", err)
		}
	}
	return s.sessions.Create(ctx, user.ID)
}

// AuthenticateToken resolves a bearer token into an Identity.
func (s *AccountService) AuthenticateToken(ctx context.Context, token string) (Identity, *models.User, error) {
	if token == "" {
		return Identity{}, nil, common.ErrUnauthenticated
	}
	user, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return Identity{}, nil, err
	}
	return Identity{UserID: user.ID, Token: token}, user, nil
}

// AuthenticateSession resolves a web session. Guest sessions and sessions of
// deleted users are unauthenticated.
func (s *AccountService) AuthenticateSession(ctx context.Context, sessionID string) (Identity, *models.User, error) {
	if sessionID == "" {
		return Identity{}, nil, common.ErrUnauthenticated
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return Identity{}, nil, common.ErrUnauthenticated
		}
		return Identity{}, nil, err
	}
	if sess.UserID == "" {
		return Identity{SessionID: sess.ID}, nil, common.ErrUnauthenticated
	}

	id := Identity{UserID: sess.UserID, SessionID: sess.ID}
	user, err := s.GetCurrentUser(ctx, id)
	if err != nil {
		return Identity{SessionID: sess.ID}, nil, err
	}
	return id, user, nil
}

func (s *AccountService) GetCurrentUser(ctx context.Context, id Identity) (*models.User, error) {
	if id.UserID == "" {
		return nil, common.ErrUnauthenticated
	}
	user, err := s.repomanager.Users(s.db).GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

func (s *AccountService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.repomanager.Users(s.db).List(ctx)
}

// GetUser returns common.ErrorNotFound for unknown and malformed ids alike.
func (s *AccountService) GetUser(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// UpdateProfile applies the fields present in in. A blank password keeps
// the stored hash and a blank bio clears it. A new avatar is stored before
// the row is written and the old one removed only after the write succeeds.
func (s *AccountService) UpdateProfile(ctx context.Context, id Identity, in *validation.Input) (*models.User, error) {
	current, err := s.GetCurrentUser(ctx, id)
	if err != nil {
		return nil, err
	}

	in.Normalize()
	if err := s.validator(current.ID).Validate(ctx, validation.Rules, validation.ModeUpdate, in); err != nil {
		return nil, err
	}

	updated := *current
	if in.Username != nil {
		updated.Username = *in.Username
	}
	if in.Email != nil {
		updated.Email = *in.Email
	}
	if in.Password != nil && strings.TrimSpace(*in.Password) != "" {
		if updated.PasswordHash, err = s.hasher.Hash(*in.Password); err != nil {
			return nil, err
		}
	}
	if in.Bio != nil {
		if *in.Bio == "" {
			updated.Bio = nil
		} else {
			bio := *in.Bio
			updated.Bio = &bio
		}
	}

	var newRef string
	if in.Avatar != nil {
		if newRef, err = s.storeAvatar(ctx, in.Avatar); err != nil {
			return nil, err
		}
		updated.AvatarRef = &newRef
	}

	result, err := s.repomanager.Users(s.db).Update(ctx, &updated)
	if err != nil {
		if newRef != "" {
			s.discardBlob(ctx, newRef)
		}
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnauthenticated
		}
		return nil, writeError(err)
	}

	if newRef != "" && current.HasAvatar() {
		s.discardBlob(ctx, *current.AvatarRef)
	}

	s.log.Info(ctx, "profile updated", "user_id", result.ID)
	return result, nil
}

// DeleteAccount removes the user and every credential pointing at it.
// Tokens and the row go in one transaction; the avatar and web sessions
// are cleaned up afterwards.
func (s *AccountService) DeleteAccount(ctx context.Context, id Identity) error {
	user, err := s.GetCurrentUser(ctx, id)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.tokens.revokeAll(ctx, tx, user.ID); err != nil {
			return err
		}
		return s.repomanager.Users(tx).Delete(ctx, user.ID)
	})
	if err != nil {
		return err
	}

	if user.HasAvatar() {
		s.discardBlob(ctx, *user.AvatarRef)
	}
	if err := s.sessions.DestroyAll(ctx, user.ID); err != nil {
		s.log.Warn(ctx, "failed to destroy sessions", "user_id", user.ID, "error", err)
	}

	s.log.Info(ctx, "account deleted", "user_id", user.ID)
	return nil
}

// Logout ends the caller's credentials. For bearer tokens everywhere=true
// revokes every token of the user, otherwise only the presented one. A
// web session is always just destroyed.
func (s *AccountService) Logout(ctx context.Context, id Identity, everywhere bool) error {
	if id.SessionID != "" {
		if err := s.sessions.Destroy(ctx, id.SessionID); err != nil {
			return err
		}
	}

	if id.Token == "" {
		return nil
	}
	if everywhere && id.UserID != "" {
		n, err := s.tokens.RevokeAll(ctx, id.UserID)
		if err != nil {
			return err
		}
		s.log.Info(ctx, "tokens revoked", "user_id", id.UserID, "count", n)
		return nil
	}
	return s.tokens.Revoke(ctx, id.Token)
}

// SetFlash and PopFlash proxy the session store for the web layer.
func (s *AccountService) SetFlash(ctx context.Context, sessionID, msg string) error {
	return s.sessions.SetFlash(ctx, sessionID, msg)
}

func (s *AccountService) PopFlash(ctx context.Context, sessionID string) (string, error) {
	return s.sessions.PopFlash(ctx, sessionID)
}

// GuestSession opens an anonymous session, used to carry flash messages.
func (s *AccountService) GuestSession(ctx context.Context) (*sessions.Session, error) {
	return s.sessions.Create(ctx, "")
}

// AvatarURL returns the public URL of the user's picture, or "".
func (s *AccountService) AvatarURL(u *models.User) string {
	if !u.HasAvatar() {
		return ""
	}
	return s.blobs.URL(*u.AvatarRef)
}
