package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/auth"
	"github.com/dmitrijs2005/accounts/internal/server/blobstore"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/accesstokens"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/users"
	"github.com/dmitrijs2005/accounts/internal/server/sessions"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// memDB backs the fake repositories. It enforces the same unique
// constraints as the real schema.
type memDB struct {
	mu     sync.Mutex
	users  map[string]*models.User
	tokens map[string]*models.AccessToken

	// skipExistsChecks makes ExistsUsername/ExistsEmail always report
	// false, as if a concurrent writer slipped in after the check.
	skipExistsChecks bool
	updateErr        error
	createTokenErr   error
	deleteUserErr    error
}

func newMemDB() *memDB {
	return &memDB{users: map[string]*models.User{}, tokens: map[string]*models.AccessToken{}}
}

func (m *memDB) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memDB) tokenCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

type fakeUsers struct{ m *memDB }

func clone(u *models.User) *models.User {
	c := *u
	return &c
}

func (f *fakeUsers) conflict(u *models.User) error {
	for id, other := range f.m.users {
		if id == u.ID {
			continue
		}
		if other.Username == u.Username {
			return &common.UniqueViolationError{Field: "username", Err: sql.ErrTxDone}
		}
		if other.Email == u.Email {
			return &common.UniqueViolationError{Field: "email", Err: sql.ErrTxDone}
		}
	}
	return nil
}

func (f *fakeUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if err := f.conflict(u); err != nil {
		return nil, err
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.m.users[u.ID] = clone(u)
	return u, nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	u, ok := f.m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	for _, u := range f.m.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) List(ctx context.Context) ([]*models.User, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	out := make([]*models.User, 0, len(f.m.users))
	for _, u := range f.m.users {
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeUsers) Update(ctx context.Context, u *models.User) (*models.User, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if f.m.updateErr != nil {
		return nil, f.m.updateErr
	}
	if _, ok := f.m.users[u.ID]; !ok {
		return nil, common.ErrorNotFound
	}
	if err := f.conflict(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = time.Now()
	f.m.users[u.ID] = clone(u)
	return u, nil
}

func (f *fakeUsers) Delete(ctx context.Context, id string) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if f.m.deleteUserErr != nil {
		return f.m.deleteUserErr
	}
	if _, ok := f.m.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.m.users, id)
	return nil
}

func (f *fakeUsers) ExistsUsername(ctx context.Context, username, exceptID string) (bool, error) {
	return f.exists(func(u *models.User) bool { return u.Username == username }, exceptID), nil
}

func (f *fakeUsers) ExistsEmail(ctx context.Context, email, exceptID string) (bool, error) {
	return f.exists(func(u *models.User) bool { return u.Email == email }, exceptID), nil
}

func (f *fakeUsers) exists(match func(*models.User) bool, exceptID string) bool {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if f.m.skipExistsChecks {
		return false
	}
	for id, u := range f.m.users {
		if id != exceptID && match(u) {
			return true
		}
	}
	return false
}

type fakeTokens struct{ m *memDB }

func (f *fakeTokens) Create(ctx context.Context, userID, name, hash string) (*models.AccessToken, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	if f.m.createTokenErr != nil {
		return nil, f.m.createTokenErr
	}
	t := &models.AccessToken{ID: uuid.NewString(), UserID: userID, Name: name, TokenHash: hash, CreatedAt: time.Now()}
	f.m.tokens[hash] = t
	return t, nil
}

func (f *fakeTokens) FindByHash(ctx context.Context, hash string) (*models.AccessToken, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	t, ok := f.m.tokens[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeTokens) Touch(ctx context.Context, id string) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	now := time.Now()
	for _, t := range f.m.tokens {
		if t.ID == id {
			t.LastUsedAt = &now
		}
	}
	return nil
}

func (f *fakeTokens) DeleteByHash(ctx context.Context, hash string) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	delete(f.m.tokens, hash)
	return nil
}

func (f *fakeTokens) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	var n int64
	for h, t := range f.m.tokens {
		if t.UserID == userID {
			delete(f.m.tokens, h)
			n++
		}
	}
	return n, nil
}

type fakeRepoManager struct{ m *memDB }

func (r *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (r *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return &fakeUsers{r.m} }
func (r *fakeRepoManager) AccessTokens(dbx.DBTX) accesstokens.Repository {
	return &fakeTokens{r.m}
}

// fakeBlobs is an in-memory blobstore.Storage.
type fakeBlobs struct {
	mu       sync.Mutex
	objects  map[string][]byte
	storeErr error
	deleted  []string
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string][]byte{}} }

func (b *fakeBlobs) Store(ctx context.Context, data []byte, ext string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.storeErr != nil {
		return "", b.storeErr
	}
	ref := blobstore.NewRef(ext)
	b.objects[ref] = data
	return ref, nil
}

func (b *fakeBlobs) Delete(ctx context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, ref)
	b.deleted = append(b.deleted, ref)
	return nil
}

func (b *fakeBlobs) Exists(ctx context.Context, ref string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[ref]
	return ok, nil
}

func (b *fakeBlobs) URL(ref string) string { return "/storage/" + ref }

func (b *fakeBlobs) has(ref string) bool {
	ok, _ := b.Exists(context.Background(), ref)
	return ok
}

func (b *fakeBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

type env struct {
	svc      *AccountService
	tokens   *TokenIssuer
	mem      *memDB
	blobs    *fakeBlobs
	sessions *sessions.MemoryStore
	mock     sqlmock.Sqlmock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mem := newMemDB()
	rm := &fakeRepoManager{mem}
	log := logging.Nop()
	tokens := NewTokenIssuer(db, rm, []byte("test-secret"), log)
	blobs := newFakeBlobs()
	store := sessions.NewMemoryStore(time.Hour)

	svc := NewAccountService(AccountDeps{
		DB:             db,
		RepoManager:    rm,
		Tokens:         tokens,
		Sessions:       store,
		Blobs:          blobs,
		Hasher:         auth.NewHasher(bcrypt.MinCost),
		MaxAvatarBytes: 2048 * 1024,
		Logger:         log,
	})
	return &env{svc: svc, tokens: tokens, mem: mem, blobs: blobs, sessions: store, mock: mock}
}
