package httpx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/services"
	"github.com/dmitrijs2005/accounts/internal/server/sessions"
	"github.com/dmitrijs2005/accounts/internal/server/validation"
)

type logoutCall struct {
	id         services.Identity
	everywhere bool
}

// fakeAccounts keeps users and tokens in maps and uses a real memory
// session store, so cookie and flash handling run end to end.
type fakeAccounts struct {
	mu        sync.Mutex
	sessions  *sessions.MemoryStore
	users     map[string]*models.User
	passwords map[string]string
	tokens    map[string]string
	nextID    int

	registerErr error
	updateErr   error
	deleteErr   error

	lastUpdate *validation.Input
	logouts    []logoutCall
	deleted    []string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		sessions:  sessions.NewMemoryStore(time.Hour),
		users:     map[string]*models.User{},
		passwords: map[string]string{},
		tokens:    map[string]string{},
	}
}

func (f *fakeAccounts) addUser(username, email, password string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &models.User{
		ID:           fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID),
		Username:     username,
		Email:        email,
		PasswordHash: "hash:" + password,
		CreatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.users[u.ID] = u
	f.passwords[email] = password
	return u
}

func (f *fakeAccounts) issue(u *models.User) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok := "tok-" + u.ID
	f.tokens[tok] = u.ID
	return tok
}

func (f *fakeAccounts) Register(ctx context.Context, in *validation.Input, wantToken bool) (*models.User, string, error) {
	if f.registerErr != nil {
		return nil, "", f.registerErr
	}
	u := f.addUser(deref(in.Username), deref(in.Email), deref(in.Password))
	if !wantToken {
		return u, "", nil
	}
	return u, f.issue(u), nil
}

func (f *fakeAccounts) Login(ctx context.Context, email, password string, wantToken bool) (*models.User, string, error) {
	if email == "" {
		return nil, "", validation.FieldErr(validation.FieldEmail, "The email field is required.")
	}
	if password == "" {
		return nil, "", validation.FieldErr(validation.FieldPassword, "The password field is required.")
	}

	f.mu.Lock()
	pw, ok := f.passwords[email]
	var user *models.User
	for _, u := range f.users {
		if u.Email == email {
			user = u
		}
	}
	f.mu.Unlock()
	if !ok || pw != password || user == nil {
		return nil, "", common.ErrInvalidCredentials
	}
	if !wantToken {
		return user, "", nil
	}
	return user, f.issue(user), nil
}

func (f *fakeAccounts) StartSession(ctx context.Context, user *models.User, previousID string) (*sessions.Session, error) {
	if previousID != "" {
		_ = f.sessions.Destroy(ctx, previousID)
	}
	return f.sessions.Create(ctx, user.ID)
}

func (f *fakeAccounts) GuestSession(ctx context.Context) (*sessions.Session, error) {
	return f.sessions.Create(ctx, "")
}

func (f *fakeAccounts) AuthenticateToken(ctx context.Context, token string) (services.Identity, *models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, ok := f.tokens[token]
	if !ok {
		return services.Identity{}, nil, common.ErrUnauthenticated
	}
	u, ok := f.users[uid]
	if !ok {
		return services.Identity{}, nil, common.ErrUnauthenticated
	}
	return services.Identity{UserID: uid, Token: token}, u, nil
}

func (f *fakeAccounts) AuthenticateSession(ctx context.Context, sessionID string) (services.Identity, *models.User, error) {
	sess, err := f.sessions.Get(ctx, sessionID)
	if err != nil {
		return services.Identity{}, nil, common.ErrUnauthenticated
	}
	f.mu.Lock()
	u, ok := f.users[sess.UserID]
	f.mu.Unlock()
	if !ok {
		return services.Identity{SessionID: sess.ID}, nil, common.ErrUnauthenticated
	}
	return services.Identity{UserID: u.ID, SessionID: sess.ID}, u, nil
}

func (f *fakeAccounts) GetCurrentUser(ctx context.Context, id services.Identity) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id.UserID]
	if !ok {
		return nil, common.ErrUnauthenticated
	}
	return u, nil
}

func (f *fakeAccounts) ListUsers(ctx context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeAccounts) GetUser(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeAccounts) UpdateProfile(ctx context.Context, id services.Identity, in *validation.Input) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUpdate = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	u := f.users[id.UserID]
	if in.Username != nil {
		u.Username = *in.Username
	}
	if in.Bio != nil {
		bio := *in.Bio
		u.Bio = &bio
	}
	if in.Avatar != nil {
		ref := "profile_pictures/new.png"
		u.AvatarRef = &ref
	}
	return u, nil
}

func (f *fakeAccounts) DeleteAccount(ctx context.Context, id services.Identity) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	delete(f.users, id.UserID)
	f.deleted = append(f.deleted, id.UserID)
	f.mu.Unlock()
	return f.sessions.DestroyAll(ctx, id.UserID)
}

func (f *fakeAccounts) Logout(ctx context.Context, id services.Identity, everywhere bool) error {
	f.mu.Lock()
	f.logouts = append(f.logouts, logoutCall{id: id, everywhere: everywhere})
	f.mu.Unlock()
	if id.SessionID != "" {
		return f.sessions.Destroy(ctx, id.SessionID)
	}
	return nil
}

func (f *fakeAccounts) SetFlash(ctx context.Context, sessionID, msg string) error {
	return f.sessions.SetFlash(ctx, sessionID, msg)
}

func (f *fakeAccounts) PopFlash(ctx context.Context, sessionID string) (string, error) {
	return f.sessions.PopFlash(ctx, sessionID)
}

func (f *fakeAccounts) AvatarURL(u *models.User) string {
	if !u.HasAvatar() {
		return ""
	}
	return "/storage/" + *u.AvatarRef
}
