// Package httpx exposes the account service over HTTP: a JSON API
// authenticated with bearer tokens and server-rendered pages authenticated
// with a session cookie.
package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/services"
	"github.com/dmitrijs2005/accounts/internal/server/sessions"
	"github.com/dmitrijs2005/accounts/internal/server/validation"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Accounts is the part of *services.AccountService the handlers use.
type Accounts interface {
	Register(ctx context.Context, in *validation.Input, wantToken bool) (*models.User, string, error)
	Login(ctx context.Context, email, password string, wantToken bool) (*models.User, string, error)
	StartSession(ctx context.Context, user *models.User, previousID string) (*sessions.Session, error)
	GuestSession(ctx context.Context) (*sessions.Session, error)
	AuthenticateToken(ctx context.Context, token string) (services.Identity, *models.User, error)
	AuthenticateSession(ctx context.Context, sessionID string) (services.Identity, *models.User, error)
	GetCurrentUser(ctx context.Context, id services.Identity) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id services.Identity, in *validation.Input) (*models.User, error)
	DeleteAccount(ctx context.Context, id services.Identity) error
	Logout(ctx context.Context, id services.Identity, everywhere bool) error
	SetFlash(ctx context.Context, sessionID, msg string) error
	PopFlash(ctx context.Context, sessionID string) (string, error)
	AvatarURL(u *models.User) string
}

type Options struct {
	Accounts Accounts
	Logger   logging.Logger

	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration

	MaxAvatarBytes int64

	// StaticDir, when set, is served under StaticPrefix (local blob storage).
	StaticDir    string
	StaticPrefix string

	// Ping reports dependency health for /healthz.
	Ping func(ctx context.Context) error

	// Registerer receives the request metrics; nil uses the default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

type Router struct {
	mux      *mux.Router
	accounts Accounts
	log      logging.Logger
	opts     Options
	pages    *pages
	metrics  *metrics
}

func NewRouter(opts Options) (*Router, error) {
	if opts.CookieName == "" {
		opts.CookieName = "accounts_session"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = sessions.DefaultTTL
	}
	if opts.StaticPrefix == "" {
		opts.StaticPrefix = "/storage"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	p, err := loadPages()
	if err != nil {
		return nil, err
	}

	r := &Router{
		mux:      mux.NewRouter(),
		accounts: opts.Accounts,
		log:      opts.Logger.With("module", "http"),
		opts:     opts,
		pages:    p,
		metrics:  newMetrics(opts.Registerer),
	}
	r.routes()
	return r, nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) routes() {
	r.mux.Use(r.requestID, r.logRequests, r.instrument)

	r.mux.HandleFunc("/healthz", r.handleHealthz).Methods(http.MethodGet)
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	if r.opts.StaticDir != "" {
		prefix := strings.TrimRight(r.opts.StaticPrefix, "/") + "/"
		r.mux.PathPrefix(prefix).Handler(http.StripPrefix(prefix, http.FileServer(http.Dir(r.opts.StaticDir)))).
			Methods(http.MethodGet, http.MethodHead)
	}

	// JSON API
	r.mux.HandleFunc("/users/login", r.handleAPILogin).Methods(http.MethodPost)
	r.mux.HandleFunc("/users/register", r.handleAPIRegister).Methods(http.MethodPost)
	r.mux.Handle("/logout/logout", r.requireToken(r.handleAPILogout)).Methods(http.MethodPost)
	r.mux.Handle("/users/logout", r.requireToken(r.handleAPILogout)).Methods(http.MethodPost)
	r.mux.Handle("/users", r.requireToken(r.handleListUsers)).Methods(http.MethodGet)
	r.mux.Handle("/users/me", r.requireToken(r.handleMe)).Methods(http.MethodGet)
	r.mux.Handle("/users/{id}", r.requireToken(r.handleGetUser)).Methods(http.MethodGet)
	r.mux.Handle("/users/{id}", r.requireToken(r.handleUpdateUser)).Methods(http.MethodPatch)
	r.mux.Handle("/users/{id}", r.requireToken(r.handleDeleteUser)).Methods(http.MethodDelete)

	// Web pages
	r.mux.Handle("/", r.withSession(r.handleHome)).Methods(http.MethodGet)
	r.mux.Handle("/login", r.withSession(r.handleLoginForm)).Methods(http.MethodGet)
	r.mux.Handle("/login", r.withSession(r.handleLoginSubmit)).Methods(http.MethodPost)
	r.mux.Handle("/register", r.withSession(r.handleRegisterForm)).Methods(http.MethodGet)
	r.mux.Handle("/register", r.withSession(r.handleRegisterSubmit)).Methods(http.MethodPost)
	r.mux.Handle("/profile", r.withSession(r.requireLogin(r.handleProfile))).Methods(http.MethodGet)
	r.mux.Handle("/profile", r.withSession(r.requireLogin(r.handleProfileUpdate))).Methods(http.MethodPost)
	r.mux.Handle("/profile/delete", r.withSession(r.requireLogin(r.handleProfileDelete))).Methods(http.MethodPost)
	r.mux.Handle("/logout", r.withSession(r.handleWebLogout)).Methods(http.MethodGet)

	r.mux.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found.")
	})
	r.mux.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if r.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := r.opts.Ping(ctx); err != nil {
			r.log.Warn(ctx, "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
