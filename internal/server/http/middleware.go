package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/services"
	"github.com/google/uuid"
)

type contextKey string

const (
	ctxKeyRequestID contextKey = "request-id"
	ctxKeyAuth      contextKey = "auth"
)

const requestIDHeader = "X-Request-ID"

// authInfo is the resolved caller of a request.
type authInfo struct {
	Identity services.Identity
	User     *models.User
}

func authFromContext(ctx context.Context) (authInfo, bool) {
	info, ok := ctx.Value(ctxKeyAuth).(authInfo)
	return info, ok
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func (r *Router) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), ctxKeyRequestID, id)))
	})
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, req)
		r.log.Info(req.Context(), "http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(req.Context()),
		)
	})
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], common.BearerScheme) {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

// requireToken resolves the bearer token and stores the caller in the
// request context.
func (r *Router) requireToken(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		token, err := bearerToken(req.Header.Get(common.AuthorizationHeaderName))
		if err != nil {
			r.log.Debug(req.Context(), "authorization header invalid", "error", err, "path", req.URL.Path)
			writeMessage(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}

		id, user, err := r.accounts.AuthenticateToken(req.Context(), token)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}

		ctx := context.WithValue(req.Context(), ctxKeyAuth, authInfo{Identity: id, User: user})
		next(w, req.WithContext(ctx))
	})
}
