package httpx

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/services"
	"github.com/dmitrijs2005/accounts/internal/server/validation"
)

const ctxKeyWeb contextKey = "web"

// webState is the session-derived caller of a page request. User is nil
// for visitors who are not signed in; SessionID may still name a guest
// session carrying a flash message.
type webState struct {
	Identity  services.Identity
	User      *models.User
	SessionID string
}

func webFromContext(ctx context.Context) webState {
	st, _ := ctx.Value(ctxKeyWeb).(webState)
	return st
}

type webUser struct {
	Username  string
	Email     string
	Bio       string
	AvatarURL string
}

type pageData struct {
	Title     string
	Flash     string
	User      *webUser
	Errors    map[string]string
	ErrorList []validation.FieldError
	Old       map[string]string
}

func (r *Router) webUser(u *models.User) *webUser {
	if u == nil {
		return nil
	}
	return &webUser{
		Username:  u.Username,
		Email:     u.Email,
		Bio:       deref(u.Bio),
		AvatarURL: r.accounts.AvatarURL(u),
	}
}

func (r *Router) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.opts.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(r.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// withSession resolves the session cookie, if any, into a webState.
func (r *Router) withSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var st webState
		if c, err := req.Cookie(r.opts.CookieName); err == nil && c.Value != "" {
			id, user, err := r.accounts.AuthenticateSession(req.Context(), c.Value)
			switch {
			case err == nil:
				st = webState{Identity: id, User: user, SessionID: id.SessionID}
			case errors.Is(err, common.ErrUnauthenticated):
				st = webState{SessionID: id.SessionID}
			default:
				r.serverError(w, req, err)
				return
			}
		}
		next(w, req.WithContext(context.WithValue(req.Context(), ctxKeyWeb, st)))
	})
}

func (r *Router) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if webFromContext(req.Context()).User == nil {
			r.flash(w, req, "You must be logged in.")
			http.Redirect(w, req, "/login", http.StatusSeeOther)
			return
		}
		next(w, req)
	}
}

// flash queues msg for the next page view, opening a guest session when
// the visitor has none.
func (r *Router) flash(w http.ResponseWriter, req *http.Request, msg string) {
	ctx := req.Context()
	if sid := webFromContext(ctx).SessionID; sid != "" {
		err := r.accounts.SetFlash(ctx, sid, msg)
		if err == nil {
			return
		}
		if !errors.Is(err, common.ErrorNotFound) {
			r.log.Warn(ctx, "failed to set flash", "error", err)
			return
		}
	}

	sess, err := r.accounts.GuestSession(ctx)
	if err != nil {
		r.log.Warn(ctx, "failed to open guest session", "error", err)
		return
	}
	r.setSessionCookie(w, sess.ID)
	if err := r.accounts.SetFlash(ctx, sess.ID, msg); err != nil {
		r.log.Warn(ctx, "failed to set flash", "error", err)
	}
}

func (r *Router) render(w http.ResponseWriter, req *http.Request, status int, page string, data *pageData) {
	ctx := req.Context()
	st := webFromContext(ctx)
	if data.User == nil {
		data.User = r.webUser(st.User)
	}
	if data.Flash == "" && st.SessionID != "" {
		msg, err := r.accounts.PopFlash(ctx, st.SessionID)
		if err != nil {
			r.log.Warn(ctx, "failed to read flash", "error", err)
		}
		data.Flash = msg
	}

	var buf bytes.Buffer
	if err := r.pages.render(&buf, page, data); err != nil {
		r.serverError(w, req, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (r *Router) serverError(w http.ResponseWriter, req *http.Request, err error) {
	r.log.Error(req.Context(), "page failed", "path", req.URL.Path, "error", err)
	http.Error(w, msgInternal, http.StatusInternalServerError)
}

// formState turns a failed submission into template data. Passwords are
// never echoed back.
func formState(in *validation.Input, err error) *pageData {
	data := &pageData{
		Old: map[string]string{
			validation.FieldUsername: deref(in.Username),
			validation.FieldEmail:    deref(in.Email),
			validation.FieldBio:      deref(in.Bio),
		},
		Errors: map[string]string{},
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		data.ErrorList = verr.Fields
		for _, f := range verr.Fields {
			if _, seen := data.Errors[f.Field]; !seen {
				data.Errors[f.Field] = f.Message
			}
		}
	}
	return data
}

func (r *Router) handleHome(w http.ResponseWriter, req *http.Request) {
	r.render(w, req, http.StatusOK, "home", &pageData{Title: "Home"})
}

func (r *Router) handleLoginForm(w http.ResponseWriter, req *http.Request) {
	if webFromContext(req.Context()).User != nil {
		http.Redirect(w, req, "/profile", http.StatusSeeOther)
		return
	}
	r.render(w, req, http.StatusOK, "login", &pageData{Title: "Log in"})
}

func (r *Router) handleLoginSubmit(w http.ResponseWriter, req *http.Request) {
	in, err := r.parseInput(w, req)
	if err != nil {
		writeInputError(w, err)
		return
	}

	user, _, err := r.accounts.Login(req.Context(), deref(in.Email), deref(in.Password), false)
	if err != nil {
		data := formState(in, err)
		data.Title = "Log in"
		var verr *validation.Error
		switch {
		case errors.As(err, &verr):
			r.render(w, req, http.StatusUnprocessableEntity, "login", data)
		case errors.Is(err, common.ErrInvalidCredentials):
			data.ErrorList = []validation.FieldError{{Field: validation.FieldEmail, Message: msgInvalidCredentials}}
			r.render(w, req, http.StatusUnauthorized, "login", data)
		default:
			r.serverError(w, req, err)
		}
		return
	}

	r.signIn(w, req, user, "Login successful!")
}

// signIn opens a fresh session for user and sends them to their profile.
func (r *Router) signIn(w http.ResponseWriter, req *http.Request, user *models.User, msg string) {
	ctx := req.Context()
	sess, err := r.accounts.StartSession(ctx, user, webFromContext(ctx).SessionID)
	if err != nil {
		r.serverError(w, req, err)
		return
	}
	r.setSessionCookie(w, sess.ID)
	if err := r.accounts.SetFlash(ctx, sess.ID, msg); err != nil {
		r.log.Warn(ctx, "failed to set flash", "error", err)
	}
	http.Redirect(w, req, "/profile", http.StatusSeeOther)
}

func (r *Router) handleRegisterForm(w http.ResponseWriter, req *http.Request) {
	r.render(w, req, http.StatusOK, "register", &pageData{Title: "Register"})
}

func (r *Router) handleRegisterSubmit(w http.ResponseWriter, req *http.Request) {
	in, err := r.parseInput(w, req)
	if err != nil {
		writeInputError(w, err)
		return
	}

	user, _, err := r.accounts.Register(req.Context(), in, false)
	if err != nil {
		var verr *validation.Error
		if !errors.As(err, &verr) {
			r.serverError(w, req, err)
			return
		}
		data := formState(in, err)
		data.Title = "Register"
		r.render(w, req, http.StatusUnprocessableEntity, "register", data)
		return
	}

	r.signIn(w, req, user, "Account created successfully.")
}

func (r *Router) handleProfile(w http.ResponseWriter, req *http.Request) {
	u := webFromContext(req.Context()).User
	r.render(w, req, http.StatusOK, "profile", &pageData{
		Title: "Profile",
		Old: map[string]string{
			validation.FieldUsername: u.Username,
			validation.FieldEmail:    u.Email,
			validation.FieldBio:      deref(u.Bio),
		},
	})
}

func (r *Router) handleProfileUpdate(w http.ResponseWriter, req *http.Request) {
	in, err := r.parseInput(w, req)
	if err != nil {
		writeInputError(w, err)
		return
	}

	st := webFromContext(req.Context())
	if _, err := r.accounts.UpdateProfile(req.Context(), st.Identity, in); err != nil {
		var verr *validation.Error
		switch {
		case errors.As(err, &verr):
			data := formState(in, err)
			data.Title = "Profile"
			r.render(w, req, http.StatusUnprocessableEntity, "profile", data)
		case errors.Is(err, common.ErrUnauthenticated):
			http.Redirect(w, req, "/login", http.StatusSeeOther)
		default:
			r.serverError(w, req, err)
		}
		return
	}

	r.flash(w, req, "Profile updated.")
	http.Redirect(w, req, "/profile", http.StatusSeeOther)
}

func (r *Router) handleProfileDelete(w http.ResponseWriter, req *http.Request) {
	st := webFromContext(req.Context())
	if err := r.accounts.DeleteAccount(req.Context(), st.Identity); err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			http.Redirect(w, req, "/login", http.StatusSeeOther)
			return
		}
		r.serverError(w, req, err)
		return
	}

	r.flash(w, req, "Account deleted successfully.")
	http.Redirect(w, req, "/register", http.StatusSeeOther)
}

func (r *Router) handleWebLogout(w http.ResponseWriter, req *http.Request) {
	st := webFromContext(req.Context())
	if st.User != nil {
		if err := r.accounts.Logout(req.Context(), st.Identity, false); err != nil {
			r.serverError(w, req, err)
			return
		}
		r.flash(w, req, "Logout successful.")
	}
	http.Redirect(w, req, "/", http.StatusSeeOther)
}
