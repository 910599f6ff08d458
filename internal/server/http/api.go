package httpx

import (
	"net/http"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/gorilla/mux"
)

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (r *Router) handleAPILogin(w http.ResponseWriter, req *http.Request) {
	in, err := r.parseInput(w, req)
	if err != nil {
		writeInputError(w, err)
		return
	}
	user, token, err := r.accounts.Login(req.Context(), deref(in.Email), deref(in.Password), true)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Message: "Login successful.", User: r.view(user), Token: token})
}

func (r *Router) handleAPIRegister(w http.ResponseWriter, req *http.Request) {
	in, err := r.parseInput(w, req)
	if err != nil {
		writeInputError(w, err)
		return
	}

	user, token, err := r.accounts.Register(req.Context(), in, true)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Message: "User created successfully.", User: r.view(user), Token: token})
}

// handleAPILogout revokes every token of the caller unless ?scope=current
// asks for just the presented one.
func (r *Router) handleAPILogout(w http.ResponseWriter, req *http.Request) {
	info, _ := authFromContext(req.Context())
	everywhere := req.URL.Query().Get("scope") != "current"

	if err := r.accounts.Logout(req.Context(), info.Identity, everywhere); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logout successful.")
}

func (r *Router) handleListUsers(w http.ResponseWriter, req *http.Request) {
	users, err := r.accounts.ListUsers(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	out := make([]*userView, 0, len(users))
	for _, u := range users {
		out = append(out, r.view(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	info, _ := authFromContext(req.Context())
	user, err := r.accounts.GetCurrentUser(req.Context(), info.Identity)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, r.view(user))
}

func (r *Router) handleGetUser(w http.ResponseWriter, req *http.Request) {
	user, err := r.accounts.GetUser(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, r.view(user))
}

// ownTarget rejects requests that address another user's record.
func (r *Router) ownTarget(w http.ResponseWriter, req *http.Request) (authInfo, bool) {
	info, _ := authFromContext(req.Context())
	if mux.Vars(req)["id"] != info.Identity.UserID {
		r.writeServiceError(w, req, common.ErrForbidden)
		return info, false
	}
	return info, true
}

func (r *Router) handleUpdateUser(w http.ResponseWriter, req *http.Request) {
	info, ok := r.ownTarget(w, req)
	if !ok {
		return
	}
	in, err := r.parseInput(w, req)
	if err != nil {
		writeInputError(w, err)
		return
	}

	user, err := r.accounts.UpdateProfile(req.Context(), info.Identity, in)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, r.view(user))
}

func (r *Router) handleDeleteUser(w http.ResponseWriter, req *http.Request) {
	info, ok := r.ownTarget(w, req)
	if !ok {
		return
	}
	if err := r.accounts.DeleteAccount(req.Context(), info.Identity); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeMessage(w, http.StatusOK, "Account deleted successfully.")
}
