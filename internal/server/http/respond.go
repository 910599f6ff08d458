package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/dmitrijs2005/accounts/internal/server/models"
	"github.com/dmitrijs2005/accounts/internal/server/validation"
)

// userView is the public shape of a user. The password hash never leaves
// the service.
type userView struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Bio            *string   `json:"bio"`
	ProfilePicture *string   `json:"profile_picture"`
	AvatarURL      *string   `json:"avatar_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r *Router) view(u *models.User) *userView {
	v := &userView{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Bio:            u.Bio,
		ProfilePicture: u.AvatarRef,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
	if url := r.accounts.AvatarURL(u); url != "" {
		v.AvatarURL = &url
	}
	return v
}

type messageResponse struct {
	Message string `json:"message"`
}

type authResponse struct {
	Message string    `json:"message"`
	User    *userView `json:"user"`
	Token   string    `json:"token"`
}

type validationResponse struct {
	Message string                  `json:"message"`
	Errors  []validation.FieldError `json:"errors"`
	Fields  map[string][]string     `json:"fields"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

const (
	msgInvalidData        = "The given data was invalid."
	msgInvalidCredentials = "Invalid credentials."
	msgUnauthenticated    = "Unauthenticated."
	msgForbidden          = "This action is unauthorized."
	msgNotFound           = "Not found."
	msgInternal           = "Internal server error."
)

// writeServiceError maps service errors onto status codes. Unexpected errors
// are logged in full and answered with a generic message.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Message: msgInvalidData,
			Errors:  verr.Fields,
			Fields:  verr.Map(),
		})
	case errors.Is(err, common.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, msgInvalidCredentials)
	case errors.Is(err, common.ErrUnauthenticated):
		writeMessage(w, http.StatusUnauthorized, msgUnauthenticated)
	case errors.Is(err, common.ErrForbidden):
		writeMessage(w, http.StatusForbidden, msgForbidden)
	case errors.Is(err, common.ErrorNotFound):
		writeMessage(w, http.StatusNotFound, msgNotFound)
	default:
		r.log.Error(req.Context(), "request failed", "path", req.URL.Path, "error", err)
		writeMessage(w, http.StatusInternalServerError, msgInternal)
	}
}
