package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ayusman/fastcheck/internal/backend"
)

// Auth manages the backend session on behalf of the local UI.
type Auth interface {
	Login(ctx context.Context, creds backend.Credentials) (backend.Token, error)
	Signup(ctx context.Context, req backend.SignupRequest) error
	Logout() error
	User() string
	Active() bool
}

// AuthHandler proxies login and signup to the backend and reports the
// session state. Tokens never leave the process.
type AuthHandler struct {
	auth Auth
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth Auth) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type sessionResponse struct {
	Active bool   `json:"active"`
	User   string `json:"user,omitempty"`
}

// ServeHTTP routes
//
//	GET  /api/auth/session
//	POST /api/auth/login
//	POST /api/auth/signup
//	POST /api/auth/logout
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth"), "/")

	if action == "session" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.session(w)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "login":
		h.login(w, r)
	case "signup":
		h.signup(w, r)
	case "logout":
		if err := h.auth.Logout(); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to log out")
			return
		}
		h.session(w)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *AuthHandler) session(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, sessionResponse{Active: h.auth.Active(), User: h.auth.User()})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var creds backend.Credentials
	if err := decode(r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if _, err := h.auth.Login(r.Context(), creds); err != nil {
		writeBackendError(w, err)
		return
	}
	h.session(w)
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req backend.SignupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.auth.Signup(r.Context(), req); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// writeBackendError maps a backend client error onto a local response:
// input validation is a 400, backend client errors keep their status and
// anything else is a bad gateway.
func writeBackendError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
