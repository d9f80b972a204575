package handlers

import (
	"net/http"

	"github.com/ukydev/eventual/internal/middleware"
)

// SessionHandler exposes the identity carried by the caller's assertion.
type SessionHandler struct{}

// NewSessionHandler creates a new session handler
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// Get returns the identity attached by the auth middleware. Mount it behind
// middleware.RequireIdentity.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authorization header required", "")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}
