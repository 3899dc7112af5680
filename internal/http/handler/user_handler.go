package handler

import (
	"net/http"

	"github.com/sandeepkv93/checkin-gateway/internal/http/middleware"
	"github.com/sandeepkv93/checkin-gateway/internal/http/response"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/service"
)

type UserHandler struct {
	tokens service.TokenIssuer
}

func NewUserHandler(tokens service.TokenIssuer) *UserHandler {
	return &UserHandler{tokens: tokens}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user": session.User})
}

// RefreshToken issues a short-lived token carrying the signed-in profile.
func (h *UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	token, expiresAt, err := h.tokens.Sign(session.User)
	if err != nil {
		observability.Audit(r, "token.refresh", "failure", "sign_failed")
		response.Error(w, r, http.StatusInternalServerError, "TOKEN_SIGNING_FAILED", "could not issue token", nil)
		return
	}
	observability.RecordTokenIssued(r.Context(), h.tokens.Algorithm(), "refresh")
	response.JSON(w, r, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.UnixMilli(),
		"algorithm":  h.tokens.Algorithm(),
	})
}
