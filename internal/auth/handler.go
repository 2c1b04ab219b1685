package auth

import (
	"net/http"

	"openbank-cache/internal/apperr"
	"openbank-cache/internal/httpx"
	"openbank-cache/internal/observability"
)

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body SignupInput
	if err := httpx.DecodeJSON(w, r, &body); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	user, err := h.service.Signup(r.Context(), body)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user_signed_up", map[string]any{"user_id": user.ID.String()})
	httpx.WriteJSON(w, http.StatusOK, user.Profile())
}

// Login expects HTTP Basic credentials.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		h.logger.Debug("login_missing_basic_auth", nil)
		httpx.WriteError(w, r, h.logger, apperr.New(apperr.InvalidCredentials, "invalid credentials"))
		return
	}

	result, err := h.service.Login(r.Context(), username, password)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.logger, apperr.New(apperr.NotAuthorized, "not authorized"))
		return
	}

	user, err := h.service.Me(r.Context(), identity.UserID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, user.Profile())
}
