// Package oauth completes the provider's authorization-code redirect.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"openbank-cache/internal/apperr"
	"openbank-cache/internal/auth"
	"openbank-cache/internal/httpx"
	"openbank-cache/internal/observability"
	"openbank-cache/internal/provider"
)

type StateVerifier interface {
	VerifyState(state string) (uuid.UUID, error)
}

type CredentialStore interface {
	UpdateCode(ctx context.Context, id uuid.UUID, code string) error
	UpdateAccessToken(ctx context.Context, id uuid.UUID, token string) error
}

type Exchanger interface {
	Exchange(ctx context.Context, code string) (string, error)
}

type Service struct {
	states    StateVerifier
	store     CredentialStore
	exchanger Exchanger
	logger    *observability.Logger
}

func NewService(states StateVerifier, store CredentialStore, exchanger Exchanger, logger *observability.Logger) *Service {
	return &Service{states: states, store: store, exchanger: exchanger, logger: logger}
}

// Complete stores the code for the user named by state, exchanges it and
// stores the resulting access token. The code is kept even when the
// exchange fails.
func (s *Service) Complete(ctx context.Context, code, state string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperr.New(apperr.InvalidInput, "missing code")
	}

	userID, err := s.states.VerifyState(strings.TrimSpace(state))
	if err != nil {
		return apperr.Wrap(apperr.NotAuthorized, "not authorized", err)
	}

	if err := s.store.UpdateCode(ctx, userID, code); err != nil {
		return s.storeError(err)
	}

	accessToken, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		var exErr *provider.ExchangeError
		if errors.As(err, &exErr) {
			s.logger.Warn("oauth_exchange_rejected", map[string]any{
				"user_id": userID.String(),
				"status":  exErr.Status,
			})
		}
		return apperr.Wrap(apperr.UpstreamExchangeFailed, "token exchange failed", err)
	}

	if err := s.store.UpdateAccessToken(ctx, userID, accessToken); err != nil {
		return s.storeError(err)
	}

	s.logger.Info("bank_connected", map[string]any{"user_id": userID.String()})
	return nil
}

func (s *Service) storeError(err error) error {
	if errors.Is(err, auth.ErrUserNotFound) {
		return apperr.Wrap(apperr.NotAuthorized, "not authorized", err)
	}
	return err
}

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Callback handles GET /callback?code=..&state=.. and echoes the code.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")

	if err := h.service.Complete(r.Context(), code, query.Get("state")); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"code": code})
}
