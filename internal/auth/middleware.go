package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"openbank-cache/internal/apperr"
	"openbank-cache/internal/httpx"
	"openbank-cache/internal/observability"
)

type identityKey struct{}

// UserLookup is the slice of IdentityStore the gate needs.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
}

type Gate struct {
	tokens *TokenService
	users  UserLookup
	logger *observability.Logger
}

func NewGate(tokens *TokenService, users UserLookup, logger *observability.Logger) *Gate {
	return &Gate{tokens: tokens, users: users, logger: logger}
}

// RequireUser rejects the request unless it carries a valid bearer token
// for an existing user, then stores the Identity in the request context.
func (g *Gate) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := bearerToken(r)
		if !ok {
			httpx.WriteError(w, r, g.logger, apperr.New(apperr.NotAuthorized, "not authorized"))
			return
		}

		userID, err := g.tokens.Verify(tokenStr)
		if err != nil {
			g.logger.Debug("bearer_rejected", map[string]any{"reason": err.Error()})
			httpx.WriteError(w, r, g.logger, apperr.Wrap(apperr.NotAuthorized, "not authorized", err))
			return
		}

		user, err := g.users.FindByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				g.logger.Debug("bearer_unknown_user", map[string]any{"user_id": userID.String()})
				httpx.WriteError(w, r, g.logger, apperr.Wrap(apperr.NotAuthorized, "not authorized", err))
				return
			}
			httpx.WriteError(w, r, g.logger, err)
			return
		}
		if !user.Active {
			g.logger.Debug("bearer_inactive_user", map[string]any{"user_id": userID.String()})
			httpx.WriteError(w, r, g.logger, apperr.New(apperr.NotAuthorized, "not authorized"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{UserID: userID})))
	})
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
