package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"openbank-cache/internal/apperr"
	"openbank-cache/internal/auth"
	"openbank-cache/internal/observability"
	"openbank-cache/internal/provider"
)

type Store interface {
	Count(ctx context.Context, userID uuid.UUID) (int64, error)
	Insert(ctx context.Context, batch Batch) error
	All(ctx context.Context, userID uuid.UUID) ([]byte, error)
	Since(ctx context.Context, userID uuid.UUID, since time.Time) ([]byte, error)
	ByType(ctx context.Context, userID uuid.UUID, txType Type) ([]byte, error)
	TotalsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]CategoryTotal, error)
}

type TokenSource interface {
	AccessToken(ctx context.Context, id uuid.UUID) (string, bool, error)
}

type Upstream interface {
	Transactions(ctx context.Context, accessToken string) (provider.Response, error)
}

type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
)

// Result is the payload for GET /v1/transactions. UpstreamStatus is set
// when the body came straight from the provider.
type Result struct {
	Body           []byte
	Source         Source
	UpstreamStatus int
}

type Service struct {
	store    Store
	tokens   TokenSource
	upstream Upstream
	ids      *snowflake.Node
	logger   *observability.Logger
	now      func() time.Time
	inflight singleflight.Group
}

func NewService(store Store, tokens TokenSource, upstream Upstream, ids *snowflake.Node, logger *observability.Logger) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		upstream: upstream,
		ids:      ids,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// All serves the cached batches, or on first use fetches from upstream and
// persists the payload. Concurrent first calls for one user share a single
// fetch within this process.
func (s *Service) All(ctx context.Context, userID uuid.UUID) (Result, error) {
	v, err, shared := s.inflight.Do(userID.String(), func() (any, error) {
		return s.load(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return Result{}, err
	}
	if shared {
		s.logger.Debug("transactions_fetch_shared", map[string]any{"user_id": userID.String()})
	}
	return v.(Result), nil
}

func (s *Service) load(ctx context.Context, userID uuid.UUID) (Result, error) {
	count, err := s.store.Count(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if count > 0 {
		body, err := s.store.All(ctx, userID)
		if err != nil {
			return Result{}, err
		}
		return Result{Body: body, Source: SourceCache}, nil
	}

	return s.fetch(ctx, userID)
}

func (s *Service) fetch(ctx context.Context, userID uuid.UUID) (Result, error) {
	accessToken, ok, err := s.tokens.AccessToken(ctx, userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return Result{}, apperr.Wrap(apperr.NotAuthorized, "not authorized", err)
		}
		return Result{}, err
	}
	if !ok {
		return Result{}, apperr.New(apperr.NotAuthorized, "bank account not connected")
	}

	resp, err := s.upstream.Transactions(ctx, accessToken)
	if err != nil {
		if errors.Is(err, provider.ErrNoAccounts) {
			return Result{}, apperr.Wrap(apperr.UpstreamExchangeFailed, "no bank accounts available", err)
		}
		if errors.Is(err, provider.ErrResponseTooLarge) {
			return Result{}, apperr.Wrap(apperr.UpstreamExchangeFailed, "upstream response too large", err)
		}
		return Result{}, apperr.Wrap(apperr.UpstreamExchangeFailed, "upstream request failed", err)
	}

	if !resp.OK() {
		s.logger.Warn("upstream_transactions_rejected", map[string]any{
			"user_id": userID.String(),
			"status":  resp.Status,
		})
		return Result{Body: passthroughBody(resp.Body), Source: SourceUpstream, UpstreamStatus: resp.Status}, nil
	}

	if !json.Valid(resp.Body) {
		return Result{}, apperr.New(apperr.Internal, "upstream returned invalid json")
	}

	batch := Batch{
		ID:        s.ids.Generate().Int64(),
		UserID:    userID,
		Results:   json.RawMessage(resp.Body),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Insert(ctx, batch); err != nil {
		return Result{}, err
	}

	s.logger.Info("transactions_cached", map[string]any{
		"user_id":  userID.String(),
		"batch_id": batch.ID,
	})
	return Result{Body: resp.Body, Source: SourceUpstream, UpstreamStatus: resp.Status}, nil
}

func passthroughBody(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	wrapped, _ := json.Marshal(map[string]string{"error": string(body)})
	return wrapped
}

// Window returns stored transactions newer than the window start. It never
// contacts upstream.
func (s *Service) Window(ctx context.Context, userID uuid.UUID, w Window) ([]byte, error) {
	return s.store.Since(ctx, userID, w.Start(s.now()))
}

func (s *Service) Totals(ctx context.Context, userID uuid.UUID, w Window) ([]CategoryTotal, error) {
	if w != Weekly && w != Monthly {
		return nil, apperr.New(apperr.InvalidInput, "totals are available for weekly or monthly windows")
	}
	return s.store.TotalsSince(ctx, userID, w.Start(s.now()))
}

func (s *Service) ByType(ctx context.Context, userID uuid.UUID, txType Type) ([]byte, error) {
	return s.store.ByType(ctx, userID, txType)
}
