package transactions

import (
	"net/http"
	"strconv"

	"openbank-cache/internal/apperr"
	"openbank-cache/internal/auth"
	"openbank-cache/internal/httpx"
	"openbank-cache/internal/observability"
)

const upstreamStatusHeader = "X-Upstream-Status"

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) All(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.logger, apperr.New(apperr.NotAuthorized, "not authorized"))
		return
	}

	result, err := h.service.All(r.Context(), identity.UserID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	w.Header().Set("X-Cache", string(result.Source))
	if result.UpstreamStatus != 0 {
		w.Header().Set(upstreamStatusHeader, strconv.Itoa(result.UpstreamStatus))
	}
	httpx.WriteRaw(w, http.StatusOK, result.Body)
}

func (h *Handler) Window(window Window) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFrom(r.Context())
		if !ok {
			httpx.WriteError(w, r, h.logger, apperr.New(apperr.NotAuthorized, "not authorized"))
			return
		}

		body, err := h.service.Window(r.Context(), identity.UserID, window)
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		httpx.WriteRaw(w, http.StatusOK, body)
	}
}

func (h *Handler) Totals(window Window) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFrom(r.Context())
		if !ok {
			httpx.WriteError(w, r, h.logger, apperr.New(apperr.NotAuthorized, "not authorized"))
			return
		}

		totals, err := h.service.Totals(r.Context(), identity.UserID, window)
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, totals)
	}
}

func (h *Handler) ByType(txType Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFrom(r.Context())
		if !ok {
			httpx.WriteError(w, r, h.logger, apperr.New(apperr.NotAuthorized, "not authorized"))
			return
		}

		body, err := h.service.ByType(r.Context(), identity.UserID, txType)
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		httpx.WriteRaw(w, http.StatusOK, body)
	}
}

// Routes registers every transactions endpoint on mux behind protect.
func (h *Handler) Routes(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	mux.Handle("GET /v1/transactions", protect(http.HandlerFunc(h.All)))
	for _, window := range []Window{Daily, Weekly, Monthly} {
		mux.Handle("GET /v1/transactions/"+window.String(), protect(h.Window(window)))
	}
	for _, window := range []Window{Weekly, Monthly} {
		mux.Handle("GET /v1/transactions/"+window.String()+"/total", protect(h.Totals(window)))
	}
	mux.Handle("GET /v1/transactions/credit", protect(h.ByType(Credit)))
	mux.Handle("GET /v1/transactions/debit", protect(h.ByType(Debit)))
}
