// Package httpx holds the JSON response helpers shared by every handler.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"openbank-cache/internal/apperr"
	"openbank-cache/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteRaw sends an already encoded JSON document.
func WriteRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteError maps err onto its HTTP status. Internal and unavailable errors
// are logged and reported to Sentry; the client only sees a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, logger *observability.Logger, err error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.Internal, apperr.Unavailable, apperr.UpstreamExchangeFailed:
		logger.Error("request_failed", map[string]any{
			"path":       r.URL.Path,
			"kind":       kind.String(),
			"error":      err.Error(),
			"request_id": observability.RequestIDFrom(r.Context()),
		})
		if kind == apperr.Internal {
			observability.CaptureError(r.Context(), err)
		}
	default:
		logger.Debug("request_rejected", map[string]any{
			"path":  r.URL.Path,
			"kind":  kind.String(),
			"error": err.Error(),
		})
	}

	if kind == apperr.NotAuthorized || kind == apperr.InvalidCredentials {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	WriteMessage(w, kind.Status(), apperr.Message(err))
}

// DecodeJSON reads a bounded JSON body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Wrap(apperr.InvalidInput, "request body too large", err)
		}
		return apperr.Wrap(apperr.InvalidInput, "invalid json body", err)
	}
	return nil
}
