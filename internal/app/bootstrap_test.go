package app

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openbank-cache/internal/config"
	"openbank-cache/internal/observability"
)

func testConfig() config.Config {
	return config.Config{
		DBAcquireTimeout:     time.Second,
		SecretKey:            "pepper",
		JWTSecret:            "jwt-secret",
		TokenTTL:             time.Hour,
		ClientID:             "client-123",
		ClientSecret:         "shh",
		AuthURI:              "https://auth.example.test",
		TokenURI:             "https://auth.example.test/connect/token",
		RedirectURI:          "http://localhost:8080/callback",
		APIURI:               "https://api.example.test",
		UpstreamTimeout:      time.Second,
		LoginRateLimitMax:    10,
		LoginRateLimitWindow: time.Minute,
		SnowflakeNode:        1,
	}
}

func newTestHandler(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	handler, err := NewHandler(testConfig(), sqlx.NewDb(mockDB, "pgx"), observability.NewNopLogger())
	require.NoError(t, err)
	return handler, mock
}

func TestHandler_Root(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(observability.RequestIDHeader))
}

func TestHandler_Health(t *testing.T) {
	handler, mock := newTestHandler(t)

	mock.ExpectPing()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	mock.ExpectPing().WillReturnError(errors.New("db down"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_ProtectedRoutesRequireToken(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, path := range []string{"/me", "/v1/transactions", "/v1/transactions/weekly/total"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.JSONEq(t, `{"error":"not authorized"}`, rec.Body.String(), path)
	}
}

func TestHandler_CallbackWithoutCode(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/signup", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewHandler_RejectsBadSnowflakeNode(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	cfg := testConfig()
	cfg.SnowflakeNode = 4096
	_, err = NewHandler(cfg, sqlx.NewDb(mockDB, "pgx"), observability.NewNopLogger())
	assert.Error(t, err)
}

func TestBuild_MissingEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SECRET_KEY", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Build(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
