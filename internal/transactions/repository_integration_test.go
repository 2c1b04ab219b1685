//go:build integration

package transactions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openbank-cache/internal/auth"
	"openbank-cache/internal/db"
)

// openTestDB connects to TEST_DATABASE_URL and applies migrations:
//
//	TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/transactions/
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := db.Open(ctx, db.Options{URL: url, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.RunMigrations(ctx, database.DB))
	return database
}

func seedUser(t *testing.T, database *sqlx.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC()
	err := auth.NewRepository(database, 5*time.Second).Create(context.Background(), auth.User{
		ID:           id,
		Username:     "it-" + id.String(),
		Email:        id.String() + "@example.test",
		PasswordHash: "x",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = database.Exec(`DELETE FROM transactions WHERE user_id = $1`, id)
		_, _ = database.Exec(`DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func element(id string, ts string, amount any, category string) map[string]any {
	return map[string]any{
		"transaction_id":       id,
		"timestamp":            ts,
		"amount":               amount,
		"transaction_type":     "DEBIT",
		"transaction_category": category,
	}
}

func TestRepositoryIntegration_WindowBoundaryAndGuards(t *testing.T) {
	database := openTestDB(t)
	repo := NewRepository(database, 5*time.Second)
	user := seedUser(t, database)
	ctx := context.Background()

	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	since := Daily.Start(now)
	at := func(d time.Duration) string { return since.Add(d).Format(time.RFC3339Nano) }

	payload, err := json.Marshal(map[string]any{"results": []any{
		element("on-boundary", at(0), -1, "PURCHASE"),
		element("after-1ms", at(time.Millisecond), -3.10, "PURCHASE"),
		element("bad-amount", at(2*time.Millisecond), "n/a", "PURCHASE"),
		element("bad-timestamp", "yesterday", 100, "PURCHASE"),
		element("salary", at(3*time.Millisecond), 10, "SALARY"),
	}})
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, Batch{ID: time.Now().UnixNano(), UserID: user, Results: payload, CreatedAt: now}))

	body, err := repo.Since(ctx, user, since)
	require.NoError(t, err)

	var got []struct {
		ID string `json:"transaction_id"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	ids := make([]string, 0, len(got))
	for _, g := range got {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"after-1ms", "bad-amount", "salary"}, ids, "boundary excluded, order kept, bad timestamp skipped")

	totals, err := repo.TotalsSince(ctx, user, since)
	require.NoError(t, err)
	require.Len(t, totals, 2, fmt.Sprintf("%+v", totals))
	assert.Equal(t, "PURCHASE", totals[0].Category)
	assert.True(t, decimal.RequireFromString("-3.10").Equal(totals[0].TotalAmount))
	assert.Equal(t, "SALARY", totals[1].Category)
	assert.True(t, decimal.RequireFromString("10").Equal(totals[1].TotalAmount))
}
