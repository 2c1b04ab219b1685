package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const defaultStatementTimeout = 30 * time.Second

// transactionElements expands each stored batch into its individual
// transactions, keeping their position as tx.ord. Batches whose payload has
// no results array contribute none.
const transactionElements = `
	FROM transactions t
	CROSS JOIN LATERAL jsonb_array_elements(
		CASE WHEN jsonb_typeof(t.results->'results') = 'array'
			THEN t.results->'results'
			ELSE '[]'::jsonb
		END
	) WITH ORDINALITY AS tx(value, ord)
	WHERE t.user_id = $1`

type Repository struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewRepository(db *sqlx.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = defaultStatementTimeout
	}
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count transaction batches: %w", err)
	}
	return count, nil
}

func (r *Repository) Insert(ctx context.Context, batch Batch) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, results, created_at)
		VALUES ($1, $2, $3, $4)
	`, batch.ID, batch.UserID, string(batch.Results), batch.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction batch: %w", err)
	}
	return nil
}

// All returns every stored batch for the user as one JSON array, oldest
// first.
func (r *Repository) All(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	return r.aggregate(ctx, "all batches", `
		SELECT COALESCE(json_agg(t.results ORDER BY t.id), '[]'::json)::text
		FROM transactions t
		WHERE t.user_id = $1
	`, userID)
}

// Since returns the user's transactions with a timestamp strictly after
// since. Elements without a parseable timestamp are skipped.
func (r *Repository) Since(ctx context.Context, userID uuid.UUID, since time.Time) ([]byte, error) {
	return r.aggregate(ctx, "transactions since", `
		SELECT COALESCE(json_agg(tx.value ORDER BY t.id, tx.ord), '[]'::json)::text
		`+transactionElements+`
		AND safe_timestamptz(tx.value->>'timestamp') > $2
	`, userID, since.UTC())
}

func (r *Repository) ByType(ctx context.Context, userID uuid.UUID, txType Type) ([]byte, error) {
	return r.aggregate(ctx, "transactions by type", `
		SELECT COALESCE(json_agg(tx.value ORDER BY t.id, tx.ord), '[]'::json)::text
		`+transactionElements+`
		AND tx.value->>'transaction_type' = $2
	`, userID, string(txType))
}

// TotalsSince sums amounts per category over transactions strictly after
// since. Elements with an unparseable timestamp or amount are skipped.
func (r *Repository) TotalsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]CategoryTotal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	totals := []CategoryTotal{}
	err := r.db.SelectContext(ctx, &totals, `
		SELECT
			COALESCE(tx.value->>'transaction_category', '') AS transaction_category,
			SUM(safe_numeric(tx.value->>'amount')) AS total_amount
		`+transactionElements+`
		AND safe_timestamptz(tx.value->>'timestamp') > $2
		AND safe_numeric(tx.value->>'amount') IS NOT NULL
		GROUP BY 1
		ORDER BY 1
	`, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query category totals: %w", err)
	}
	return totals, nil
}

func (r *Repository) aggregate(ctx context.Context, what, query string, args ...any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc string
	if err := r.db.GetContext(ctx, &doc, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	return []byte(doc), nil
}
