package transactions

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Batch is one upstream transactions payload stored verbatim.
type Batch struct {
	ID        int64           `db:"id"`
	UserID    uuid.UUID       `db:"user_id"`
	Results   json.RawMessage `db:"results"`
	CreatedAt time.Time       `db:"created_at"`
}

type Window int

const (
	Daily Window = iota + 1
	Weekly
	Monthly
)

func (w Window) String() string {
	switch w {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// Start is the exclusive lower bound of the window ending at now.
func (w Window) Start(now time.Time) time.Time {
	switch w {
	case Daily:
		return now.AddDate(0, 0, -1)
	case Weekly:
		return now.AddDate(0, 0, -7)
	case Monthly:
		return now.AddDate(0, -1, 0)
	default:
		return now
	}
}

type Type string

const (
	Credit Type = "CREDIT"
	Debit  Type = "DEBIT"
)

type CategoryTotal struct {
	Category    string          `db:"transaction_category"`
	TotalAmount decimal.Decimal `db:"total_amount"`
}

// MarshalJSON renders the total as a JSON number rather than a string.
func (c CategoryTotal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Category    string          `json:"transaction_category"`
		TotalAmount json.RawMessage `json:"total_amount"`
	}{
		Category:    c.Category,
		TotalAmount: json.RawMessage(c.TotalAmount.String()),
	})
}
