package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/jikoni-pos/api/internal/database"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Order change events published after successful mutations. External list
// views subscribe instead of re-deriving state from ambient push.
const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
	EventOrderDeleted = "order.deleted"
)

// OrderEvent is the payload published on the change-notification channel.
type OrderEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Status  string    `json:"status,omitempty"`
}

// Notifier publishes order change events to a hotel's terminals.
// Satisfied by the ws hub adapter; a no-op implementation serves tests.
type Notifier interface {
	OrderChanged(hotelID uuid.UUID, event string, payload OrderEvent)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) OrderChanged(uuid.UUID, string, OrderEvent) {}

// OrderCode derives the human-readable code shown on tickets and receipts.
func OrderCode(orderNumber int32) string {
	return fmt.Sprintf("ORD-%03d", orderNumber)
}

// --- pgtype adapters ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// Balance returns total_amount - amount_paid for an order row.
func Balance(o database.Order) decimal.Decimal {
	return numericToDecimal(o.TotalAmount).Sub(numericToDecimal(o.AmountPaid))
}
