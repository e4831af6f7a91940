package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/enum"
	"github.com/jikoni-pos/api/internal/ledger"
)

// RedistributionStore defines the DB methods needed to rewrite an order's
// ledger fields.
type RedistributionStore interface {
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	UpdateOrderPayment(ctx context.Context, arg database.UpdateOrderPaymentParams) (database.Order, error)
}

// NewRedistributionStore creates a RedistributionStore from a DBTX (pool or tx).
type NewRedistributionStore func(db database.DBTX) RedistributionStore

// RedistributionService rewrites how an already-recorded payment total is
// allocated across methods and debtors. Unlike settlement it derives the
// ledger fields from scratch and is the only operation permitted to decrease
// amount_paid: it is a correcting rewrite, not an incremental payment.
type RedistributionService struct {
	pool     TxBeginner
	newStore NewRedistributionStore
	notifier Notifier
	log      *logrus.Logger
}

// NewRedistributionService creates a new RedistributionService.
func NewRedistributionService(pool TxBeginner, newStore NewRedistributionStore, notifier Notifier, log *logrus.Logger) *RedistributionService {
	return &RedistributionService{pool: pool, newStore: newStore, notifier: notifier, log: log}
}

// RedistributeRequest is the validated input for a ledger rewrite.
type RedistributeRequest struct {
	HotelID  uuid.UUID
	OrderID  uuid.UUID
	ActorID  uuid.UUID
	Payments []ledger.Allocation
	Debtors  []ledger.DebtorAllocation
}

// Redistribute replaces the order's method and debtor allocations. The new
// allocation must sum to the order total exactly; any mismatch is rejected
// before writing.
func (s *RedistributionService) Redistribute(ctx context.Context, req RedistributeRequest) (database.Order, error) {
	paySum := decimal.Zero
	for i, p := range req.Payments {
		if p.Amount.IsNegative() {
			return database.Order{}, fmt.Errorf("payments[%d]: %w", i, ErrNegativeAmount)
		}
		if !ledger.KnownMethod(p.Method) {
			return database.Order{}, fmt.Errorf("payments[%d] %q: %w", i, p.Method, ErrInvalidMethod)
		}
		paySum = paySum.Add(p.Amount)
	}

	debtSum := decimal.Zero
	for i, d := range req.Debtors {
		if d.Amount.IsNegative() {
			return database.Order{}, fmt.Errorf("debtors[%d]: %w", i, ErrNegativeAmount)
		}
		if d.Amount.IsPositive() && strings.TrimSpace(d.Name) == "" {
			return database.Order{}, fmt.Errorf("debtors[%d]: %w", i, ErrMissingDebtor)
		}
		debtSum = debtSum.Add(d.Amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
		ID:      req.OrderID,
		HotelID: req.HotelID,
	})
	if err != nil {
		return database.Order{}, err
	}
	if order.Status == enum.OrderStatusCleared {
		return database.Order{}, ErrOrderCleared
	}
	if !numericToDecimal(order.AmountPaid).IsPositive() && !order.PaymentMethod.Valid {
		return database.Order{}, ErrNoPaymentHistory
	}

	// Hard equality against the immutable total, not the current paid amount:
	// the rewrite may move money between methods and debtors but never change
	// what the order was worth.
	if !paySum.Add(debtSum).Equal(numericToDecimal(order.TotalAmount)) {
		return database.Order{}, ErrAllocationMismatch
	}

	status := enum.OrderStatusServed
	if debtSum.IsZero() && paySum.Equal(numericToDecimal(order.TotalAmount)) {
		status = enum.OrderStatusPaid
	}

	updated, err := store.UpdateOrderPayment(ctx, database.UpdateOrderPaymentParams{
		ID:            order.ID,
		HotelID:       req.HotelID,
		Status:        status,
		AmountPaid:    decimalToNumeric(paySum),
		PaymentMethod: textOrNull(ledger.EncodeMethods(req.Payments)),
		IsDebt:        debtSum.IsPositive(),
		DebtorName:    textOrNull(ledger.EncodeDebtors(req.Debtors)),
		WaiterID:      pgUUID(req.ActorID),
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("update order payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id": updated.ID,
		"actor_id": req.ActorID,
		"paid":     paySum.String(),
		"debt":     debtSum.String(),
	}).Info("payment allocation rewritten")

	s.notifier.OrderChanged(req.HotelID, EventOrderUpdated, OrderEvent{OrderID: updated.ID, Status: updated.Status})
	return updated, nil
}
