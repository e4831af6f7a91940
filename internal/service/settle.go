package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/enum"
	"github.com/jikoni-pos/api/internal/ledger"
)

// SettlementStore defines the DB methods needed to apply a payment event.
type SettlementStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	UpdateOrderPayment(ctx context.Context, arg database.UpdateOrderPaymentParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// NewSettlementStore creates a SettlementStore from a DBTX (pool or tx).
type NewSettlementStore func(db database.DBTX) SettlementStore

// SettlementService applies an incoming payment event — one or more method
// contributions plus an optional named-debt component — to a served order's
// outstanding balance.
type SettlementService struct {
	pool     TxBeginner
	newStore NewSettlementStore
	notifier Notifier
	log      *logrus.Logger
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(pool TxBeginner, newStore NewSettlementStore, notifier Notifier, log *logrus.Logger) *SettlementService {
	return &SettlementService{pool: pool, newStore: newStore, notifier: notifier, log: log}
}

// Contribution is a single component of a payment event. Method is a display
// method name (cash, mpesa, kcb) or "debt" for a named-debt component.
type Contribution struct {
	Method string
	Amount decimal.Decimal
}

// SettleRequest is the validated input for a reconciliation pass.
type SettleRequest struct {
	HotelID       uuid.UUID
	OrderID       uuid.UUID
	WaiterID      uuid.UUID
	Contributions []Contribution
	DebtorName    string
}

// Receipt is the combined payload for a fully settled order and, when its
// linked sibling is also paid, that sibling — surfaced together as one
// receipt with a flattened item list.
type Receipt struct {
	Orders []OrderWithItems
	Total  decimal.Decimal
}

// SettleResult holds the updated order and, on full settlement, the receipt.
type SettleResult struct {
	Order   database.Order
	Receipt *Receipt
}

// Settle applies the payment event. The balance check runs against a freshly
// locked row inside the transaction: two terminals settling the same order
// concurrently serialize here instead of overpaying.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	cashSum, debtSum, err := splitContributions(req.Contributions)
	if err != nil {
		return nil, err
	}
	if !cashSum.Add(debtSum).IsPositive() {
		return nil, ErrZeroPayment
	}
	if debtSum.IsPositive() && strings.TrimSpace(req.DebtorName) == "" {
		return nil, ErrMissingDebtor
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
		ID:      req.OrderID,
		HotelID: req.HotelID,
	})
	if err != nil {
		return nil, err
	}
	if order.Status != enum.OrderStatusServed {
		return nil, ErrOrderNotServed
	}

	total := numericToDecimal(order.TotalAmount)
	paid := numericToDecimal(order.AmountPaid)
	balance := total.Sub(paid)
	if !balance.IsPositive() {
		return nil, ErrNothingDue
	}
	if cashSum.Add(debtSum).GreaterThan(balance) {
		return nil, ErrExceedsBalance
	}

	newPaid := paid.Add(cashSum)
	newBalance := total.Sub(newPaid)

	// Extend — never replace — the recorded method history. The old balance
	// and paid totals anchor decoding of any legacy bare-token fields.
	methods := ledger.MergeMethods(
		ledger.DecodeMethods(order.PaymentMethod.String, paid),
		contributionAllocations(req.Contributions),
	)
	// Legacy bare-name debtors owe the whole residual; anchoring on the
	// post-payment balance shrinks the recorded debt as cash comes in, so it
	// never exceeds what is actually outstanding.
	debtors := ledger.DecodeDebtors(order.DebtorName.String, newBalance)
	if debtSum.IsPositive() {
		debtors = ledger.MergeDebtors(debtors, []ledger.DebtorAllocation{
			{Name: strings.TrimSpace(req.DebtorName), Amount: debtSum},
		})
	}

	status := enum.OrderStatusServed
	isDebt := debtors != nil && newBalance.IsPositive()
	debtorField := ledger.EncodeDebtors(debtors)
	if newBalance.IsZero() {
		// Fully collected in cash-like methods: the order closes and any
		// previously recorded debt is extinguished.
		status = enum.OrderStatusPaid
		isDebt = false
		debtorField = ""
	}

	updated, err := store.UpdateOrderPayment(ctx, database.UpdateOrderPaymentParams{
		ID:            order.ID,
		HotelID:       req.HotelID,
		Status:        status,
		AmountPaid:    decimalToNumeric(newPaid),
		PaymentMethod: textOrNull(ledger.EncodeMethods(methods)),
		IsDebt:        isDebt,
		DebtorName:    textOrNull(debtorField),
		WaiterID:      pgUUID(req.WaiterID),
	})
	if err != nil {
		return nil, fmt.Errorf("update order payment: %w", err)
	}

	result := &SettleResult{Order: updated}
	if status == enum.OrderStatusPaid {
		receipt, err := buildReceipt(ctx, store, updated)
		if err != nil {
			return nil, err
		}
		result.Receipt = receipt
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.notifier.OrderChanged(req.HotelID, EventOrderUpdated, OrderEvent{OrderID: updated.ID, Status: updated.Status})
	return result, nil
}

// splitContributions validates methods and totals the cash-like and debt
// components.
func splitContributions(contributions []Contribution) (cashSum, debtSum decimal.Decimal, err error) {
	cashSum, debtSum = decimal.Zero, decimal.Zero
	for i, c := range contributions {
		if c.Amount.IsNegative() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("contributions[%d]: %w", i, ErrNegativeAmount)
		}
		switch {
		case c.Method == enum.ContributionDebt:
			debtSum = debtSum.Add(c.Amount)
		case ledger.KnownMethod(c.Method):
			cashSum = cashSum.Add(c.Amount)
		default:
			return decimal.Zero, decimal.Zero, fmt.Errorf("contributions[%d] %q: %w", i, c.Method, ErrInvalidMethod)
		}
	}
	return cashSum, debtSum, nil
}

// contributionAllocations converts the non-debt contributions into ledger
// allocations, dropping zero-amount entries.
func contributionAllocations(contributions []Contribution) []ledger.Allocation {
	var allocs []ledger.Allocation
	for _, c := range contributions {
		if c.Method == enum.ContributionDebt || !c.Amount.IsPositive() {
			continue
		}
		allocs = append(allocs, ledger.Allocation{Method: c.Method, Amount: c.Amount})
	}
	return allocs
}

// buildReceipt assembles the combined receipt for a freshly paid order. The
// linked sibling joins the receipt only once it is paid as well.
func buildReceipt(ctx context.Context, store SettlementStore, order database.Order) (*Receipt, error) {
	receipt := &Receipt{}

	orders := []database.Order{order}
	if order.LinkedOrderID.Valid {
		sibling, err := store.GetOrder(ctx, database.GetOrderParams{
			ID:      order.LinkedOrderID.Bytes,
			HotelID: order.HotelID,
		})
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get linked order: %w", err)
		}
		if err == nil && sibling.Status == enum.OrderStatusPaid {
			orders = append(orders, sibling)
		}
	}

	for _, o := range orders {
		items, err := store.ListOrderItemsByOrder(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("list items for receipt: %w", err)
		}
		receipt.Orders = append(receipt.Orders, OrderWithItems{Order: o, Items: items})
		receipt.Total = receipt.Total.Add(numericToDecimal(o.TotalAmount))
	}
	return receipt, nil
}
