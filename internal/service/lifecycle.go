package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/enum"
)

// LifecycleStore defines the DB methods needed to drive order status
// transitions and cascade deletes.
type LifecycleStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	AcceptOrder(ctx context.Context, arg database.AcceptOrderParams) (database.Order, error)
	MarkOrderServed(ctx context.Context, arg database.MarkOrderServedParams) (database.Order, error)
	ClearOrder(ctx context.Context, arg database.ClearOrderParams) (database.Order, error)
	ListOrdersLinkedTo(ctx context.Context, orderID uuid.UUID) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	DeleteOrderItem(ctx context.Context, arg database.DeleteOrderItemParams) error
	DeleteOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	CountOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error)
	UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
}

// NewLifecycleStore creates a LifecycleStore from a DBTX (pool or tx).
type NewLifecycleStore func(db database.DBTX) LifecycleStore

// LifecycleService governs legal status transitions for an order and its
// linked sibling. Single-statement transitions run against the pool-bound
// store; multi-step cascades run inside a transaction.
type LifecycleService struct {
	store    LifecycleStore
	pool     TxBeginner
	newStore NewLifecycleStore
	notifier Notifier
	log      *logrus.Logger
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(store LifecycleStore, pool TxBeginner, newStore NewLifecycleStore, notifier Notifier, log *logrus.Logger) *LifecycleService {
	return &LifecycleService{store: store, pool: pool, newStore: newStore, notifier: notifier, log: log}
}

// AcceptOrder claims a pending order for a chef. The write is conditioned on
// chef_id still being NULL; when another chef won the race the loser gets
// ErrOrderTaken instead of silently double-assigning.
func (s *LifecycleService) AcceptOrder(ctx context.Context, hotelID, orderID, chefID uuid.UUID) (database.Order, error) {
	order, err := s.store.AcceptOrder(ctx, database.AcceptOrderParams{
		ID:      orderID,
		HotelID: hotelID,
		ChefID:  chefID,
	})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, fmt.Errorf("accept order: %w", err)
		}
		// Zero rows: re-fetch to distinguish "gone" from "claimed".
		if _, fetchErr := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, HotelID: hotelID}); fetchErr != nil {
			return database.Order{}, fetchErr
		}
		return database.Order{}, ErrOrderTaken
	}

	s.notifier.OrderChanged(hotelID, EventOrderUpdated, OrderEvent{OrderID: order.ID, Status: order.Status})
	return order, nil
}

// MarkServed moves a preparing order to served, opening it for payment.
func (s *LifecycleService) MarkServed(ctx context.Context, hotelID, orderID uuid.UUID) (database.Order, error) {
	order, err := s.store.MarkOrderServed(ctx, database.MarkOrderServedParams{ID: orderID, HotelID: hotelID})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, fmt.Errorf("mark served: %w", err)
		}
		if _, fetchErr := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, HotelID: hotelID}); fetchErr != nil {
			return database.Order{}, fetchErr
		}
		return database.Order{}, ErrOrderNotPreparing
	}

	s.notifier.OrderChanged(hotelID, EventOrderUpdated, OrderEvent{OrderID: order.ID, Status: order.Status})
	return order, nil
}

// ClearOrder archives a paid order.
func (s *LifecycleService) ClearOrder(ctx context.Context, hotelID, orderID uuid.UUID) (database.Order, error) {
	order, err := s.store.ClearOrder(ctx, database.ClearOrderParams{ID: orderID, HotelID: hotelID})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, fmt.Errorf("clear order: %w", err)
		}
		if _, fetchErr := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, HotelID: hotelID}); fetchErr != nil {
			return database.Order{}, fetchErr
		}
		return database.Order{}, ErrOrderNotPaid
	}

	s.notifier.OrderChanged(hotelID, EventOrderUpdated, OrderEvent{OrderID: order.ID, Status: order.Status})
	return order, nil
}

// DeclineOrder removes an order and its whole link-group: the order it points
// to plus any order pointing back at it. Permitted only while no order in the
// group has progressed beyond its initial state.
func (s *LifecycleService) DeclineOrder(ctx context.Context, hotelID, orderID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	self, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{ID: orderID, HotelID: hotelID})
	if err != nil {
		return err
	}

	group, err := resolveLinkGroup(ctx, store, self)
	if err != nil {
		return err
	}
	for _, o := range group {
		if !removable(o) {
			return ErrGroupInProgress
		}
	}

	if err := cascadeDelete(ctx, store, group); err != nil {
		s.log.WithError(err).WithField("order_id", orderID).Error("cascade delete failed")
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	for _, o := range group {
		s.notifier.OrderChanged(hotelID, EventOrderDeleted, OrderEvent{OrderID: o.ID})
	}
	return nil
}

// RemoveItem deletes one line item from a pending order and recomputes the
// total so sum(quantity*unit_price) == total_amount keeps holding. Removing
// the last item deletes the whole link-group, like a decline.
func (s *LifecycleService) RemoveItem(ctx context.Context, hotelID, orderID, itemID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{ID: orderID, HotelID: hotelID})
	if err != nil {
		return err
	}
	if order.Status != enum.OrderStatusPending {
		return ErrOrderNotPending
	}

	if err := store.DeleteOrderItem(ctx, database.DeleteOrderItemParams{ID: itemID, OrderID: orderID}); err != nil {
		return err
	}

	remaining, err := store.CountOrderItems(ctx, orderID)
	if err != nil {
		return fmt.Errorf("count order items: %w", err)
	}

	if remaining == 0 {
		group, err := resolveLinkGroup(ctx, store, order)
		if err != nil {
			return err
		}
		for _, o := range group {
			if !removable(o) {
				return ErrGroupInProgress
			}
		}
		if err := cascadeDelete(ctx, store, group); err != nil {
			s.log.WithError(err).WithField("order_id", orderID).Error("cascade delete failed")
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		for _, o := range group {
			s.notifier.OrderChanged(hotelID, EventOrderDeleted, OrderEvent{OrderID: o.ID})
		}
		return nil
	}

	items, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(numericToDecimal(it.UnitPrice).Mul(decimal.NewFromInt32(it.Quantity)))
	}
	updated, err := store.UpdateOrderTotal(ctx, database.UpdateOrderTotalParams{ID: orderID, TotalAmount: decimalToNumeric(total)})
	if err != nil {
		return fmt.Errorf("update order total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.notifier.OrderChanged(hotelID, EventOrderUpdated, OrderEvent{OrderID: updated.ID, Status: updated.Status})
	return nil
}

// removable reports whether an order may still be deleted as part of a
// link-group cascade. Kitchen-track orders must not have been accepted;
// direct-track orders are created as served and count as untouched until a
// chef or a payment has been recorded against them.
func removable(o database.Order) bool {
	if o.Status == enum.OrderStatusPending {
		return true
	}
	return o.Status == enum.OrderStatusServed &&
		!o.ChefID.Valid &&
		numericToDecimal(o.AmountPaid).IsZero()
}

// resolveLinkGroup collects {self} ∪ {pointee} ∪ {pointers-to-self},
// deduplicated. A dangling forward pointer (sibling already gone) is
// tolerated: link completion and deletion are separate writes.
func resolveLinkGroup(ctx context.Context, store LifecycleStore, self database.Order) ([]database.Order, error) {
	group := []database.Order{self}
	seen := map[uuid.UUID]bool{self.ID: true}

	if self.LinkedOrderID.Valid {
		sibling, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{
			ID:      self.LinkedOrderID.Bytes,
			HotelID: self.HotelID,
		})
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("resolve linked order: %w", err)
		}
		if err == nil && !seen[sibling.ID] {
			group = append(group, sibling)
			seen[sibling.ID] = true
		}
	}

	pointers, err := store.ListOrdersLinkedTo(ctx, self.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve linked-to orders: %w", err)
	}
	for _, o := range pointers {
		if !seen[o.ID] {
			group = append(group, o)
			seen[o.ID] = true
		}
	}
	return group, nil
}

// cascadeDelete removes every item and order row in the group. A failure
// after the first destructive statement is reported as PartialCascadeError:
// the transaction rolls back, but the condition is surfaced loudly because
// stores without transactional semantics would have been left inconsistent.
func cascadeDelete(ctx context.Context, store LifecycleStore, group []database.Order) error {
	ids := make([]uuid.UUID, len(group))
	for i, o := range group {
		ids[i] = o.ID
	}

	progressed := false
	for _, o := range group {
		if err := store.DeleteOrderItemsByOrder(ctx, o.ID); err != nil {
			if progressed {
				return &PartialCascadeError{GroupIDs: ids, Stage: "delete items", Err: err}
			}
			return fmt.Errorf("delete items of order %s: %w", o.ID, err)
		}
		progressed = true
		if err := store.DeleteOrder(ctx, o.ID); err != nil {
			return &PartialCascadeError{GroupIDs: ids, Stage: "delete order", Err: err}
		}
	}
	return nil
}
