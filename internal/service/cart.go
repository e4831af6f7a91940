package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/enum"
)

const maxOrderNumberRetries = 3

// CartStore defines the DB methods needed to turn a cart into orders.
// Satisfied by *database.Queries (and its WithTx variant).
type CartStore interface {
	GetNextOrderNumber(ctx context.Context, hotelID uuid.UUID) (int32, error)
	GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	SetLinkedOrder(ctx context.Context, arg database.SetLinkedOrderParams) error
}

// NewCartStore creates a CartStore from a DBTX (pool or tx).
type NewCartStore func(db database.DBTX) CartStore

// CartService turns a waiter's cart into one or two linked orders: a
// kitchen-bound order awaiting chef acceptance and/or a directly servable
// order.
type CartService struct {
	pool     TxBeginner
	newStore NewCartStore
	notifier Notifier
	log      *logrus.Logger
}

// NewCartService creates a new CartService.
func NewCartService(pool TxBeginner, newStore NewCartStore, notifier Notifier, log *logrus.Logger) *CartService {
	return &CartService{pool: pool, newStore: newStore, notifier: notifier, log: log}
}

// CartItemRequest is a single selected menu item.
type CartItemRequest struct {
	MenuItemID string
	Quantity   int32
}

// SubmitCartRequest is the validated input for creating orders from a cart.
type SubmitCartRequest struct {
	HotelID  uuid.UUID
	WaiterID uuid.UUID
	Items    []CartItemRequest
}

// OrderWithItems pairs an order with its line items.
type OrderWithItems struct {
	Order database.Order
	Items []database.OrderItem
}

// SubmitCartResult holds the created orders. KitchenOrder and DirectOrder
// index into Orders; either may be nil for a single-track cart.
type SubmitCartResult struct {
	Orders       []OrderWithItems
	KitchenOrder *OrderWithItems
	DirectOrder  *OrderWithItems
}

// pricedItem is a cart line after menu lookup.
type pricedItem struct {
	menuItemID uuid.UUID
	name       string
	quantity   int32
	unitPrice  decimal.Decimal
	kind       string
}

// requiresKitchen reports whether a menu item needs chef preparation.
// Combos are always kitchen-bound.
func requiresKitchen(kind string) bool {
	return kind == enum.FulfillmentKitchen || kind == enum.FulfillmentCombo
}

// SubmitCart partitions the cart into kitchen-bound and direct items, creates
// an order per non-empty side, and links the pair bidirectionally. A cart
// producing zero items is rejected before any write.
//
// Retries up to maxOrderNumberRetries times on order_number unique constraint
// violations (concurrent transactions can observe the same MAX).
func (s *CartService) SubmitCart(ctx context.Context, req SubmitCartRequest) (*SubmitCartResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.submitCartTx(ctx, req)
		if err == nil {
			for _, ow := range result.Orders {
				s.notifier.OrderChanged(req.HotelID, EventOrderCreated, OrderEvent{
					OrderID: ow.Order.ID,
					Status:  ow.Order.Status,
				})
			}
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isOrderNumberConflict checks for a unique constraint violation on
// (hotel_id, order_number) — pgconn error code 23505.
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_hotel_id_order_number_key"
	}
	return false
}

func (s *CartService) submitCartTx(ctx context.Context, req SubmitCartRequest) (*SubmitCartResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Resolve prices and partition the cart ---
	var kitchenItems, directItems []pricedItem
	for i, item := range req.Items {
		menuItemID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidMenuItemID)
		}
		menuItem, err := store.GetMenuItem(ctx, database.GetMenuItemParams{
			ID:      menuItemID,
			HotelID: req.HotelID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, fmt.Errorf("items[%d]: get menu item: %w", i, err)
		}

		priced := pricedItem{
			menuItemID: menuItem.ID,
			name:       menuItem.Name,
			quantity:   item.Quantity,
			unitPrice:  numericToDecimal(menuItem.UnitPrice),
			kind:       menuItem.FulfillmentKind,
		}
		if requiresKitchen(menuItem.FulfillmentKind) {
			kitchenItems = append(kitchenItems, priced)
		} else {
			directItems = append(directItems, priced)
		}
	}

	nextNum, err := store.GetNextOrderNumber(ctx, req.HotelID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	// Capacity for both tracks up front: KitchenOrder and DirectOrder point
	// into Orders, so the backing array must never be reallocated once a
	// pointer has been taken.
	result := &SubmitCartResult{Orders: make([]OrderWithItems, 0, 2)}

	// Kitchen order starts pending: payment is only possible once a chef has
	// accepted and served it. Direct items bypass the kitchen entirely.
	if len(kitchenItems) > 0 {
		ow, err := createTrackOrder(ctx, store, req, nextNum, enum.OrderStatusPending, kitchenItems)
		if err != nil {
			return nil, err
		}
		result.Orders = append(result.Orders, ow)
		result.KitchenOrder = &result.Orders[len(result.Orders)-1]
		nextNum++
	}
	if len(directItems) > 0 {
		ow, err := createTrackOrder(ctx, store, req, nextNum, enum.OrderStatusServed, directItems)
		if err != nil {
			return nil, err
		}
		result.Orders = append(result.Orders, ow)
		result.DirectOrder = &result.Orders[len(result.Orders)-1]
	}

	// Both tracks present: complete the bidirectional link inside the same
	// transaction so a half-linked pair is never observable.
	if result.KitchenOrder != nil && result.DirectOrder != nil {
		k, d := result.KitchenOrder, result.DirectOrder
		if err := store.SetLinkedOrder(ctx, database.SetLinkedOrderParams{
			ID:            k.Order.ID,
			LinkedOrderID: d.Order.ID,
		}); err != nil {
			return nil, fmt.Errorf("link kitchen order: %w", err)
		}
		if err := store.SetLinkedOrder(ctx, database.SetLinkedOrderParams{
			ID:            d.Order.ID,
			LinkedOrderID: k.Order.ID,
		}); err != nil {
			return nil, fmt.Errorf("link direct order: %w", err)
		}
		k.Order.LinkedOrderID = pgUUID(d.Order.ID)
		d.Order.LinkedOrderID = pgUUID(k.Order.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return result, nil
}

func createTrackOrder(ctx context.Context, store CartStore, req SubmitCartRequest, orderNumber int32, status string, items []pricedItem) (OrderWithItems, error) {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.unitPrice.Mul(decimal.NewFromInt32(it.quantity)))
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		HotelID:     req.HotelID,
		OrderNumber: orderNumber,
		Status:      status,
		TotalAmount: decimalToNumeric(total),
		WaiterID:    pgUUID(req.WaiterID),
	})
	if err != nil {
		return OrderWithItems{}, fmt.Errorf("create order: %w", err)
	}

	ow := OrderWithItems{Order: order}
	for _, it := range items {
		created, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:         order.ID,
			MenuItemID:      it.menuItemID,
			DisplayName:     it.name,
			Quantity:        it.quantity,
			UnitPrice:       decimalToNumeric(it.unitPrice),
			FulfillmentKind: it.kind,
		})
		if err != nil {
			return OrderWithItems{}, fmt.Errorf("create order item: %w", err)
		}
		ow.Items = append(ow.Items, created)
	}
	return ow, nil
}
