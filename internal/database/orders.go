package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, hotel_id, order_number, status, total_amount, amount_paid,
	payment_method, is_debt, debtor_name, chef_id, waiter_id, linked_order_id,
	created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.HotelID, &o.OrderNumber, &o.Status, &o.TotalAmount, &o.AmountPaid,
		&o.PaymentMethod, &o.IsDebt, &o.DebtorName, &o.ChefID, &o.WaiterID, &o.LinkedOrderID,
		&o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetNextOrderNumber returns MAX(order_number)+1 for the hotel. Concurrent
// transactions can observe the same MAX; callers retry on the unique
// constraint violation.
func (q *Queries) GetNextOrderNumber(ctx context.Context, hotelID uuid.UUID) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(order_number), 0) + 1 FROM orders WHERE hotel_id = $1`,
		hotelID,
	).Scan(&n)
	return n, err
}

type CreateOrderParams struct {
	HotelID     uuid.UUID
	OrderNumber int32
	Status      string
	TotalAmount pgtype.Numeric
	WaiterID    pgtype.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx,
		`INSERT INTO orders (hotel_id, order_number, status, total_amount, waiter_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+orderColumns,
		arg.HotelID, arg.OrderNumber, arg.Status, arg.TotalAmount, arg.WaiterID,
	))
}

type CreateOrderItemParams struct {
	OrderID         uuid.UUID
	MenuItemID      uuid.UUID
	DisplayName     string
	Quantity        int32
	UnitPrice       pgtype.Numeric
	FulfillmentKind string
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx,
		`INSERT INTO order_items (order_id, menu_item_id, display_name, quantity, unit_price, fulfillment_kind)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, order_id, menu_item_id, display_name, quantity, unit_price, fulfillment_kind, created_at`,
		arg.OrderID, arg.MenuItemID, arg.DisplayName, arg.Quantity, arg.UnitPrice, arg.FulfillmentKind,
	).Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.DisplayName, &it.Quantity, &it.UnitPrice, &it.FulfillmentKind, &it.CreatedAt)
	return it, err
}

type SetLinkedOrderParams struct {
	ID            uuid.UUID
	LinkedOrderID uuid.UUID
}

// SetLinkedOrder writes one direction of a split-order link. Both directions
// are written inside the creating transaction so a half-linked pair is never
// visible.
func (q *Queries) SetLinkedOrder(ctx context.Context, arg SetLinkedOrderParams) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE orders SET linked_order_id = $2, updated_at = now() WHERE id = $1`,
		arg.ID, arg.LinkedOrderID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type GetOrderParams struct {
	ID      uuid.UUID
	HotelID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND hotel_id = $2`,
		arg.ID, arg.HotelID,
	))
}

type GetOrderForUpdateParams struct {
	ID      uuid.UUID
	HotelID uuid.UUID
}

// GetOrderForUpdate locks the order row (FOR NO KEY UPDATE) so concurrent
// settlement and redistribution calls serialize on it.
func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderForUpdateParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND hotel_id = $2 FOR NO KEY UPDATE`,
		arg.ID, arg.HotelID,
	))
}

type ListOrdersParams struct {
	HotelID   uuid.UUID
	Status    pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
	Offset    int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE hotel_id = $1
		   AND ($2::text IS NULL OR status = $2)
		   AND ($3::timestamptz IS NULL OR created_at >= $3)
		   AND ($4::timestamptz IS NULL OR created_at < $4)
		 ORDER BY order_number DESC
		 LIMIT $5 OFFSET $6`,
		arg.HotelID, arg.Status, arg.StartDate, arg.EndDate, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// ListOrdersLinkedTo returns every order whose linked_order_id points at the
// given order. Used for link-group resolution before a cascade delete.
func (q *Queries) ListOrdersLinkedTo(ctx context.Context, orderID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE linked_order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, order_id, menu_item_id, display_name, quantity, unit_price, fulfillment_kind, created_at
		 FROM order_items WHERE order_id = $1 ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.DisplayName, &it.Quantity, &it.UnitPrice, &it.FulfillmentKind, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type AcceptOrderParams struct {
	ID      uuid.UUID
	HotelID uuid.UUID
	ChefID  uuid.UUID
}

// AcceptOrder claims a pending order for a chef. The WHERE clause is the
// compare-and-set guard: only the first accepting writer sees a row with
// chef_id still NULL, losers get pgx.ErrNoRows.
func (q *Queries) AcceptOrder(ctx context.Context, arg AcceptOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx,
		`UPDATE orders
		 SET status = 'preparing', chef_id = $3, updated_at = now()
		 WHERE id = $1 AND hotel_id = $2 AND status = 'pending' AND chef_id IS NULL
		 RETURNING `+orderColumns,
		arg.ID, arg.HotelID, arg.ChefID,
	))
}

type MarkOrderServedParams struct {
	ID      uuid.UUID
	HotelID uuid.UUID
}

func (q *Queries) MarkOrderServed(ctx context.Context, arg MarkOrderServedParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx,
		`UPDATE orders
		 SET status = 'served', updated_at = now()
		 WHERE id = $1 AND hotel_id = $2 AND status = 'preparing'
		 RETURNING `+orderColumns,
		arg.ID, arg.HotelID,
	))
}

type ClearOrderParams struct {
	ID      uuid.UUID
	HotelID uuid.UUID
}

func (q *Queries) ClearOrder(ctx context.Context, arg ClearOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx,
		`UPDATE orders
		 SET status = 'cleared', updated_at = now()
		 WHERE id = $1 AND hotel_id = $2 AND status = 'paid'
		 RETURNING `+orderColumns,
		arg.ID, arg.HotelID,
	))
}

type UpdateOrderPaymentParams struct {
	ID            uuid.UUID
	HotelID       uuid.UUID
	Status        string
	AmountPaid    pgtype.Numeric
	PaymentMethod pgtype.Text
	IsDebt        bool
	DebtorName    pgtype.Text
	WaiterID      pgtype.UUID
}

// UpdateOrderPayment rewrites the ledger fields in one statement. Both the
// reconciliation and redistribution engines go through here; they differ only
// in how they derive the new field values.
func (q *Queries) UpdateOrderPayment(ctx context.Context, arg UpdateOrderPaymentParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx,
		`UPDATE orders
		 SET status = $3, amount_paid = $4, payment_method = $5, is_debt = $6,
		     debtor_name = $7, waiter_id = COALESCE($8, waiter_id), updated_at = now()
		 WHERE id = $1 AND hotel_id = $2
		 RETURNING `+orderColumns,
		arg.ID, arg.HotelID, arg.Status, arg.AmountPaid, arg.PaymentMethod,
		arg.IsDebt, arg.DebtorName, arg.WaiterID,
	))
}

type UpdateOrderTotalParams struct {
	ID          uuid.UUID
	TotalAmount pgtype.Numeric
}

func (q *Queries) UpdateOrderTotal(ctx context.Context, arg UpdateOrderTotalParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx,
		`UPDATE orders SET total_amount = $2, updated_at = now() WHERE id = $1
		 RETURNING `+orderColumns,
		arg.ID, arg.TotalAmount,
	))
}

type DeleteOrderItemParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
}

func (q *Queries) DeleteOrderItem(ctx context.Context, arg DeleteOrderItemParams) error {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM order_items WHERE id = $1 AND order_id = $2`,
		arg.ID, arg.OrderID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (q *Queries) DeleteOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	return err
}

func (q *Queries) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (q *Queries) CountOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}

// ListDebtOrders returns orders carrying a named debt, oldest first. This
// feeds the debt ledger view the redistribution screen works from.
func (q *Queries) ListDebtOrders(ctx context.Context, hotelID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE hotel_id = $1 AND is_debt = TRUE
		 ORDER BY created_at`,
		hotelID,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}
