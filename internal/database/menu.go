package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, hotel_id, name, unit_price, fulfillment_kind, active, created_at, updated_at`

type CreateMenuItemParams struct {
	HotelID         uuid.UUID
	Name            string
	UnitPrice       pgtype.Numeric
	FulfillmentKind string
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	var m MenuItem
	err := q.db.QueryRow(ctx,
		`INSERT INTO menu_items (hotel_id, name, unit_price, fulfillment_kind)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+menuItemColumns,
		arg.HotelID, arg.Name, arg.UnitPrice, arg.FulfillmentKind,
	).Scan(&m.ID, &m.HotelID, &m.Name, &m.UnitPrice, &m.FulfillmentKind, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

type GetMenuItemParams struct {
	ID      uuid.UUID
	HotelID uuid.UUID
}

func (q *Queries) GetMenuItem(ctx context.Context, arg GetMenuItemParams) (MenuItem, error) {
	var m MenuItem
	err := q.db.QueryRow(ctx,
		`SELECT `+menuItemColumns+` FROM menu_items WHERE id = $1 AND hotel_id = $2 AND active`,
		arg.ID, arg.HotelID,
	).Scan(&m.ID, &m.HotelID, &m.Name, &m.UnitPrice, &m.FulfillmentKind, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (q *Queries) ListMenuItems(ctx context.Context, hotelID uuid.UUID) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+menuItemColumns+` FROM menu_items WHERE hotel_id = $1 AND active ORDER BY name`,
		hotelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.HotelID, &m.Name, &m.UnitPrice, &m.FulfillmentKind, &m.Active, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
