package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Hotel struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID           uuid.UUID
	HotelID      uuid.UUID
	FullName     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type MenuItem struct {
	ID              uuid.UUID
	HotelID         uuid.UUID
	Name            string
	UnitPrice       pgtype.Numeric
	FulfillmentKind string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Order is the canonical order row. payment_method and debtor_name carry the
// encoded ledger fields; the ledger package owns their wire format.
type Order struct {
	ID            uuid.UUID
	HotelID       uuid.UUID
	OrderNumber   int32
	Status        string
	TotalAmount   pgtype.Numeric
	AmountPaid    pgtype.Numeric
	PaymentMethod pgtype.Text
	IsDebt        bool
	DebtorName    pgtype.Text
	ChefID        pgtype.UUID
	WaiterID      pgtype.UUID
	LinkedOrderID pgtype.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderItem struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	MenuItemID      uuid.UUID
	DisplayName     string
	Quantity        int32
	UnitPrice       pgtype.Numeric
	FulfillmentKind string
	CreatedAt       time.Time
}
