package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/ledger"
	"github.com/shopspring/decimal"
)

// DebtStore defines the database methods needed by the debt ledger view.
// Satisfied by *database.Queries.
type DebtStore interface {
	ListDebtOrders(ctx context.Context, hotelID uuid.UUID) ([]database.Order, error)
}

// DebtHandler serves the outstanding-debt view the redistribution screen
// works from.
type DebtHandler struct {
	store DebtStore
}

// NewDebtHandler creates a new DebtHandler.
func NewDebtHandler(store DebtStore) *DebtHandler {
	return &DebtHandler{store: store}
}

// RegisterRoutes registers debt endpoints on the given Chi router.
// Expected to be mounted inside a hotel-scoped subrouter: /hotels/{hid}/debts
func (h *DebtHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
}

type debtListResponse struct {
	Orders    []orderResponse `json:"orders"`
	TotalOwed string          `json:"total_owed"`
}

// List handles GET /hotels/{hid}/debts.
// Returns every order carrying a named debt, oldest first, with the debtor
// allocations decoded and the aggregate owed amount.
func (h *DebtHandler) List(w http.ResponseWriter, r *http.Request) {
	hotelID, err := uuid.Parse(chi.URLParam(r, "hid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hotel ID"})
		return
	}

	orders, err := h.store.ListDebtOrders(r.Context(), hotelID)
	if err != nil {
		log.Printf("ERROR: list debt orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := debtListResponse{Orders: make([]orderResponse, len(orders))}
	totalOwed := decimal.Zero
	for i, o := range orders {
		resp.Orders[i] = toOrderResponse(o, nil)
		balance := numericToDecimal(o.TotalAmount).Sub(numericToDecimal(o.AmountPaid))
		totalOwed = totalOwed.Add(ledger.SumDebtors(ledger.DecodeDebtors(o.DebtorName.String, balance)))
	}
	resp.TotalOwed = totalOwed.StringFixed(2)

	writeJSON(w, http.StatusOK, resp)
}
