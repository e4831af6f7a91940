package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/ledger"
	"github.com/jikoni-pos/api/internal/middleware"
	"github.com/jikoni-pos/api/internal/service"
	"github.com/shopspring/decimal"
)

// Settler defines the service method applying a payment event.
// Satisfied by *service.SettlementService.
type Settler interface {
	Settle(ctx context.Context, req service.SettleRequest) (*service.SettleResult, error)
}

// Redistributor defines the service method rewriting a payment allocation.
// Satisfied by *service.RedistributionService.
type Redistributor interface {
	Redistribute(ctx context.Context, req service.RedistributeRequest) (database.Order, error)
}

// PaymentHandler handles payment endpoints nested under an order.
type PaymentHandler struct {
	settler       Settler
	redistributor Redistributor
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(settler Settler, redistributor Redistributor) *PaymentHandler {
	return &PaymentHandler{settler: settler, redistributor: redistributor}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
// Expected to be mounted at /hotels/{hid}/orders/{id}/payments
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Settle)
	r.Put("/", h.Redistribute)
}

// --- Request / Response types ---

type contributionRequest struct {
	Method string `json:"method"`
	Amount string `json:"amount"`
}

type settleRequest struct {
	Contributions []contributionRequest `json:"contributions"`
	DebtorName    string                `json:"debtor_name"`
}

type receiptResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  string          `json:"total"`
}

type settleResponse struct {
	Order   orderResponse    `json:"order"`
	Receipt *receiptResponse `json:"receipt,omitempty"`
}

type redistributeRequest struct {
	Payments []contributionRequest `json:"payments"`
	Debtors  []debtorRequest       `json:"debtors"`
}

type debtorRequest struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// --- Handlers ---

// Settle handles POST /hotels/{hid}/orders/{id}/payments.
// Applies one payment event: one or more method contributions plus an
// optional named-debt component. A fully settled order returns the combined
// receipt.
func (h *PaymentHandler) Settle(w http.ResponseWriter, r *http.Request) {
	hotelID, orderID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if len(req.Contributions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "contributions are required"})
		return
	}

	contributions := make([]service.Contribution, len(req.Contributions))
	for i, c := range req.Contributions {
		amount, err := decimal.NewFromString(c.Amount)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid contribution amount"})
			return
		}
		contributions[i] = service.Contribution{Method: c.Method, Amount: amount}
	}

	result, err := h.settler.Settle(r.Context(), service.SettleRequest{
		HotelID:       hotelID,
		OrderID:       orderID,
		WaiterID:      claims.UserID,
		Contributions: contributions,
		DebtorName:    req.DebtorName,
	})
	if err != nil {
		h.writePaymentError(w, err, "settle")
		return
	}

	resp := settleResponse{Order: toOrderResponse(result.Order, nil)}
	if result.Receipt != nil {
		receipt := &receiptResponse{Total: result.Receipt.Total.StringFixed(2)}
		for _, ow := range result.Receipt.Orders {
			receipt.Orders = append(receipt.Orders, toOrderResponse(ow.Order, ow.Items))
		}
		resp.Receipt = receipt
	}

	writeJSON(w, http.StatusOK, resp)
}

// Redistribute handles PUT /hotels/{hid}/orders/{id}/payments.
// Replaces the order's whole payment allocation. The new allocation must sum
// to the order total exactly.
func (h *PaymentHandler) Redistribute(w http.ResponseWriter, r *http.Request) {
	hotelID, orderID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req redistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	payments := make([]ledger.Allocation, len(req.Payments))
	for i, p := range req.Payments {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment amount"})
			return
		}
		payments[i] = ledger.Allocation{Method: p.Method, Amount: amount}
	}

	debtors := make([]ledger.DebtorAllocation, len(req.Debtors))
	for i, d := range req.Debtors {
		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid debtor amount"})
			return
		}
		debtors[i] = ledger.DebtorAllocation{Name: d.Name, Amount: amount}
	}

	order, err := h.redistributor.Redistribute(r.Context(), service.RedistributeRequest{
		HotelID:  hotelID,
		OrderID:  orderID,
		ActorID:  claims.UserID,
		Payments: payments,
		Debtors:  debtors,
	})
	if err != nil {
		h.writePaymentError(w, err, "redistribute")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// --- Helpers ---

func (h *PaymentHandler) writePaymentError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrOrderNotServed),
		errors.Is(err, service.ErrNothingDue),
		errors.Is(err, service.ErrOrderCleared),
		errors.Is(err, service.ErrNoPaymentHistory):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
