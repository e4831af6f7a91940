package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/ledger"
	"github.com/jikoni-pos/api/internal/middleware"
	"github.com/jikoni-pos/api/internal/service"
	"github.com/shopspring/decimal"
)

// CartServicer defines the service methods needed by the order create handler.
// Satisfied by *service.CartService; narrow interface for testability.
type CartServicer interface {
	SubmitCart(ctx context.Context, req service.SubmitCartRequest) (*service.SubmitCartResult, error)
}

// LifecycleServicer defines the service methods driving status transitions.
// Satisfied by *service.LifecycleService.
type LifecycleServicer interface {
	AcceptOrder(ctx context.Context, hotelID, orderID, chefID uuid.UUID) (database.Order, error)
	MarkServed(ctx context.Context, hotelID, orderID uuid.UUID) (database.Order, error)
	ClearOrder(ctx context.Context, hotelID, orderID uuid.UUID) (database.Order, error)
	DeclineOrder(ctx context.Context, hotelID, orderID uuid.UUID) error
	RemoveItem(ctx context.Context, hotelID, orderID, itemID uuid.UUID) error
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	cart      CartServicer
	lifecycle LifecycleServicer
	store     OrderStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(cart CartServicer, lifecycle LifecycleServicer, store OrderStore) *OrderHandler {
	return &OrderHandler{cart: cart, lifecycle: lifecycle, store: store}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a hotel-scoped subrouter: /hotels/{hid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/accept", h.Accept)
	r.Post("/{id}/serve", h.Serve)
	r.Post("/{id}/clear", h.Clear)
	r.Delete("/{id}", h.Decline)
	r.Delete("/{id}/items/{itemID}", h.RemoveItem)
}

// --- Request / Response types ---

type createOrderRequest struct {
	Items []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
}

type allocationResponse struct {
	Method string `json:"method"`
	Amount string `json:"amount"`
}

type debtorResponse struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type orderResponse struct {
	ID            uuid.UUID            `json:"id"`
	HotelID       uuid.UUID            `json:"hotel_id"`
	OrderNumber   int32                `json:"order_number"`
	OrderCode     string               `json:"order_code"`
	Status        string               `json:"status"`
	TotalAmount   string               `json:"total_amount"`
	AmountPaid    string               `json:"amount_paid"`
	Balance       string               `json:"balance"`
	Payments      []allocationResponse `json:"payments"`
	IsDebt        bool                 `json:"is_debt"`
	Debtors       []debtorResponse     `json:"debtors"`
	ChefID        *string              `json:"chef_id"`
	WaiterID      *string              `json:"waiter_id"`
	LinkedOrderID *string              `json:"linked_order_id"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Items         []orderItemResponse  `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID              uuid.UUID `json:"id"`
	MenuItemID      uuid.UUID `json:"menu_item_id"`
	DisplayName     string    `json:"display_name"`
	Quantity        int32     `json:"quantity"`
	UnitPrice       string    `json:"unit_price"`
	FulfillmentKind string    `json:"fulfillment_kind"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// createOrderResponse reports every order a cart submit produced.
type createOrderResponse struct {
	Orders []orderResponse `json:"orders"`
}

// --- Handlers ---

// Create handles POST /hotels/{hid}/orders.
// A mixed cart produces two linked orders; the response carries both.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	hotelID, err := uuid.Parse(chi.URLParam(r, "hid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hotel ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	svcItems := make([]service.CartItemRequest, len(req.Items))
	for i, item := range req.Items {
		svcItems[i] = service.CartItemRequest{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
		}
	}

	result, err := h.cart.SubmitCart(r.Context(), service.SubmitCartRequest{
		HotelID:  hotelID,
		WaiterID: claims.UserID,
		Items:    svcItems,
	})
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		log.Printf("ERROR: submit cart: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := createOrderResponse{Orders: make([]orderResponse, len(result.Orders))}
	for i, ow := range result.Orders {
		resp.Orders[i] = toOrderResponse(ow.Order, ow.Items)
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /hotels/{hid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	hotelID, err := uuid.Parse(chi.URLParam(r, "hid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hotel ID"})
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	// Parse pagination
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	// Build query params with optional filters
	params := database.ListOrdersParams{
		HotelID: hotelID,
		Limit:   int32(limit),
		Offset:  int32(offset),
	}

	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid start_date format, use YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid end_date format, use YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t, Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o, nil)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /hotels/{hid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	hotelID, orderID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{
		ID:      orderID,
		HotelID: hotelID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, items))
}

// Accept handles POST /hotels/{hid}/orders/{id}/accept.
// Claims a pending kitchen order for the authenticated chef. Exactly one of
// two concurrent accepts wins; the loser gets 409.
func (h *OrderHandler) Accept(w http.ResponseWriter, r *http.Request) {
	hotelID, orderID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	order, err := h.lifecycle.AcceptOrder(r.Context(), hotelID, orderID, claims.UserID)
	if err != nil {
		h.writeLifecycleError(w, err, "accept order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// Serve handles POST /hotels/{hid}/orders/{id}/serve.
func (h *OrderHandler) Serve(w http.ResponseWriter, r *http.Request) {
	hotelID, orderID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	order, err := h.lifecycle.MarkServed(r.Context(), hotelID, orderID)
	if err != nil {
		h.writeLifecycleError(w, err, "mark served")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// Clear handles POST /hotels/{hid}/orders/{id}/clear.
func (h *OrderHandler) Clear(w http.ResponseWriter, r *http.Request) {
	hotelID, orderID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	order, err := h.lifecycle.ClearOrder(r.Context(), hotelID, orderID)
	if err != nil {
		h.writeLifecycleError(w, err, "clear order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, nil))
}

// Decline handles DELETE /hotels/{hid}/orders/{id}.
// Removes the order and its whole link-group, provided nothing in the group
// has progressed.
func (h *OrderHandler) Decline(w http.ResponseWriter, r *http.Request) {
	hotelID, orderID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.DeclineOrder(r.Context(), hotelID, orderID); err != nil {
		h.writeLifecycleError(w, err, "decline order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveItem handles DELETE /hotels/{hid}/orders/{id}/items/{itemID}.
func (h *OrderHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	hotelID, orderID, ok := pathIDs(w, r)
	if !ok {
		return
	}

	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid item ID"})
		return
	}

	if err := h.lifecycle.RemoveItem(r.Context(), hotelID, orderID, itemID); err != nil {
		h.writeLifecycleError(w, err, "remove item")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

// pathIDs parses {hid} and {id} from the URL, writing the 400 itself.
func pathIDs(w http.ResponseWriter, r *http.Request) (hotelID, orderID uuid.UUID, ok bool) {
	hotelID, err := uuid.Parse(chi.URLParam(r, "hid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hotel ID"})
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return uuid.Nil, uuid.Nil, false
	}
	return hotelID, orderID, true
}

// writeLifecycleError maps service errors from status transitions to HTTP
// responses. Lost races and wrong-state preconditions are 409; input
// validation is 400, matching writePaymentError.
func (h *OrderHandler) writeLifecycleError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case isConflictError(err),
		errors.Is(err, service.ErrOrderNotPreparing),
		errors.Is(err, service.ErrOrderNotPending),
		errors.Is(err, service.ErrOrderNotPaid):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyCart) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrMenuItemNotFound) ||
		errors.Is(err, service.ErrInvalidMenuItemID) ||
		errors.Is(err, service.ErrZeroPayment) ||
		errors.Is(err, service.ErrNegativeAmount) ||
		errors.Is(err, service.ErrExceedsBalance) ||
		errors.Is(err, service.ErrInvalidMethod) ||
		errors.Is(err, service.ErrMissingDebtor) ||
		errors.Is(err, service.ErrOrderNotServed) ||
		errors.Is(err, service.ErrNothingDue) ||
		errors.Is(err, service.ErrOrderNotPending) ||
		errors.Is(err, service.ErrOrderNotPreparing) ||
		errors.Is(err, service.ErrOrderNotPaid) ||
		errors.Is(err, service.ErrOrderCleared) ||
		errors.Is(err, service.ErrNoPaymentHistory) ||
		errors.Is(err, service.ErrAllocationMismatch)
}

// isConflictError checks for lost-race errors that should result in 409.
func isConflictError(err error) bool {
	return errors.Is(err, service.ErrOrderTaken) ||
		errors.Is(err, service.ErrGroupInProgress)
}

// toOrderResponse converts a database.Order (plus optional items) to the
// wire representation, decoding the ledger fields into structured lists.
func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	total := numericToDecimal(o.TotalAmount)
	paid := numericToDecimal(o.AmountPaid)
	balance := total.Sub(paid)

	resp := orderResponse{
		ID:          o.ID,
		HotelID:     o.HotelID,
		OrderNumber: o.OrderNumber,
		OrderCode:   service.OrderCode(o.OrderNumber),
		Status:      o.Status,
		TotalAmount: total.StringFixed(2),
		AmountPaid:  paid.StringFixed(2),
		Balance:     balance.StringFixed(2),
		IsDebt:      o.IsDebt,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}

	for _, a := range ledger.DecodeMethods(o.PaymentMethod.String, paid) {
		resp.Payments = append(resp.Payments, allocationResponse{
			Method: a.Method,
			Amount: a.Amount.StringFixed(2),
		})
	}
	for _, d := range ledger.DecodeDebtors(o.DebtorName.String, balance) {
		resp.Debtors = append(resp.Debtors, debtorResponse{
			Name:   d.Name,
			Amount: d.Amount.StringFixed(2),
		})
	}

	if o.ChefID.Valid {
		s := uuid.UUID(o.ChefID.Bytes).String()
		resp.ChefID = &s
	}
	if o.WaiterID.Valid {
		s := uuid.UUID(o.WaiterID.Bytes).String()
		resp.WaiterID = &s
	}
	if o.LinkedOrderID.Valid {
		s := uuid.UUID(o.LinkedOrderID.Bytes).String()
		resp.LinkedOrderID = &s
	}

	if items != nil {
		resp.Items = make([]orderItemResponse, len(items))
		for i, it := range items {
			resp.Items[i] = toOrderItemResponse(it)
		}
	}

	return resp
}

func toOrderItemResponse(it database.OrderItem) orderItemResponse {
	return orderItemResponse{
		ID:              it.ID,
		MenuItemID:      it.MenuItemID,
		DisplayName:     it.DisplayName,
		Quantity:        it.Quantity,
		UnitPrice:       numericToDecimal(it.UnitPrice).StringFixed(2),
		FulfillmentKind: it.FulfillmentKind,
	}
}

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
