package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// MenuStore defines the database methods needed by menu handlers.
// Satisfied by *database.Queries.
type MenuStore interface {
	CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	ListMenuItems(ctx context.Context, hotelID uuid.UUID) ([]database.MenuItem, error)
}

// MenuHandler handles menu item endpoints.
type MenuHandler struct {
	store MenuStore
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store}
}

// RegisterRoutes registers menu endpoints on the given Chi router.
// Expected to be mounted inside a hotel-scoped subrouter: /hotels/{hid}/menu
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
}

// --- Request / Response types ---

type createMenuItemRequest struct {
	Name            string `json:"name"`
	UnitPrice       string `json:"unit_price"`
	FulfillmentKind string `json:"fulfillment_kind"`
}

type menuItemResponse struct {
	ID              uuid.UUID `json:"id"`
	HotelID         uuid.UUID `json:"hotel_id"`
	Name            string    `json:"name"`
	UnitPrice       string    `json:"unit_price"`
	FulfillmentKind string    `json:"fulfillment_kind"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// --- Handlers ---

// Create handles POST /hotels/{hid}/menu.
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	hotelID, err := uuid.Parse(chi.URLParam(r, "hid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hotel ID"})
		return
	}

	var req createMenuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if !isValidFulfillmentKind(req.FulfillmentKind) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fulfillment_kind"})
		return
	}

	price, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || price.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit_price"})
		return
	}

	var priceNum pgtype.Numeric
	_ = priceNum.Scan(price.StringFixed(2))

	item, err := h.store.CreateMenuItem(r.Context(), database.CreateMenuItemParams{
		HotelID:         hotelID,
		Name:            req.Name,
		UnitPrice:       priceNum,
		FulfillmentKind: req.FulfillmentKind,
	})
	if err != nil {
		log.Printf("ERROR: create menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toMenuItemResponse(item))
}

// List handles GET /hotels/{hid}/menu.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	hotelID, err := uuid.Parse(chi.URLParam(r, "hid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid hotel ID"})
		return
	}

	items, err := h.store.ListMenuItems(r.Context(), hotelID)
	if err != nil {
		log.Printf("ERROR: list menu items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]menuItemResponse, len(items))
	for i, item := range items {
		resp[i] = toMenuItemResponse(item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func isValidFulfillmentKind(k string) bool {
	switch k {
	case enum.FulfillmentKitchen, enum.FulfillmentDirect, enum.FulfillmentCombo:
		return true
	}
	return false
}

func toMenuItemResponse(item database.MenuItem) menuItemResponse {
	return menuItemResponse{
		ID:              item.ID,
		HotelID:         item.HotelID,
		Name:            item.Name,
		UnitPrice:       numericToDecimal(item.UnitPrice).StringFixed(2),
		FulfillmentKind: item.FulfillmentKind,
		Active:          item.Active,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
}
