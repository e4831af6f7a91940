//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jikoni-pos/api/internal/config"
	"github.com/jikoni-pos/api/internal/database"
	"github.com/jikoni-pos/api/internal/router"
	"github.com/jikoni-pos/api/internal/ws"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationFlow exercises the full order lifecycle against a real
// PostgreSQL database: mixed-cart split, chef accept/serve, partial and full
// settlement, debt recording, redistribution, and clearing.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runTestMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:        "8081",
		DatabaseURL: connStr,
		JWTSecret:   "integration-test-secret",
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit — Hub has no shutdown
	// mechanism. Acceptable for tests.
	go hub.Run()

	log := logrus.New()
	log.SetOutput(io.Discard)

	r := router.New(cfg, queries, pool, hub, log)
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Bootstrap hotel and users via direct DB inserts ---
	hotelID := createHotel(t, ctx, pool)
	createUser(t, ctx, pool, hotelID, "owner@test.com", "OWNER")
	createUser(t, ctx, pool, hotelID, "chef@test.com", "CHEF")
	createUser(t, ctx, pool, hotelID, "waiter@test.com", "WAITER")

	ownerToken := login(t, server, "owner@test.com")
	chefToken := login(t, server, "chef@test.com")
	waiterToken := login(t, server, "waiter@test.com")

	// --- 2. Owner builds the menu ---
	foodResp := createMenuItem(t, server, hotelID, ownerToken, "Nyama Choma", "650", "kitchen")
	foodID := foodResp["id"].(string)
	drinkResp := createMenuItem(t, server, hotelID, ownerToken, "Soda", "80", "direct")
	drinkID := drinkResp["id"].(string)

	// --- 3. Waiter submits a mixed cart: split into two linked orders ---
	createResp := httpPostJSON(t, server, fmt.Sprintf("/hotels/%s/orders", hotelID), map[string]interface{}{
		"items": []map[string]interface{}{
			{"menu_item_id": foodID, "quantity": 2},
			{"menu_item_id": drinkID, "quantity": 3},
		},
	}, waiterToken)

	orders := createResp["orders"].([]interface{})
	if len(orders) != 2 {
		t.Fatalf("mixed cart: got %d orders, want 2", len(orders))
	}

	var kitchenOrder, directOrder map[string]interface{}
	for _, o := range orders {
		om := o.(map[string]interface{})
		switch om["status"].(string) {
		case "pending":
			kitchenOrder = om
		case "served":
			directOrder = om
		}
	}
	if kitchenOrder == nil || directOrder == nil {
		t.Fatalf("expected one pending and one served order, got %v", orders)
	}
	if kitchenOrder["linked_order_id"].(string) != directOrder["id"].(string) {
		t.Fatal("kitchen order should link to the direct order")
	}
	if kitchenOrder["total_amount"].(string) != "1300.00" {
		t.Fatalf("kitchen total: got %s, want 1300.00", kitchenOrder["total_amount"])
	}
	if directOrder["total_amount"].(string) != "240.00" {
		t.Fatalf("direct total: got %s, want 240.00", directOrder["total_amount"])
	}

	kitchenID := kitchenOrder["id"].(string)
	directID := directOrder["id"].(string)

	// --- 4. Chef accepts and serves the kitchen order ---
	accepted := httpPostJSON(t, server, fmt.Sprintf("/hotels/%s/orders/%s/accept", hotelID, kitchenID), nil, chefToken)
	if accepted["status"].(string) != "preparing" {
		t.Fatalf("after accept: got %s, want preparing", accepted["status"])
	}

	// A second accept must lose the race.
	rec := httpDo(t, server, "POST", fmt.Sprintf("/hotels/%s/orders/%s/accept", hotelID, kitchenID), nil, chefToken)
	rec.Body.Close()
	if rec.StatusCode != http.StatusConflict {
		t.Fatalf("double accept: got %d, want 409", rec.StatusCode)
	}

	served := httpPostJSON(t, server, fmt.Sprintf("/hotels/%s/orders/%s/serve", hotelID, kitchenID), nil, chefToken)
	if served["status"].(string) != "served" {
		t.Fatalf("after serve: got %s, want served", served["status"])
	}

	// --- 5. Partial then full settlement of the direct order ---
	partial := httpPutOrPostJSON(t, server, "POST", fmt.Sprintf("/hotels/%s/orders/%s/payments", hotelID, directID), map[string]interface{}{
		"contributions": []map[string]interface{}{{"method": "cash", "amount": "100"}},
	}, waiterToken)
	partialOrder := partial["order"].(map[string]interface{})
	if partialOrder["status"].(string) != "served" {
		t.Fatalf("after partial payment: got %s, want served", partialOrder["status"])
	}
	if _, hasReceipt := partial["receipt"]; hasReceipt {
		t.Fatal("partial payment must not carry a receipt")
	}

	full := httpPutOrPostJSON(t, server, "POST", fmt.Sprintf("/hotels/%s/orders/%s/payments", hotelID, directID), map[string]interface{}{
		"contributions": []map[string]interface{}{{"method": "mpesa", "amount": "140"}},
	}, waiterToken)
	fullOrder := full["order"].(map[string]interface{})
	if fullOrder["status"].(string) != "paid" {
		t.Fatalf("after full payment: got %s, want paid", fullOrder["status"])
	}
	if full["receipt"] == nil {
		t.Fatal("full payment must carry a receipt")
	}

	// --- 6. Settle the kitchen order with cash + named debt ---
	debtSettle := httpPutOrPostJSON(t, server, "POST", fmt.Sprintf("/hotels/%s/orders/%s/payments", hotelID, kitchenID), map[string]interface{}{
		"contributions": []map[string]interface{}{
			{"method": "cash", "amount": "900"},
			{"method": "debt", "amount": "400"},
		},
		"debtor_name": "Mwangi",
	}, waiterToken)
	debtOrder := debtSettle["order"].(map[string]interface{})
	if debtOrder["is_debt"] != true {
		t.Fatal("kitchen order should be flagged as debt")
	}

	// Debt shows up on the hotel's debt ledger.
	debts := httpGetJSON(t, server, fmt.Sprintf("/hotels/%s/debts", hotelID), waiterToken)
	if debts["total_owed"].(string) != "400.00" {
		t.Fatalf("total owed: got %s, want 400.00", debts["total_owed"])
	}

	// --- 7. Redistribute: move the debt into mpesa, closing the order ---
	redistributed := httpPutOrPostJSON(t, server, "PUT", fmt.Sprintf("/hotels/%s/orders/%s/payments", hotelID, kitchenID), map[string]interface{}{
		"payments": []map[string]interface{}{
			{"method": "cash", "amount": "900"},
			{"method": "mpesa", "amount": "400"},
		},
	}, waiterToken)
	if redistributed["status"].(string) != "paid" {
		t.Fatalf("after redistribution: got %s, want paid", redistributed["status"])
	}
	if redistributed["is_debt"] != false {
		t.Fatal("redistribution to full cash-like allocation should clear the debt flag")
	}

	// --- 8. Clear both orders ---
	cleared := httpPostJSON(t, server, fmt.Sprintf("/hotels/%s/orders/%s/clear", hotelID, kitchenID), nil, waiterToken)
	if cleared["status"].(string) != "cleared" {
		t.Fatalf("after clear: got %s, want cleared", cleared["status"])
	}

	t.Logf("integration flow passed: container=%s, hotel=%s, kitchen=%s, direct=%s",
		pgContainer.GetContainerID(), hotelID, kitchenID, directID)
}

// TestIntegrationDeclineCascade verifies that declining a kitchen order also
// removes its untouched direct sibling.
func TestIntegrationDeclineCascade(t *testing.T) {
	ctx := context.Background()

	_, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runTestMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{Port: "8082", DatabaseURL: connStr, JWTSecret: "integration-test-secret"}
	queries := database.New(pool)
	hub := ws.NewHub()
	go hub.Run()

	log := logrus.New()
	log.SetOutput(io.Discard)

	server := httptest.NewServer(router.New(cfg, queries, pool, hub, log))
	defer server.Close()

	hotelID := createHotel(t, ctx, pool)
	createUser(t, ctx, pool, hotelID, "owner@test.com", "OWNER")
	createUser(t, ctx, pool, hotelID, "waiter@test.com", "WAITER")
	ownerToken := login(t, server, "owner@test.com")
	waiterToken := login(t, server, "waiter@test.com")

	foodID := createMenuItem(t, server, hotelID, ownerToken, "Pilau", "400", "kitchen")["id"].(string)
	drinkID := createMenuItem(t, server, hotelID, ownerToken, "Tusker", "250", "direct")["id"].(string)

	createResp := httpPostJSON(t, server, fmt.Sprintf("/hotels/%s/orders", hotelID), map[string]interface{}{
		"items": []map[string]interface{}{
			{"menu_item_id": foodID, "quantity": 1},
			{"menu_item_id": drinkID, "quantity": 1},
		},
	}, waiterToken)
	orders := createResp["orders"].([]interface{})
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}

	first := orders[0].(map[string]interface{})
	second := orders[1].(map[string]interface{})

	rec := httpDo(t, server, "DELETE", fmt.Sprintf("/hotels/%s/orders/%s", hotelID, first["id"]), nil, waiterToken)
	rec.Body.Close()
	if rec.StatusCode != http.StatusNoContent {
		t.Fatalf("decline: got %d, want 204", rec.StatusCode)
	}

	// Both orders in the link-group must be gone.
	for _, id := range []interface{}{first["id"], second["id"]} {
		rec := httpDo(t, server, "GET", fmt.Sprintf("/hotels/%s/orders/%s", hotelID, id), nil, waiterToken)
		rec.Body.Close()
		if rec.StatusCode != http.StatusNotFound {
			t.Fatalf("order %v should be gone, got %d", id, rec.StatusCode)
		}
	}
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runTestMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this test file's package directory.
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createHotel(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx,
		`INSERT INTO hotels (name) VALUES ($1) RETURNING id`,
		"Integration Hotel",
	).Scan(&id)
	if err != nil {
		t.Fatalf("create hotel: %v", err)
	}
	return id
}

func createUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, hotelID uuid.UUID, email, role string) uuid.UUID {
	t.Helper()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (hotel_id, email, password_hash, full_name, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		hotelID, email, string(hashedPassword), "Test "+role, role,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create %s user: %v", role, err)
	}
	return id
}

// --- API call helpers ---

func login(t *testing.T, server *httptest.Server, email string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"email":    email,
		"password": "password123",
	}, "")
	token, ok := resp["access_token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no access_token in response: %+v", resp)
	}
	return token
}

func createMenuItem(t *testing.T, server *httptest.Server, hotelID uuid.UUID, token, name, price, kind string) map[string]interface{} {
	t.Helper()
	return httpPostJSON(t, server, fmt.Sprintf("/hotels/%s/menu", hotelID), map[string]interface{}{
		"name":             name,
		"unit_price":       price,
		"fulfillment_kind": kind,
	}, token)
}

// --- HTTP helpers ---

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	return httpPutOrPostJSON(t, server, "POST", path, body, token)
}

func httpPutOrPostJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	resp := httpDo(t, server, method, path, body, token)
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("%s %s: status %d, body: %v", method, path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path, token string) map[string]interface{} {
	t.Helper()
	resp := httpDo(t, server, "GET", path, nil, token)
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		t.Fatalf("GET %s: status %d, body: %v", path, resp.StatusCode, errResp)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return result
}

func httpDo(t *testing.T, server *httptest.Server, method, path string, body map[string]interface{}, token string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}
