package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"wholesale-backend/internal/config"
	"wholesale-backend/internal/testdb"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-at-least-32-characters!"

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testSecret,
		CORSOrigins:        "http://localhost:5173",
		DefaultPhoneRegion: "US",
	}
	return New(cfg, testdb.New(t), nil)
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode(t *testing.T, raw []byte, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, out), string(raw))
}

func login(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()
	status, raw := call(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, string(raw))

	var res struct {
		Token string `json:"token"`
	}
	decode(t, raw, &res)
	require.NotEmpty(t, res.Token)
	return res.Token
}

// bootstrap registers an admin and a staff user and returns their tokens.
func bootstrap(t *testing.T, app *fiber.App) (adminToken, staffToken string, staffUserID uint) {
	t.Helper()

	status, raw := call(t, app, http.MethodPost, "/api/auth/register-admin", "", fiber.Map{
		"name":     "Owner",
		"email":    "Owner@Example.com",
		"password": "owner-password",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	adminToken = login(t, app, "owner@example.com", "owner-password")

	status, raw = call(t, app, http.MethodPost, "/api/users", adminToken, fiber.Map{
		"name":     "Clerk",
		"email":    "clerk@example.com",
		"password": "clerk-password",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var user struct {
		ID   uint   `json:"id"`
		Role string `json:"role"`
	}
	decode(t, raw, &user)
	assert.Equal(t, "staff", user.Role)

	staffToken = login(t, app, "clerk@example.com", "clerk-password")
	return adminToken, staffToken, user.ID
}

func createProduct(t *testing.T, app *fiber.App, token, sku string) uint {
	t.Helper()
	status, raw := call(t, app, http.MethodPost, "/api/products", token, fiber.Map{
		"name":                "Desk Massager",
		"category":            "Massager",
		"sku":                 sku,
		"price":               "50.00",
		"cost_price":          "30.00",
		"low_stock_threshold": 5,
	})
	require.Equal(t, http.StatusCreated, status, string(raw))

	var p struct {
		ID uint `json:"id"`
	}
	decode(t, raw, &p)
	return p.ID
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	status, raw := call(t, app, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Wholesale Management API is running", string(raw))
}

func TestAuthFlow(t *testing.T) {
	app := newTestApp(t)
	adminToken, staffToken, _ := bootstrap(t, app)

	// only one bootstrap admin
	status, _ := call(t, app, http.MethodPost, "/api/auth/register-admin", "", fiber.Map{
		"name": "Second", "email": "second@example.com", "password": "second-password",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, http.MethodPost, "/api/auth/login", "", fiber.Map{
		"email": "owner@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, raw := call(t, app, http.MethodGet, "/api/auth/me", staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	var me struct {
		Email string `json:"email"`
	}
	decode(t, raw, &me)
	assert.Equal(t, "clerk@example.com", me.Email)

	status, _ = call(t, app, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, app, http.MethodGet, "/api/users", staffToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, http.MethodPost, "/api/users", adminToken, fiber.Map{
		"name": "Clerk", "email": "clerk@example.com", "password": "clerk-password",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, raw = call(t, app, http.MethodPost, "/api/users", adminToken, fiber.Map{
		"name": "No Password", "email": "bad",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	var verr struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, raw, &verr)
	assert.Equal(t, "validation failed", verr.Error)
	assert.Equal(t, "email", verr.Fields["Email"])
	assert.Equal(t, "required", verr.Fields["Password"])
}

func TestInventoryLifecycle(t *testing.T) {
	app := newTestApp(t)
	adminToken, staffToken, _ := bootstrap(t, app)
	productID := createProduct(t, app, adminToken, "MSG-001")

	// staff cannot create inventory records
	status, _ := call(t, app, http.MethodPost, "/api/inventory", staffToken, fiber.Map{
		"product_id": productID, "quantity": 10,
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, http.MethodPost, "/api/inventory", adminToken, fiber.Map{
		"product_id": 9999, "quantity": 10,
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, raw := call(t, app, http.MethodPost, "/api/inventory", adminToken, fiber.Map{
		"product_id": productID,
		"quantity":   10,
		"location":   fiber.Map{"warehouse": "Main", "section": "A", "shelf": "3"},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var inv struct {
		ID           uint `json:"id"`
		Quantity     int  `json:"quantity"`
		Transactions []struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"transactions"`
	}
	decode(t, raw, &inv)
	assert.Equal(t, 10, inv.Quantity)
	require.Len(t, inv.Transactions, 1)
	assert.Equal(t, "in", inv.Transactions[0].Type)
	assert.Equal(t, "Initial stock", inv.Transactions[0].Reason)

	status, _ = call(t, app, http.MethodPost, "/api/inventory", adminToken, fiber.Map{
		"product_id": productID, "quantity": 1,
	})
	assert.Equal(t, http.StatusConflict, status)

	txPath := fmt.Sprintf("/api/inventory/%d/transaction", inv.ID)

	status, raw = call(t, app, http.MethodPost, txPath, staffToken, fiber.Map{
		"type": "in", "quantity": 5, "reason": "Restock",
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	decode(t, raw, &inv)
	assert.Equal(t, 15, inv.Quantity)

	status, raw = call(t, app, http.MethodPost, txPath, staffToken, fiber.Map{
		"type": "out", "quantity": 20,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	var errBody struct {
		Error string `json:"error"`
	}
	decode(t, raw, &errBody)
	assert.Equal(t, "Not enough stock available", errBody.Error)

	status, _ = call(t, app, http.MethodPost, txPath, staffToken, fiber.Map{
		"type": "return", "quantity": 1,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = call(t, app, http.MethodPost, txPath, staffToken, fiber.Map{
		"type": "adjustment", "quantity": 3, "reason": "Stock count",
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	decode(t, raw, &inv)
	assert.Equal(t, 3, inv.Quantity)

	status, _ = call(t, app, http.MethodPost, "/api/inventory/9999/transaction", staffToken, fiber.Map{
		"type": "in", "quantity": 1,
	})
	assert.Equal(t, http.StatusNotFound, status)

	// product mirror follows the record
	status, raw = call(t, app, http.MethodGet, fmt.Sprintf("/api/products/%d", productID), staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	var product struct {
		StockQuantity int  `json:"stock_quantity"`
		IsLowStock    bool `json:"is_low_stock"`
	}
	decode(t, raw, &product)
	assert.Equal(t, 3, product.StockQuantity)
	assert.True(t, product.IsLowStock)

	status, raw = call(t, app, http.MethodGet, fmt.Sprintf("/api/inventory/%d/transactions", inv.ID), staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	var txs []struct {
		Type          string `json:"type"`
		QuantityAfter int    `json:"quantity_after"`
	}
	decode(t, raw, &txs)
	require.Len(t, txs, 3)
	assert.Equal(t, "adjustment", txs[2].Type)
	assert.Equal(t, 3, txs[2].QuantityAfter)

	// PUT with a new quantity is recorded as a manual adjustment
	status, raw = call(t, app, http.MethodPut, fmt.Sprintf("/api/inventory/%d", inv.ID), adminToken, fiber.Map{
		"quantity": 8,
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	decode(t, raw, &inv)
	assert.Equal(t, 8, inv.Quantity)
	assert.Equal(t, "Manual adjustment", inv.Transactions[len(inv.Transactions)-1].Reason)

	// tracked stock can no longer be edited or deleted through products
	status, _ = call(t, app, http.MethodPut, fmt.Sprintf("/api/products/%d", productID), adminToken, fiber.Map{
		"stock_quantity": 100,
	})
	assert.Equal(t, http.StatusConflict, status)
	status, _ = call(t, app, http.MethodDelete, fmt.Sprintf("/api/products/%d", productID), adminToken, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, raw = call(t, app, http.MethodGet, "/api/inventory?warehouse=Main", staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	var list []map[string]any
	decode(t, raw, &list)
	assert.Len(t, list, 1)

	status, raw = call(t, app, http.MethodGet, "/api/inventory?warehouse=Annex", staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, raw, &list)
	assert.Empty(t, list)

	req := httptest.NewRequest(http.MethodGet, "/api/inventory/export", nil)
	req.Header.Set("Authorization", "Bearer "+staffToken)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	status, raw = call(t, app, http.MethodGet, "/api/audit-logs?entity_type=inventory", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var logs []map[string]any
	decode(t, raw, &logs)
	assert.Len(t, logs, 4)

	status, _ = call(t, app, http.MethodGet, "/api/audit-logs", staffToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestProducts(t *testing.T) {
	app := newTestApp(t)
	adminToken, staffToken, _ := bootstrap(t, app)
	productID := createProduct(t, app, adminToken, "BK-1")

	status, _ := call(t, app, http.MethodPost, "/api/products", adminToken, fiber.Map{
		"name": "Copy", "category": "Books", "sku": "BK-1", "price": "1", "cost_price": "1",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = call(t, app, http.MethodPost, "/api/products", adminToken, fiber.Map{
		"name": "Odd", "category": "Garden", "sku": "GD-1", "price": "1", "cost_price": "1",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, app, http.MethodPost, "/api/products", staffToken, fiber.Map{
		"name": "Nope", "category": "Books", "sku": "BK-2", "price": "1", "cost_price": "1",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, raw := call(t, app, http.MethodGet, fmt.Sprintf("/api/products/%d", productID), staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	var p struct {
		ProfitMargin string `json:"profit_margin"`
		IsActive     bool   `json:"is_active"`
	}
	decode(t, raw, &p)
	assert.Equal(t, "40", p.ProfitMargin)
	assert.True(t, p.IsActive)

	status, raw = call(t, app, http.MethodGet, "/api/products/category/Massager", staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	var list []map[string]any
	decode(t, raw, &list)
	assert.Len(t, list, 1)

	status, raw = call(t, app, http.MethodGet, "/api/products/low-stock", staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, raw, &list)
	assert.Len(t, list, 1)

	status, _ = call(t, app, http.MethodGet, "/api/products/abc", staffToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, app, http.MethodDelete, fmt.Sprintf("/api/products/%d", productID), adminToken, nil)
	assert.Equal(t, http.StatusOK, status)

	// undo the delete through the audit log
	status, raw = call(t, app, http.MethodGet, "/api/audit-logs?entity_type=product", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var logs []struct {
		ID     uint   `json:"id"`
		Action string `json:"action"`
	}
	decode(t, raw, &logs)
	require.NotEmpty(t, logs)
	require.Equal(t, "delete", logs[0].Action)

	status, raw = call(t, app, http.MethodPost, fmt.Sprintf("/api/audit-logs/%d/undo", logs[0].ID), adminToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))

	status, _ = call(t, app, http.MethodGet, fmt.Sprintf("/api/products/%d", productID), staffToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, app, http.MethodPost, fmt.Sprintf("/api/audit-logs/%d/undo", logs[0].ID), adminToken, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestCustomers(t *testing.T) {
	app := newTestApp(t)
	adminToken, staffToken, _ := bootstrap(t, app)
	productID := createProduct(t, app, adminToken, "TY-1")

	status, raw := call(t, app, http.MethodPost, "/api/customers", staffToken, fiber.Map{
		"name":    "Northwind",
		"email":   "Buyer@Northwind.example",
		"phone":   "(650) 253-0000",
		"segment": "wholesale",
		"address": fiber.Map{"city": "Portland", "country": "US"},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var customer struct {
		ID      uint   `json:"id"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Segment string `json:"segment"`
	}
	decode(t, raw, &customer)
	assert.Equal(t, "buyer@northwind.example", customer.Email)
	assert.Equal(t, "+16502530000", customer.Phone)
	assert.Equal(t, "wholesale", customer.Segment)

	status, _ = call(t, app, http.MethodPost, "/api/customers", staffToken, fiber.Map{
		"name": "Copy", "email": "buyer@northwind.example",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = call(t, app, http.MethodPost, "/api/customers", staffToken, fiber.Map{
		"name": "Bad Phone", "email": "phone@example.com", "phone": "12",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, app, http.MethodPost, "/api/customers", staffToken, fiber.Map{
		"name": "Bad Segment", "email": "segment@example.com", "segment": "vip",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	purchasePath := fmt.Sprintf("/api/customers/%d/purchases", customer.ID)
	status, raw = call(t, app, http.MethodPost, purchasePath, staffToken, fiber.Map{
		"date": "2025-02-01",
		"products": []fiber.Map{
			{"product_id": productID, "quantity": 3, "price": "12.50"},
		},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, raw = call(t, app, http.MethodPost, purchasePath, staffToken, fiber.Map{
		"products": []fiber.Map{
			{"product_id": productID, "quantity": 2, "price": "10"},
		},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var purchase struct {
		TotalSpent string `json:"total_spent"`
	}
	decode(t, raw, &purchase)
	assert.Equal(t, "57.5", purchase.TotalSpent)

	status, _ = call(t, app, http.MethodPost, purchasePath, staffToken, fiber.Map{
		"products": []fiber.Map{{"product_id": 9999, "quantity": 1, "price": "1"}},
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, raw = call(t, app, http.MethodGet, fmt.Sprintf("/api/customers/%d", customer.ID), staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		PurchaseHistory []struct {
			Amount string `json:"amount"`
		} `json:"purchase_history"`
	}
	decode(t, raw, &detail)
	require.Len(t, detail.PurchaseHistory, 2)
	assert.Equal(t, "37.5", detail.PurchaseHistory[0].Amount)

	status, raw = call(t, app, http.MethodGet, "/api/customers/segment/wholesale", staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	var list []map[string]any
	decode(t, raw, &list)
	assert.Len(t, list, 1)

	status, _ = call(t, app, http.MethodPut, fmt.Sprintf("/api/customers/%d", customer.ID), staffToken, fiber.Map{
		"notes": "Pays on delivery",
	})
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, app, http.MethodDelete, fmt.Sprintf("/api/customers/%d", customer.ID), staffToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, http.MethodDelete, fmt.Sprintf("/api/customers/%d", customer.ID), adminToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, app, http.MethodGet, fmt.Sprintf("/api/customers/%d", customer.ID), staffToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStaff(t *testing.T) {
	app := newTestApp(t)
	adminToken, staffToken, staffUserID := bootstrap(t, app)

	status, _ := call(t, app, http.MethodPost, "/api/staff/clock-in", staffToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, app, http.MethodPost, "/api/staff", adminToken, fiber.Map{
		"user_id": 9999, "first_name": "No", "last_name": "Body", "position": "Picker",
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, raw := call(t, app, http.MethodPost, "/api/staff", adminToken, fiber.Map{
		"user_id":      staffUserID,
		"first_name":   "Casey",
		"last_name":    "Lane",
		"position":     "Warehouse clerk",
		"department":   "Logistics",
		"contact_info": fiber.Map{"phone": "650-253-0000"},
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var member struct {
		ID          uint   `json:"id"`
		FullName    string `json:"full_name"`
		IsActive    bool   `json:"is_active"`
		ContactInfo struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
		} `json:"contact_info"`
	}
	decode(t, raw, &member)
	assert.Equal(t, "Casey Lane", member.FullName)
	assert.True(t, member.IsActive)
	assert.Equal(t, "clerk@example.com", member.ContactInfo.Email)
	assert.Equal(t, "+16502530000", member.ContactInfo.Phone)

	status, _ = call(t, app, http.MethodPost, "/api/staff", adminToken, fiber.Map{
		"user_id": staffUserID, "first_name": "Casey", "last_name": "Lane", "position": "Clerk",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = call(t, app, http.MethodPost, "/api/staff/clock-out", staffToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, app, http.MethodPost, "/api/staff/clock-in", staffToken, nil)
	assert.Equal(t, http.StatusCreated, status)

	status, raw = call(t, app, http.MethodPost, "/api/staff/clock-in", staffToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	var errBody struct {
		Error string `json:"error"`
	}
	decode(t, raw, &errBody)
	assert.Equal(t, "Already clocked in", errBody.Error)

	status, raw = call(t, app, http.MethodPost, "/api/staff/clock-out", staffToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var entry struct {
		ClockOut *string `json:"clock_out"`
	}
	decode(t, raw, &entry)
	assert.NotNil(t, entry.ClockOut)

	activityPath := fmt.Sprintf("/api/staff/%d/activity", member.ID)
	status, _ = call(t, app, http.MethodPost, activityPath, staffToken, fiber.Map{
		"type": "inventory", "description": "Counted aisle 4",
	})
	assert.Equal(t, http.StatusCreated, status)

	status, _ = call(t, app, http.MethodPost, activityPath, staffToken, fiber.Map{
		"type": "lunch", "description": "Break",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	perfPath := fmt.Sprintf("/api/staff/%d/performance", member.ID)
	status, _ = call(t, app, http.MethodPut, perfPath, staffToken, fiber.Map{"sales_target": 1000})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, app, http.MethodPut, perfPath, adminToken, fiber.Map{"sales_target": "-5"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, raw = call(t, app, http.MethodPut, perfPath, adminToken, fiber.Map{
		"sales_target": "1000.00", "sales_achieved": "250.00",
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	var perf struct {
		PerformancePercentage string `json:"performance_percentage"`
		Performance           struct {
			SalesTarget string `json:"sales_target"`
		} `json:"performance"`
	}
	decode(t, raw, &perf)
	assert.Equal(t, "25", perf.PerformancePercentage)
	assert.Equal(t, "1000", perf.Performance.SalesTarget)

	status, raw = call(t, app, http.MethodGet, fmt.Sprintf("/api/staff/%d", member.ID), staffToken, nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		ClockInHistory []map[string]any `json:"clock_in_history"`
		Activities     []map[string]any `json:"activities"`
	}
	decode(t, raw, &detail)
	assert.Len(t, detail.ClockInHistory, 1)
	assert.Len(t, detail.Activities, 1)
}
