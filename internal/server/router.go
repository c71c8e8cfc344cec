package server

import (
	"strings"

	"wholesale-backend/internal/audit"
	"wholesale-backend/internal/auth"
	"wholesale-backend/internal/config"
	"wholesale-backend/internal/customers"
	"wholesale-backend/internal/httpx"
	"wholesale-backend/internal/inventory"
	"wholesale-backend/internal/models"
	"wholesale-backend/internal/products"
	"wholesale-backend/internal/staff"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

// New builds the API. idem may be nil when no Redis is configured.
func New(cfg *config.Config, db *gorm.DB, idem inventory.IdempotencyStore) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "wholesale-backend",
		ErrorHandler: httpx.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(httpx.RequestLogger())

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(corsOrigins, ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + inventory.HeaderIdempotencyKey,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		ExposeHeaders: httpx.HeaderRequestID,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Wholesale Management API is running")
	})

	inventorySvc := inventory.NewService(db, idem)
	customerHandlers := customers.NewHandlers(db, cfg.DefaultPhoneRegion)

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(cfg.JWTSecret, db))

	// Protected
	protected := api.Group("", auth.JWTMiddleware(cfg.JWTSecret))
	admin := auth.RequireRole(models.RoleAdmin)

	protected.Get("/auth/me", auth.MeHandler(db))
	protected.Post("/users", admin, auth.CreateUserHandler(db))
	protected.Get("/users", admin, auth.ListUsersHandler(db))

	// Inventory
	protected.Get("/inventory", inventory.ListInventoryHandler(inventorySvc))
	protected.Get("/inventory/export", inventory.ExportInventoryHandler(inventorySvc))
	protected.Get("/inventory/:id", inventory.GetInventoryHandler(inventorySvc))
	protected.Get("/inventory/:id/transactions", inventory.ListTransactionsHandler(inventorySvc))
	protected.Post("/inventory", admin, inventory.CreateInventoryHandler(inventorySvc))
	protected.Put("/inventory/:id", admin, inventory.UpdateInventoryHandler(inventorySvc))
	protected.Post("/inventory/:id/transaction", inventory.CreateTransactionHandler(inventorySvc))

	// Products
	protected.Get("/products", products.ListProductsHandler(db))
	protected.Get("/products/low-stock", products.ListLowStockHandler(db))
	protected.Get("/products/category/:category", products.ListByCategoryHandler(db))
	protected.Get("/products/:id", products.GetProductHandler(db))
	protected.Post("/products", admin, products.CreateProductHandler(db))
	protected.Put("/products/:id", admin, products.UpdateProductHandler(db))
	protected.Delete("/products/:id", admin, products.DeleteProductHandler(db))

	// Customers
	protected.Get("/customers", customerHandlers.List())
	protected.Get("/customers/segment/:segment", customerHandlers.ListBySegment())
	protected.Get("/customers/:id", customerHandlers.Get())
	protected.Post("/customers", customerHandlers.Create())
	protected.Put("/customers/:id", customerHandlers.Update())
	protected.Delete("/customers/:id", admin, customerHandlers.Delete())
	protected.Post("/customers/:id/purchases", customerHandlers.AddPurchase())

	// Staff
	protected.Get("/staff", staff.ListStaffHandler(db))
	protected.Post("/staff/clock-in", staff.ClockInHandler(db))
	protected.Post("/staff/clock-out", staff.ClockOutHandler(db))
	protected.Get("/staff/:id", staff.GetStaffHandler(db))
	protected.Post("/staff", admin, staff.CreateStaffHandler(db, cfg.DefaultPhoneRegion))
	protected.Put("/staff/:id", admin, staff.UpdateStaffHandler(db, cfg.DefaultPhoneRegion))
	protected.Put("/staff/:id/performance", admin, staff.UpdatePerformanceHandler(db))
	protected.Post("/staff/:id/activity", staff.AddActivityHandler(db))

	// Audit logs
	protected.Get("/audit-logs", admin, audit.ListAuditLogsHandler(db))
	protected.Post("/audit-logs/:id/undo", admin, audit.UndoAuditLogHandler(db))

	return app
}
