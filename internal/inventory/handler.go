package inventory

import (
	"bytes"

	"wholesale-backend/internal/auth"
	"wholesale-backend/internal/httpx"
	"wholesale-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type LocationRequest struct {
	Warehouse string `json:"warehouse" validate:"max=100"`
	Section   string `json:"section" validate:"max=100"`
	Shelf     string `json:"shelf" validate:"max=100"`
}

func (l LocationRequest) model() models.Location {
	return models.Location{Warehouse: l.Warehouse, Section: l.Section, Shelf: l.Shelf}
}

type CreateInventoryRequest struct {
	ProductID uint            `json:"product_id" validate:"required"`
	Quantity  *int            `json:"quantity" validate:"required"`
	Location  LocationRequest `json:"location"`
}

type UpdateInventoryRequest struct {
	Quantity *int             `json:"quantity"`
	Location *LocationRequest `json:"location"`
}

type TransactionRequest struct {
	Type     string `json:"type" validate:"required"`
	Quantity *int   `json:"quantity" validate:"required"`
	Reason   string `json:"reason" validate:"max=255"`
}

// GET /api/inventory?warehouse=Main&low_stock=true
func ListInventoryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := svc.List(c.UserContext(), ListFilter{
			Warehouse: c.Query("warehouse"),
			LowStock:  c.QueryBool("low_stock"),
		})
		if err != nil {
			return err
		}
		return c.JSON(items)
	}
}

// GET /api/inventory/export
func ExportInventoryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := svc.List(c.UserContext(), ListFilter{Warehouse: c.Query("warehouse")})
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := WriteExport(&buf, items); err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="inventory.xlsx"`)
		return c.Send(buf.Bytes())
	}
}

// GET /api/inventory/:id
func GetInventoryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id", "Inventory item not found")
		if err != nil {
			return err
		}
		inv, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(inv)
	}
}

// GET /api/inventory/:id/transactions
func ListTransactionsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id", "Inventory item not found")
		if err != nil {
			return err
		}
		txs, err := svc.Transactions(c.UserContext(), id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(txs)
	}
}

// POST /api/inventory (admin)
func CreateInventoryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body CreateInventoryRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		inv, err := svc.Create(c.UserContext(), actor, CreateInput{
			ProductID: body.ProductID,
			Quantity:  *body.Quantity,
			Location:  body.Location.model(),
		})
		if err != nil {
			return httpError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(inv)
	}
}

// PUT /api/inventory/:id (admin)
func UpdateInventoryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id", "Inventory item not found")
		if err != nil {
			return err
		}

		var body UpdateInventoryRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		in := UpdateInput{Quantity: body.Quantity}
		if body.Location != nil {
			loc := body.Location.model()
			in.Location = &loc
		}

		inv, err := svc.Update(c.UserContext(), actor, id, in)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(inv)
	}
}

// POST /api/inventory/:id/transaction
func CreateTransactionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id", "Inventory item not found")
		if err != nil {
			return err
		}

		var body TransactionRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		inv, err := svc.Transact(c.UserContext(), actor, id, TransactionInput{
			Kind:           models.TransactionKind(body.Type),
			Quantity:       *body.Quantity,
			Reason:         body.Reason,
			IdempotencyKey: c.Get(HeaderIdempotencyKey),
		})
		if err != nil {
			return httpError(err)
		}
		return c.JSON(inv)
	}
}
