package products

import (
	"errors"
	"fmt"
	"strings"

	"wholesale-backend/internal/audit"
	"wholesale-backend/internal/auth"
	"wholesale-backend/internal/httpx"
	"wholesale-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductResponse struct {
	models.Product
	IsLowStock   bool            `json:"is_low_stock"`
	ProfitMargin decimal.Decimal `json:"profit_margin"`
}

func toResponse(p models.Product) ProductResponse {
	return ProductResponse{
		Product:      p,
		IsLowStock:   p.IsLowStock(),
		ProfitMargin: p.ProfitMargin(),
	}
}

func toResponses(ps []models.Product) []ProductResponse {
	res := make([]ProductResponse, 0, len(ps))
	for _, p := range ps {
		res = append(res, toResponse(p))
	}
	return res
}

type SupplierRequest struct {
	Name        string `json:"name" validate:"max=100"`
	ContactInfo string `json:"contact_info" validate:"max=255"`
}

type CreateProductRequest struct {
	Name              string           `json:"name" validate:"required,max=150"`
	Description       string           `json:"description" validate:"max=1000"`
	Category          string           `json:"category" validate:"required"`
	SKU               string           `json:"sku" validate:"required,max=64"`
	Price             *decimal.Decimal `json:"price"`
	CostPrice         *decimal.Decimal `json:"cost_price"`
	StockQuantity     int              `json:"stock_quantity" validate:"gte=0"`
	LowStockThreshold *int             `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	Images            []string         `json:"images" validate:"dive,max=500"`
	Supplier          SupplierRequest  `json:"supplier"`
	IsActive          *bool            `json:"is_active"`
}

type UpdateProductRequest struct {
	Name              *string          `json:"name" validate:"omitempty,max=150"`
	Description       *string          `json:"description" validate:"omitempty,max=1000"`
	Category          *string          `json:"category"`
	SKU               *string          `json:"sku" validate:"omitempty,max=64"`
	Price             *decimal.Decimal `json:"price"`
	CostPrice         *decimal.Decimal `json:"cost_price"`
	StockQuantity     *int             `json:"stock_quantity" validate:"omitempty,gte=0"`
	LowStockThreshold *int             `json:"low_stock_threshold" validate:"omitempty,gte=0"`
	Images            []string         `json:"images" validate:"dive,max=500"`
	Supplier          *SupplierRequest `json:"supplier"`
	IsActive          *bool            `json:"is_active"`
}

// GET /api/products?category=Toys&active=true
func ListProductsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := db.WithContext(c.UserContext()).Model(&models.Product{})
		if category := c.Query("category"); category != "" {
			q = q.Where("category = ?", category)
		}
		if active := c.Query("active"); active != "" {
			q = q.Where("is_active = ?", c.QueryBool("active"))
		}

		var products []models.Product
		if err := q.Order("name asc").Find(&products).Error; err != nil {
			return err
		}
		return c.JSON(toResponses(products))
	}
}

// GET /api/products/low-stock
func ListLowStockHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var products []models.Product
		if err := db.WithContext(c.UserContext()).
			Where("stock_quantity <= low_stock_threshold").
			Order("stock_quantity asc, name asc").
			Find(&products).Error; err != nil {
			return err
		}
		return c.JSON(toResponses(products))
	}
}

// GET /api/products/category/:category
func ListByCategoryHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		category := models.ProductCategory(c.Params("category"))
		if !category.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid category")
		}

		var products []models.Product
		if err := db.WithContext(c.UserContext()).
			Where("category = ?", category).
			Order("name asc").
			Find(&products).Error; err != nil {
			return err
		}
		return c.JSON(toResponses(products))
	}
}

// GET /api/products/:id
func GetProductHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := findProduct(c, db)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(*p))
	}
}

// POST /api/products (admin)
func CreateProductHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body CreateProductRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		category := models.ProductCategory(strings.TrimSpace(body.Category))
		if !category.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid category")
		}
		if body.Price == nil || body.CostPrice == nil {
			return fiber.NewError(fiber.StatusBadRequest, "Price and cost_price are required")
		}
		if body.Price.IsNegative() || body.CostPrice.IsNegative() {
			return fiber.NewError(fiber.StatusBadRequest, "Prices cannot be negative")
		}

		p := models.Product{
			Name:              strings.TrimSpace(body.Name),
			Description:       strings.TrimSpace(body.Description),
			Category:          category,
			SKU:               strings.TrimSpace(body.SKU),
			Price:             *body.Price,
			CostPrice:         *body.CostPrice,
			StockQuantity:     body.StockQuantity,
			LowStockThreshold: 10,
			Images:            body.Images,
			Supplier:          models.Supplier{Name: body.Supplier.Name, ContactInfo: body.Supplier.ContactInfo},
			IsActive:          true,
		}
		if body.LowStockThreshold != nil {
			p.LowStockThreshold = *body.LowStockThreshold
		}
		if body.IsActive != nil {
			p.IsActive = *body.IsActive
		}

		if taken, err := skuTaken(c, db, p.SKU, 0); err != nil {
			return err
		} else if taken {
			return fiber.NewError(fiber.StatusConflict, "Product with this SKU already exists")
		}

		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  audit.EntityProduct,
				EntityID:    p.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Product created: %s (%s)", p.Name, p.SKU),
				After:       p,
			})
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fiber.NewError(fiber.StatusConflict, "Product with this SKU already exists")
			}
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(toResponse(p))
	}
}

// PUT /api/products/:id (admin)
func UpdateProductHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		p, err := findProduct(c, db)
		if err != nil {
			return err
		}
		before := *p

		var body UpdateProductRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Name cannot be empty")
			}
			p.Name = name
		}
		if body.Description != nil {
			p.Description = strings.TrimSpace(*body.Description)
		}
		if body.Category != nil {
			category := models.ProductCategory(strings.TrimSpace(*body.Category))
			if !category.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid category")
			}
			p.Category = category
		}
		if body.SKU != nil {
			sku := strings.TrimSpace(*body.SKU)
			if sku == "" {
				return fiber.NewError(fiber.StatusBadRequest, "SKU cannot be empty")
			}
			if sku != p.SKU {
				if taken, err := skuTaken(c, db, sku, p.ID); err != nil {
					return err
				} else if taken {
					return fiber.NewError(fiber.StatusConflict, "Product with this SKU already exists")
				}
			}
			p.SKU = sku
		}
		if body.Price != nil {
			if body.Price.IsNegative() {
				return fiber.NewError(fiber.StatusBadRequest, "Prices cannot be negative")
			}
			p.Price = *body.Price
		}
		if body.CostPrice != nil {
			if body.CostPrice.IsNegative() {
				return fiber.NewError(fiber.StatusBadRequest, "Prices cannot be negative")
			}
			p.CostPrice = *body.CostPrice
		}
		setStock := body.StockQuantity != nil && *body.StockQuantity != p.StockQuantity
		if setStock {
			p.StockQuantity = *body.StockQuantity
		}
		if body.LowStockThreshold != nil {
			p.LowStockThreshold = *body.LowStockThreshold
		}
		if body.Images != nil {
			p.Images = body.Images
		}
		if body.Supplier != nil {
			p.Supplier = models.Supplier{Name: body.Supplier.Name, ContactInfo: body.Supplier.ContactInfo}
		}
		if body.IsActive != nil {
			p.IsActive = *body.IsActive
		}

		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			// once tracked, stock_quantity is the inventory mirror and only
			// the inventory service writes it
			q := tx.Omit("stock_quantity")
			if setStock {
				tracked, err := hasInventory(tx, p.ID)
				if err != nil {
					return err
				}
				if tracked {
					return errStockTracked
				}
				q = tx
			}
			if err := q.Save(p).Error; err != nil {
				return err
			}
			if err := tx.First(p, p.ID).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  audit.EntityProduct,
				EntityID:    p.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Product updated: %s (%s)", p.Name, p.SKU),
				Before:      before,
				After:       p,
			})
		})
		if err != nil {
			if errors.Is(err, errStockTracked) {
				return fiber.NewError(fiber.StatusConflict, "Stock quantity is managed by the inventory record")
			}
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fiber.NewError(fiber.StatusConflict, "Product with this SKU already exists")
			}
			return err
		}

		return c.JSON(toResponse(*p))
	}
}

// DELETE /api/products/:id (admin)
func DeleteProductHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		p, err := findProduct(c, db)
		if err != nil {
			return err
		}

		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			tracked, err := hasInventory(tx, p.ID)
			if err != nil {
				return err
			}
			if tracked {
				return errStockTracked
			}
			if err := tx.Delete(&models.Product{}, p.ID).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  audit.EntityProduct,
				EntityID:    p.ID,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Product removed: %s (%s)", p.Name, p.SKU),
				Before:      p,
			})
		})
		if err != nil {
			if errors.Is(err, errStockTracked) {
				return fiber.NewError(fiber.StatusConflict, "Product has an inventory record and cannot be removed")
			}
			return err
		}

		return c.JSON(fiber.Map{"message": "Product removed"})
	}
}

func findProduct(c *fiber.Ctx, db *gorm.DB) (*models.Product, error) {
	id, err := httpx.ParamID(c, "id", "Product not found")
	if err != nil {
		return nil, err
	}

	var p models.Product
	if err := db.WithContext(c.UserContext()).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "Product not found")
		}
		return nil, err
	}
	return &p, nil
}

func skuTaken(c *fiber.Ctx, db *gorm.DB, sku string, exceptID uint) (bool, error) {
	var count int64
	err := db.WithContext(c.UserContext()).Model(&models.Product{}).
		Where("sku = ? AND id <> ?", sku, exceptID).
		Count(&count).Error
	return count > 0, err
}

var errStockTracked = errors.New("product stock is tracked by an inventory record")

func hasInventory(tx *gorm.DB, productID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.Inventory{}).
		Where("product_id = ?", productID).
		Count(&count).Error
	return count > 0, err
}
