package customers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wholesale-backend/internal/audit"
	"wholesale-backend/internal/auth"
	"wholesale-backend/internal/httpx"
	"wholesale-backend/internal/models"
	"wholesale-backend/internal/phone"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AddressRequest struct {
	Street  string `json:"street" validate:"max=255"`
	City    string `json:"city" validate:"max=100"`
	State   string `json:"state" validate:"max=100"`
	ZipCode string `json:"zip_code" validate:"max=20"`
	Country string `json:"country" validate:"max=100"`
}

func (a AddressRequest) model() models.Address {
	return models.Address{Street: a.Street, City: a.City, State: a.State, ZipCode: a.ZipCode, Country: a.Country}
}

type CustomerRequest struct {
	Name     string          `json:"name" validate:"required,max=150"`
	Email    string          `json:"email" validate:"required,email"`
	Phone    string          `json:"phone" validate:"max=50"`
	Address  *AddressRequest `json:"address"`
	Company  string          `json:"company" validate:"max=150"`
	Segment  string          `json:"segment"`
	Industry string          `json:"industry" validate:"max=100"`
	Notes    string          `json:"notes" validate:"max=2000"`
}

type UpdateCustomerRequest struct {
	Name     *string         `json:"name" validate:"omitempty,max=150"`
	Email    *string         `json:"email" validate:"omitempty,email"`
	Phone    *string         `json:"phone" validate:"omitempty,max=50"`
	Address  *AddressRequest `json:"address"`
	Company  *string         `json:"company" validate:"omitempty,max=150"`
	Segment  *string         `json:"segment"`
	Industry *string         `json:"industry" validate:"omitempty,max=100"`
	Notes    *string         `json:"notes" validate:"omitempty,max=2000"`
}

type PurchaseItemRequest struct {
	ProductID uint             `json:"product_id" validate:"required"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	Price     *decimal.Decimal `json:"price"`
}

type PurchaseRequest struct {
	Date     string                `json:"date"` // "2025-12-09", defaults to now
	Products []PurchaseItemRequest `json:"products" validate:"required,min=1,dive"`
}

// Handlers carries what the customer routes share.
type Handlers struct {
	db          *gorm.DB
	phoneRegion string
}

func NewHandlers(db *gorm.DB, phoneRegion string) *Handlers {
	return &Handlers{db: db, phoneRegion: phoneRegion}
}

// GET /api/customers
func (h *Handlers) List() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var customers []models.Customer
		if err := h.db.WithContext(c.UserContext()).Order("name asc").Find(&customers).Error; err != nil {
			return err
		}
		return c.JSON(customers)
	}
}

// GET /api/customers/segment/:segment
func (h *Handlers) ListBySegment() fiber.Handler {
	return func(c *fiber.Ctx) error {
		segment := models.CustomerSegment(c.Params("segment"))
		if !segment.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid segment")
		}

		var customers []models.Customer
		if err := h.db.WithContext(c.UserContext()).
			Where("segment = ?", segment).
			Order("name asc").
			Find(&customers).Error; err != nil {
			return err
		}
		return c.JSON(customers)
	}
}

// GET /api/customers/:id
func (h *Handlers) Get() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id", "Customer not found")
		if err != nil {
			return err
		}

		var customer models.Customer
		err = h.db.WithContext(c.UserContext()).
			Preload("PurchaseHistory", func(db *gorm.DB) *gorm.DB { return db.Order("date asc, id asc") }).
			Preload("PurchaseHistory.Items").
			First(&customer, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Customer not found")
			}
			return err
		}
		return c.JSON(customer)
	}
}

// POST /api/customers
func (h *Handlers) Create() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body CustomerRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		customer := models.Customer{
			Name:       strings.TrimSpace(body.Name),
			Email:      normalizeEmail(body.Email),
			Company:    strings.TrimSpace(body.Company),
			Segment:    models.SegmentRetail,
			Industry:   strings.TrimSpace(body.Industry),
			Notes:      body.Notes,
			TotalSpent: decimal.Zero,
		}
		if body.Address != nil {
			customer.Address = body.Address.model()
		}
		if body.Segment != "" {
			customer.Segment = models.CustomerSegment(body.Segment)
			if !customer.Segment.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid segment")
			}
		}
		if number := strings.TrimSpace(body.Phone); number != "" {
			normalized, err := phone.Normalize(number, h.phoneRegion)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Phone number is not valid")
			}
			customer.Phone = normalized
		}

		err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&customer).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  audit.EntityCustomer,
				EntityID:    customer.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Customer created: %s", customer.Name),
				After:       customer,
			})
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fiber.NewError(fiber.StatusConflict, "Customer with this email already exists")
			}
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(customer)
	}
}

// PUT /api/customers/:id
func (h *Handlers) Update() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id", "Customer not found")
		if err != nil {
			return err
		}

		var body UpdateCustomerRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		var customer models.Customer
		if err := h.db.WithContext(c.UserContext()).First(&customer, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Customer not found")
			}
			return err
		}
		before := customer

		if body.Name != nil && strings.TrimSpace(*body.Name) != "" {
			customer.Name = strings.TrimSpace(*body.Name)
		}
		if body.Email != nil {
			customer.Email = normalizeEmail(*body.Email)
		}
		if body.Phone != nil {
			number := strings.TrimSpace(*body.Phone)
			if number == "" {
				customer.Phone = ""
			} else {
				normalized, err := phone.Normalize(number, h.phoneRegion)
				if err != nil {
					return fiber.NewError(fiber.StatusBadRequest, "Phone number is not valid")
				}
				customer.Phone = normalized
			}
		}
		if body.Address != nil {
			customer.Address = body.Address.model()
		}
		if body.Company != nil {
			customer.Company = strings.TrimSpace(*body.Company)
		}
		if body.Segment != nil {
			segment := models.CustomerSegment(*body.Segment)
			if !segment.Valid() {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid segment")
			}
			customer.Segment = segment
		}
		if body.Industry != nil {
			customer.Industry = strings.TrimSpace(*body.Industry)
		}
		if body.Notes != nil {
			customer.Notes = *body.Notes
		}

		err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			// total_spent belongs to the purchase path
			if err := tx.Omit("total_spent", clause.Associations).Save(&customer).Error; err != nil {
				return err
			}
			if err := tx.First(&customer, customer.ID).Error; err != nil {
				return err
			}
			return audit.WriteLog(tx, audit.LogOptions{
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  audit.EntityCustomer,
				EntityID:    customer.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Customer updated: %s", customer.Name),
				Before:      before,
				After:       customer,
			})
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fiber.NewError(fiber.StatusConflict, "Customer with this email already exists")
			}
			return err
		}

		return c.JSON(customer)
	}
}

// DELETE /api/customers/:id (admin)
func (h *Handlers) Delete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := httpx.ParamID(c, "id", "Customer not found")
		if err != nil {
			return err
		}

		err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			var customer models.Customer
			if err := tx.First(&customer, id).Error; err != nil {
				return err
			}

			var purchaseIDs []uint
			if err := tx.Model(&models.Purchase{}).Where("customer_id = ?", id).Pluck("id", &purchaseIDs).Error; err != nil {
				return err
			}
			if len(purchaseIDs) > 0 {
				if err := tx.Where("purchase_id IN ?", purchaseIDs).Delete(&models.PurchaseItem{}).Error; err != nil {
					return err
				}
				if err := tx.Where("customer_id = ?", id).Delete(&models.Purchase{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Delete(&models.Customer{}, id).Error; err != nil {
				return err
			}

			return audit.WriteLog(tx, audit.LogOptions{
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  audit.EntityCustomer,
				EntityID:    id,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Customer removed: %s", customer.Name),
				Before:      customer,
			})
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Customer not found")
			}
			return err
		}

		return c.JSON(fiber.Map{"message": "Customer removed"})
	}
}

// POST /api/customers/:id/purchases
func (h *Handlers) AddPurchase() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := httpx.ParamID(c, "id", "Customer not found")
		if err != nil {
			return err
		}

		var body PurchaseRequest
		if err := httpx.ParseBody(c, &body); err != nil {
			return err
		}

		date := time.Now()
		if body.Date != "" {
			date, err = time.Parse("2006-01-02", body.Date)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Date must be in 'YYYY-MM-DD' format")
			}
		}

		purchase := models.Purchase{CustomerID: id, Date: date, Amount: decimal.Zero}
		for _, item := range body.Products {
			if item.Price == nil || item.Price.IsNegative() {
				return fiber.NewError(fiber.StatusBadRequest, "Every product needs a non-negative price")
			}
			purchase.Items = append(purchase.Items, models.PurchaseItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     *item.Price,
			})
			purchase.Amount = purchase.Amount.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		var customer models.Customer
		err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			if err := tx.First(&customer, id).Error; err != nil {
				return err
			}

			productIDs := make([]uint, 0, len(purchase.Items))
			for _, item := range purchase.Items {
				productIDs = append(productIDs, item.ProductID)
			}
			var known int64
			if err := tx.Model(&models.Product{}).Where("id IN ?", productIDs).Distinct("id").Count(&known).Error; err != nil {
				return err
			}
			if int(known) != countDistinct(productIDs) {
				return errUnknownProduct
			}

			if err := tx.Create(&purchase).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Customer{}).Where("id = ?", id).
				Update("total_spent", gorm.Expr("total_spent + ?", purchase.Amount)).Error; err != nil {
				return err
			}
			return tx.First(&customer, id).Error
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "Customer not found")
			}
			if errors.Is(err, errUnknownProduct) {
				return fiber.NewError(fiber.StatusNotFound, "Product not found")
			}
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"purchase":    purchase,
			"total_spent": customer.TotalSpent,
		})
	}
}

var errUnknownProduct = errors.New("unknown product")

func countDistinct(ids []uint) int {
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
