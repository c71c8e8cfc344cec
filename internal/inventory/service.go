package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wholesale-backend/internal/audit"
	"wholesale-backend/internal/auth"
	"wholesale-backend/internal/config"
	"wholesale-backend/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	reasonInitialStock     = "Initial stock"
	reasonManualAdjustment = "Manual adjustment"

	// attempts at the version compare-and-swap before giving up
	maxWriteAttempts = 3
)

var errVersionConflict = errors.New("version conflict")

// IdempotencyStore remembers client supplied request keys. Claim reports
// false when the key was already claimed.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Service struct {
	db     *gorm.DB
	idem   IdempotencyStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewService builds the inventory service. idem may be nil, in which case
// idempotency keys are ignored.
func NewService(db *gorm.DB, idem IdempotencyStore) *Service {
	return &Service{
		db:     db,
		idem:   idem,
		logger: config.GetLogger(),
		now:    time.Now,
	}
}

type CreateInput struct {
	ProductID uint
	Quantity  int
	Location  models.Location
}

type UpdateInput struct {
	Quantity *int
	Location *models.Location
}

type TransactionInput struct {
	Kind           models.TransactionKind
	Quantity       int
	Reason         string
	IdempotencyKey string
}

type ListFilter struct {
	Warehouse string
	LowStock  bool
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Inventory, error) {
	q := s.db.WithContext(ctx).
		Preload("Product").
		Preload("Transactions", orderByID)

	if f.Warehouse != "" {
		q = q.Where("inventories.location_warehouse = ?", f.Warehouse)
	}
	if f.LowStock {
		q = q.Joins("JOIN products ON products.id = inventories.product_id").
			Where("inventories.quantity <= products.low_stock_threshold")
	}

	var items []models.Inventory
	if err := q.Order("inventories.id asc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.db.WithContext(ctx).
		Preload("Product").
		Preload("Transactions", orderByID).
		First(&inv, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get inventory %d: %w", id, err)
	}
	return &inv, nil
}

func (s *Service) Transactions(ctx context.Context, id uint) ([]models.InventoryTransaction, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return inv.Transactions, nil
}

// Create opens the inventory record of a product, seeded with an
// "Initial stock" transaction, and mirrors the quantity onto the product.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*models.Inventory, error) {
	if in.Quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	var id uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, in.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		var existing int64
		if err := tx.Model(&models.Inventory{}).Where("product_id = ?", in.ProductID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateInventory
		}

		now := s.now()
		inv := models.Inventory{
			ProductID:   in.ProductID,
			Quantity:    in.Quantity,
			Location:    in.Location,
			Version:     1,
			LastUpdated: now,
			Transactions: []models.InventoryTransaction{
				newEntry(actor, models.TransactionIn, in.Quantity, in.Quantity, reasonInitialStock, now),
			},
		}
		if err := tx.Create(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateInventory
			}
			return err
		}

		if err := mirror(tx, inv.ProductID, inv.Quantity); err != nil {
			return err
		}

		id = inv.ID
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserName:    actor.Name,
			EntityType:  audit.EntityInventory,
			EntityID:    inv.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Inventory opened: %s (%s) with %d", product.Name, product.SKU, inv.Quantity),
			After:       withoutLog(inv),
		})
	})
	if err != nil {
		if !isDomainError(err) {
			config.LogError(s.logger, "inventory", "Create", fmt.Sprintf("product %d", in.ProductID), nil, err)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"inventory_id": id,
		"product_id":   in.ProductID,
		"quantity":     in.Quantity,
		"user_id":      actor.UserID,
	}).Info("inventory created")

	return s.Get(ctx, id)
}

// Update changes the location and, when the quantity differs from the
// current one, records an adjustment to the new absolute quantity.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id uint, in UpdateInput) (*models.Inventory, error) {
	return s.write(ctx, actor, id, change{
		kind:     models.TransactionAdjustment,
		quantity: in.Quantity,
		reason:   reasonManualAdjustment,
		location: in.Location,
		skipSame: true,
	})
}

// Transact appends one transaction to the record's log.
func (s *Service) Transact(ctx context.Context, actor auth.Actor, id uint, in TransactionInput) (*models.Inventory, error) {
	if !in.Kind.Valid() {
		return nil, ErrInvalidKind
	}

	if in.IdempotencyKey != "" && s.idem != nil {
		key := fmt.Sprintf("idem:inventory:%d:%s", id, in.IdempotencyKey)
		ok, err := s.idem.Claim(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}

		inv, err := s.write(ctx, actor, id, change{kind: in.Kind, quantity: &in.Quantity, reason: in.Reason})
		if err != nil {
			// a rejected transaction may be retried with the same key
			// released even when the client is gone, so the key does not stay claimed
			if rerr := s.idem.Release(context.WithoutCancel(ctx), key); rerr != nil {
				s.logger.WithError(rerr).WithField("key", key).Warn("could not release idempotency key")
			}
			return nil, err
		}
		return inv, nil
	}

	return s.write(ctx, actor, id, change{kind: in.Kind, quantity: &in.Quantity, reason: in.Reason})
}

type change struct {
	kind     models.TransactionKind
	quantity *int // nil leaves the quantity untouched
	reason   string
	location *models.Location
	// no transaction when quantity equals the current one
	skipSame bool
}

// write applies c inside one database transaction: the record update
// (guarded by its version), the log entry, the product mirror and the
// audit row commit or roll back together.
func (s *Service) write(ctx context.Context, actor auth.Actor, id uint, c change) (*models.Inventory, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.writeOnce(tx, actor, id, c)
		})
		if errors.Is(err, errVersionConflict) {
			s.logger.WithFields(logrus.Fields{
				"inventory_id": id,
				"attempt":      attempt,
			}).Debug("inventory version conflict, retrying")
			continue
		}
		if err != nil {
			if !isDomainError(err) {
				config.LogError(s.logger, "inventory", "write", fmt.Sprintf("inventory %d", id), logrus.Fields{
					"kind":    c.kind,
					"user_id": actor.UserID,
				}, err)
			}
			return nil, err
		}
		return s.Get(ctx, id)
	}
	return nil, ErrConcurrentUpdate
}

func (s *Service) writeOnce(tx *gorm.DB, actor auth.Actor, id uint, c change) error {
	var inv models.Inventory
	if err := tx.First(&inv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	before := inv

	record := c.quantity != nil && !(c.skipSame && *c.quantity == inv.Quantity)
	newQty := inv.Quantity
	if record {
		var err error
		newQty, err = Apply(inv.Quantity, c.kind, *c.quantity)
		if err != nil {
			return err
		}
	}
	if !record && c.location == nil {
		return nil
	}

	now := s.now()
	updates := map[string]any{
		"quantity":     newQty,
		"version":      inv.Version + 1,
		"last_updated": now,
	}
	if c.location != nil {
		updates["location_warehouse"] = c.location.Warehouse
		updates["location_section"] = c.location.Section
		updates["location_shelf"] = c.location.Shelf
	}

	res := tx.Model(&models.Inventory{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errVersionConflict
	}

	inv.Quantity = newQty
	inv.Version++
	inv.LastUpdated = now
	if c.location != nil {
		inv.Location = *c.location
	}

	description := fmt.Sprintf("Inventory location changed to %s/%s/%s", inv.Location.Warehouse, inv.Location.Section, inv.Location.Shelf)
	if record {
		entry := newEntry(actor, c.kind, *c.quantity, newQty, c.reason, now)
		entry.InventoryID = inv.ID
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		if err := mirror(tx, inv.ProductID, newQty); err != nil {
			return err
		}
		description = fmt.Sprintf("Inventory %s %d: %d -> %d", c.kind, *c.quantity, before.Quantity, newQty)

		s.logger.WithFields(logrus.Fields{
			"inventory_id": inv.ID,
			"kind":         c.kind,
			"quantity":     *c.quantity,
			"new_quantity": newQty,
			"reference":    entry.Reference,
			"user_id":      actor.UserID,
		}).Info("inventory transaction recorded")
	}

	return audit.WriteLog(tx, audit.LogOptions{
		UserID:      actor.UserID,
		UserName:    actor.Name,
		EntityType:  audit.EntityInventory,
		EntityID:    inv.ID,
		Action:      models.AuditActionUpdate,
		Description: description,
		Before:      before,
		After:       inv,
	})
}

// mirror copies the on-hand quantity onto products.stock_quantity.
func mirror(tx *gorm.DB, productID uint, quantity int) error {
	res := tx.Model(&models.Product{}).Where("id = ?", productID).Update("stock_quantity", quantity)
	if res.Error != nil {
		return fmt.Errorf("mirror stock quantity: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func newEntry(actor auth.Actor, kind models.TransactionKind, quantity, after int, reason string, at time.Time) models.InventoryTransaction {
	return models.InventoryTransaction{
		Kind:          kind,
		Quantity:      quantity,
		QuantityAfter: after,
		Date:          at,
		Reason:        reason,
		PerformedBy:   actor.UserID,
		Reference:     uuid.NewString(),
	}
}

func withoutLog(inv models.Inventory) models.Inventory {
	inv.Transactions = nil
	return inv
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id asc")
}
