package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wholesale-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	EntityInventory = "inventory"
	EntityProduct   = "product"
	EntityCustomer  = "customer"
	EntityStaff     = "staff"
)

var (
	ErrLogNotFound   = errors.New("audit log not found")
	ErrAlreadyUndone = errors.New("audit log already undone")
	ErrNotUndoable   = errors.New("audit log cannot be undone")
	// the entity is still referenced by rows the undo would orphan
	ErrEntityInUse = errors.New("entity is still in use")
)

type LogOptions struct {
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog stores one audit row. Pass the transaction handle when the log
// must commit together with the change it describes.
func WriteLog(db *gorm.DB, opts LogOptions) error {
	entry := models.AuditLog{
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  snapshot(opts.Before),
		AfterData:   snapshot(opts.After),
	}

	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// jsonb columns need "null" rather than an empty string
func snapshot(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

type ListFilter struct {
	EntityType string
	EntityID   uint
	UserID     uint
	Limit      int
}

func List(ctx context.Context, db *gorm.DB, f ListFilter) ([]models.AuditLog, error) {
	q := db.WithContext(ctx).Model(&models.AuditLog{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID > 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	var logs []models.AuditLog
	if err := q.Order("id DESC").Limit(f.Limit).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// UndoLog reverts the change recorded by a product or customer log.
// Inventory history is append-only and is never undone here; stock
// corrections go through an adjustment transaction instead.
func UndoLog(ctx context.Context, db *gorm.DB, logID, userID uint, userName string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.AuditLog
		if err := tx.First(&entry, logID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLogNotFound
			}
			return err
		}
		if entry.IsUndone {
			return ErrAlreadyUndone
		}
		if entry.Action == models.AuditActionUndo {
			return ErrNotUndoable
		}

		var err error
		switch entry.EntityType {
		case EntityProduct:
			err = revertProduct(tx, entry)
		case EntityCustomer:
			err = revertCustomer(tx, entry)
		default:
			return ErrNotUndoable
		}
		if err != nil {
			return err
		}

		now := time.Now()
		entry.IsUndone = true
		entry.UndoneBy = &userID
		entry.UndoneAt = &now
		if err := tx.Save(&entry).Error; err != nil {
			return fmt.Errorf("mark audit log undone: %w", err)
		}

		undo := models.AuditLog{
			UserID:      userID,
			UserName:    userName,
			EntityType:  entry.EntityType,
			EntityID:    entry.EntityID,
			Action:      models.AuditActionUndo,
			Description: fmt.Sprintf("Undone: %s", entry.Description),
			BeforeData:  entry.AfterData,
			AfterData:   entry.BeforeData,
		}
		if err := tx.Create(&undo).Error; err != nil {
			return fmt.Errorf("write undo log: %w", err)
		}
		return nil
	})
}

// revertProduct keeps stock_quantity out of the restore once the product
// has an inventory record; the record owns that column.
func revertProduct(tx *gorm.DB, entry models.AuditLog) error {
	var tracked int64
	if err := tx.Model(&models.Inventory{}).Where("product_id = ?", entry.EntityID).Count(&tracked).Error; err != nil {
		return err
	}
	if tracked == 0 {
		return revert[models.Product](tx, entry)
	}
	if entry.Action == models.AuditActionCreate {
		return ErrEntityInUse
	}
	return revert[models.Product](tx, entry, "stock_quantity")
}

// revertCustomer never restores total_spent from a snapshot: it is the sum
// of the purchases, which are not part of the undo.
func revertCustomer(tx *gorm.DB, entry models.AuditLog) error {
	var purchases int64
	if err := tx.Model(&models.Purchase{}).Where("customer_id = ?", entry.EntityID).Count(&purchases).Error; err != nil {
		return err
	}
	if entry.Action == models.AuditActionCreate && purchases > 0 {
		return ErrEntityInUse
	}
	if entry.Action == models.AuditActionDelete {
		// purchases were removed with the customer, the total starts over
		var c models.Customer
		if err := json.Unmarshal([]byte(entry.BeforeData), &c); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		c.TotalSpent = decimal.Zero
		return tx.Omit(clause.Associations).Save(&c).Error
	}
	return revert[models.Customer](tx, entry, "total_spent")
}

// revert applies the inverse of entry: create -> delete, update -> restore
// the before snapshot, delete -> recreate from the before snapshot. Columns
// in omit keep their current value.
func revert[T any](tx *gorm.DB, entry models.AuditLog, omit ...string) error {
	switch entry.Action {
	case models.AuditActionCreate:
		var m T
		return tx.Delete(&m, entry.EntityID).Error

	case models.AuditActionUpdate, models.AuditActionDelete:
		var m T
		if err := json.Unmarshal([]byte(entry.BeforeData), &m); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		// Save inserts when the row is gone and updates otherwise
		return tx.Omit(append(omit, clause.Associations)...).Save(&m).Error
	}
	return ErrNotUndoable
}
