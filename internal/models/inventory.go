package models

import "time"

type TransactionKind string

const (
	TransactionIn         TransactionKind = "in"
	TransactionOut        TransactionKind = "out"
	TransactionAdjustment TransactionKind = "adjustment"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionIn, TransactionOut, TransactionAdjustment:
		return true
	}
	return false
}

type Location struct {
	Warehouse string `gorm:"size:100;index" json:"warehouse"`
	Section   string `gorm:"size:100" json:"section"`
	Shelf     string `gorm:"size:100" json:"shelf"`
}

// Inventory: one record per product. Transactions only grow; Version is
// bumped on every quantity write and used as a compare-and-swap token.
type Inventory struct {
	ID           uint                   `gorm:"primaryKey" json:"id"`
	ProductID    uint                   `gorm:"not null;uniqueIndex" json:"product_id"`
	Product      *Product               `json:"product,omitempty"`
	Quantity     int                    `gorm:"not null;default:0" json:"quantity"`
	Location     Location               `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Version      int                    `gorm:"not null;default:0" json:"version"`
	Transactions []InventoryTransaction `gorm:"constraint:OnDelete:CASCADE" json:"transactions"`
	LastUpdated  time.Time              `json:"last_updated"`
	CreatedAt    time.Time              `json:"created_at"`
}

type InventoryTransaction struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	InventoryID   uint            `gorm:"not null;index" json:"inventory_id"`
	Kind          TransactionKind `gorm:"size:20;not null" json:"type"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	QuantityAfter int             `gorm:"not null" json:"quantity_after"`
	Date          time.Time       `gorm:"not null;index" json:"date"`
	Reason        string          `gorm:"size:255" json:"reason"`
	PerformedBy   uint            `gorm:"index" json:"performed_by"`
	Reference     string          `gorm:"size:36;uniqueIndex" json:"reference"`
}
