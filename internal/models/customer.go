package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CustomerSegment string

const (
	SegmentRetail      CustomerSegment = "retail"
	SegmentWholesale   CustomerSegment = "wholesale"
	SegmentDistributor CustomerSegment = "distributor"
	SegmentOther       CustomerSegment = "other"
)

func (s CustomerSegment) Valid() bool {
	switch s {
	case SegmentRetail, SegmentWholesale, SegmentDistributor, SegmentOther:
		return true
	}
	return false
}

type Address struct {
	Street  string `gorm:"size:255" json:"street"`
	City    string `gorm:"size:100" json:"city"`
	State   string `gorm:"size:100" json:"state"`
	ZipCode string `gorm:"size:20" json:"zip_code"`
	Country string `gorm:"size:100" json:"country"`
}

type Customer struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Name            string          `gorm:"size:150;not null" json:"name"`
	Email           string          `gorm:"size:150;not null;uniqueIndex" json:"email"`
	Phone           string          `gorm:"size:50" json:"phone"`
	Address         Address         `gorm:"embedded;embeddedPrefix:address_" json:"address"`
	Company         string          `gorm:"size:150" json:"company"`
	Segment         CustomerSegment `gorm:"size:20;not null;index" json:"segment"`
	Industry        string          `gorm:"size:100" json:"industry"`
	Notes           string          `gorm:"size:2000" json:"notes"`
	TotalSpent      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_spent"`
	PurchaseHistory []Purchase      `gorm:"constraint:OnDelete:CASCADE" json:"purchase_history"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Purchase struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	CustomerID uint            `gorm:"not null;index" json:"customer_id"`
	Date       time.Time       `gorm:"not null" json:"date"`
	Amount     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Items      []PurchaseItem  `gorm:"constraint:OnDelete:CASCADE" json:"products"`
}

type PurchaseItem struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	PurchaseID uint            `gorm:"not null;index" json:"purchase_id"`
	ProductID  uint            `gorm:"not null;index" json:"product_id"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	Price      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
}
