package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductCategory string

const (
	CategoryMassager ProductCategory = "Massager"
	CategoryToys     ProductCategory = "Toys"
	CategoryBooks    ProductCategory = "Books"
	CategoryOther    ProductCategory = "Other"
)

func (c ProductCategory) Valid() bool {
	switch c {
	case CategoryMassager, CategoryToys, CategoryBooks, CategoryOther:
		return true
	}
	return false
}

type Supplier struct {
	Name        string `gorm:"size:100" json:"name"`
	ContactInfo string `gorm:"size:255" json:"contact_info"`
}

// Product.StockQuantity mirrors Inventory.Quantity once an inventory record
// exists for the product; only the inventory service writes it after that.
type Product struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"size:150;not null" json:"name"`
	Description       string          `gorm:"size:1000" json:"description"`
	Category          ProductCategory `gorm:"size:20;not null;index" json:"category"`
	SKU               string          `gorm:"column:sku;size:64;not null;uniqueIndex" json:"sku"`
	Price             decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	CostPrice         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"cost_price"`
	StockQuantity     int             `gorm:"not null;default:0" json:"stock_quantity"`
	LowStockThreshold int             `gorm:"not null" json:"low_stock_threshold"`
	Images            []string        `gorm:"serializer:json" json:"images"`
	Supplier          Supplier        `gorm:"embedded;embeddedPrefix:supplier_" json:"supplier"`
	IsActive          bool            `gorm:"not null" json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (p Product) IsLowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}

// ProfitMargin is the margin in percent of the sale price, zero when the
// price is zero.
func (p Product) ProfitMargin() decimal.Decimal {
	if p.Price.IsZero() {
		return decimal.Zero
	}
	return p.Price.Sub(p.CostPrice).Div(p.Price).Mul(decimal.NewFromInt(100)).Round(2)
}
