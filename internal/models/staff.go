package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ActivityKind string

const (
	ActivitySale      ActivityKind = "sale"
	ActivityInventory ActivityKind = "inventory"
	ActivityCustomer  ActivityKind = "customer"
	ActivityOther     ActivityKind = "other"
)

func (k ActivityKind) Valid() bool {
	switch k {
	case ActivitySale, ActivityInventory, ActivityCustomer, ActivityOther:
		return true
	}
	return false
}

type ContactInfo struct {
	Email   string `gorm:"size:150" json:"email"`
	Phone   string `gorm:"size:50" json:"phone"`
	Address string `gorm:"size:255" json:"address"`
}

type Performance struct {
	SalesTarget    decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"sales_target"`
	SalesAchieved  decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"sales_achieved"`
	TasksCompleted int             `gorm:"not null" json:"tasks_completed"`
}

// Percentage of the sales target reached, rounded to two decimals and zero
// without a target.
func (p Performance) Percentage() decimal.Decimal {
	if p.SalesTarget.IsZero() {
		return decimal.Zero
	}
	return p.SalesAchieved.Div(p.SalesTarget).Mul(decimal.NewFromInt(100)).Round(2)
}

type Staff struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"not null;uniqueIndex" json:"user_id"`
	User           *User           `json:"user,omitempty"`
	FirstName      string          `gorm:"size:100;not null" json:"first_name"`
	LastName       string          `gorm:"size:100;not null" json:"last_name"`
	Position       string          `gorm:"size:100;not null" json:"position"`
	Department     string          `gorm:"size:100" json:"department"`
	ContactInfo    ContactInfo     `gorm:"embedded;embeddedPrefix:contact_" json:"contact_info"`
	ClockInHistory []ClockEntry    `gorm:"constraint:OnDelete:CASCADE" json:"clock_in_history"`
	Activities     []StaffActivity `gorm:"constraint:OnDelete:CASCADE" json:"activities"`
	Performance    Performance     `gorm:"embedded;embeddedPrefix:performance_" json:"performance"`
	IsActive       bool            `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (s Staff) FullName() string {
	return s.FirstName + " " + s.LastName
}

type ClockEntry struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	StaffID    uint       `gorm:"not null;index" json:"staff_id"`
	ClockIn    time.Time  `gorm:"not null" json:"clock_in"`
	ClockOut   *time.Time `json:"clock_out"`
	TotalHours float64    `json:"total_hours"`
}

type StaffActivity struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	StaffID     uint         `gorm:"not null;index" json:"staff_id"`
	Kind        ActivityKind `gorm:"size:20;not null" json:"type"`
	Description string       `gorm:"size:500" json:"description"`
	Timestamp   time.Time    `gorm:"not null" json:"timestamp"`
}
