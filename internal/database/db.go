package database

import (
	"fmt"

	"wholesale-backend/internal/config"
	"wholesale-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// Init opens the Postgres connection, runs migrations and sets DB.
func Init(cfg *config.Config) {
	logger := config.GetLogger()

	db, err := Open(postgres.Open(cfg.DatabaseDSN))
	if err != nil {
		logger.WithError(err).Fatal("could not connect to database")
	}
	if err := Migrate(db); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	DB = db
	logger.Info("database connected, migrations applied")
}

// Open wraps gorm.Open with the settings every caller needs. Duplicate-key
// errors are translated to gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Inventory{},
		&models.InventoryTransaction{},
		&models.Customer{},
		&models.Purchase{},
		&models.PurchaseItem{},
		&models.Staff{},
		&models.ClockEntry{},
		&models.StaffActivity{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
