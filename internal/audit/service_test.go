package audit

import (
	"context"
	"testing"

	"wholesale-backend/internal/models"
	"wholesale-backend/internal/testdb"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func writeCustomerUpdate(t *testing.T, db *gorm.DB) (models.Customer, models.AuditLog) {
	t.Helper()
	c := models.Customer{
		Name:       "Harbor Supply",
		Email:      "orders@harbor.example",
		Segment:    models.SegmentWholesale,
		TotalSpent: decimal.Zero,
	}
	require.NoError(t, db.Create(&c).Error)

	before := c
	c.Notes = "Net 30"
	c.Segment = models.SegmentDistributor
	require.NoError(t, db.Save(&c).Error)

	require.NoError(t, WriteLog(db, LogOptions{
		UserID:      1,
		UserName:    "Owner",
		EntityType:  EntityCustomer,
		EntityID:    c.ID,
		Action:      models.AuditActionUpdate,
		Description: "Customer updated",
		Before:      before,
		After:       c,
	}))

	var entry models.AuditLog
	require.NoError(t, db.Order("id desc").First(&entry).Error)
	return c, entry
}

func TestUndoLog_RestoresUpdate(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	c, entry := writeCustomerUpdate(t, db)

	require.NoError(t, UndoLog(ctx, db, entry.ID, 2, "Auditor"))

	var restored models.Customer
	require.NoError(t, db.First(&restored, c.ID).Error)
	assert.Equal(t, models.SegmentWholesale, restored.Segment)
	assert.Empty(t, restored.Notes)

	logs, err := List(ctx, db, ListFilter{EntityType: EntityCustomer})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditActionUndo, logs[0].Action)
	assert.True(t, logs[1].IsUndone)
	require.NotNil(t, logs[1].UndoneBy)
	assert.Equal(t, uint(2), *logs[1].UndoneBy)

	assert.ErrorIs(t, UndoLog(ctx, db, entry.ID, 2, "Auditor"), ErrAlreadyUndone)
	assert.ErrorIs(t, UndoLog(ctx, db, logs[0].ID, 2, "Auditor"), ErrNotUndoable)
}

func TestUndoLog_Errors(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	assert.ErrorIs(t, UndoLog(ctx, db, 404, 1, "Owner"), ErrLogNotFound)

	require.NoError(t, WriteLog(db, LogOptions{
		UserID:     1,
		EntityType: EntityInventory,
		EntityID:   1,
		Action:     models.AuditActionUpdate,
	}))
	var entry models.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.ErrorIs(t, UndoLog(ctx, db, entry.ID, 1, "Owner"), ErrNotUndoable)
}

func TestWriteLog_EmptySnapshots(t *testing.T) {
	db := testdb.New(t)
	require.NoError(t, WriteLog(db, LogOptions{EntityType: EntityStaff, Action: models.AuditActionCreate}))

	var entry models.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "null", entry.BeforeData)
	assert.Equal(t, "null", entry.AfterData)
}

func TestList_Limit(t *testing.T) {
	db := testdb.New(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, WriteLog(db, LogOptions{EntityType: EntityProduct, EntityID: uint(i + 1), Action: models.AuditActionCreate}))
	}

	logs, err := List(context.Background(), db, ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, uint(3), logs[0].EntityID)

	logs, err = List(context.Background(), db, ListFilter{EntityID: 1})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func seedTrackedProduct(t *testing.T, db *gorm.DB) models.Product {
	t.Helper()
	p := models.Product{
		Name:              "Neck Massager",
		Category:          models.CategoryMassager,
		SKU:               "MSG-77",
		Price:             decimal.NewFromInt(40),
		CostPrice:         decimal.NewFromInt(25),
		StockQuantity:     10,
		LowStockThreshold: 3,
		IsActive:          true,
	}
	require.NoError(t, db.Create(&p).Error)
	require.NoError(t, WriteLog(db, LogOptions{
		EntityType: EntityProduct,
		EntityID:   p.ID,
		Action:     models.AuditActionCreate,
		After:      p,
	}))
	require.NoError(t, db.Create(&models.Inventory{ProductID: p.ID, Quantity: 10, Version: 1}).Error)
	return p
}

func lastLog(t *testing.T, db *gorm.DB) models.AuditLog {
	t.Helper()
	var entry models.AuditLog
	require.NoError(t, db.Order("id desc").First(&entry).Error)
	return entry
}

func TestUndoLog_ProductUpdateKeepsStockMirror(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	p := seedTrackedProduct(t, db)

	before := p
	p.Name = "Neck Massager Pro"
	require.NoError(t, db.Save(&p).Error)
	require.NoError(t, WriteLog(db, LogOptions{
		EntityType: EntityProduct,
		EntityID:   p.ID,
		Action:     models.AuditActionUpdate,
		Before:     before,
		After:      p,
	}))
	rename := lastLog(t, db)

	// stock moves after the rename
	require.NoError(t, db.Model(&models.Inventory{}).Where("product_id = ?", p.ID).Update("quantity", 7).Error)
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", p.ID).Update("stock_quantity", 7).Error)

	require.NoError(t, UndoLog(ctx, db, rename.ID, 1, "Owner"))

	var restored models.Product
	require.NoError(t, db.First(&restored, p.ID).Error)
	assert.Equal(t, "Neck Massager", restored.Name)
	assert.Equal(t, 7, restored.StockQuantity)
}

func TestUndoLog_ProductCreateWithInventory(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	p := seedTrackedProduct(t, db)

	var created models.AuditLog
	require.NoError(t, db.Where("entity_type = ? AND action = ?", EntityProduct, models.AuditActionCreate).First(&created).Error)

	assert.ErrorIs(t, UndoLog(ctx, db, created.ID, 1, "Owner"), ErrEntityInUse)

	var count int64
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.First(&created, created.ID).Error)
	assert.False(t, created.IsUndone)
}

func TestUndoLog_CustomerUpdateKeepsTotalSpent(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	c := models.Customer{Name: "Bayside", Email: "buy@bayside.example", Segment: models.SegmentRetail, TotalSpent: decimal.Zero}
	require.NoError(t, db.Create(&c).Error)
	addPurchase := func(amount int64) {
		require.NoError(t, db.Create(&models.Purchase{CustomerID: c.ID, Amount: decimal.NewFromInt(amount)}).Error)
		require.NoError(t, db.Model(&models.Customer{}).Where("id = ?", c.ID).
			Update("total_spent", gorm.Expr("total_spent + ?", amount)).Error)
	}

	addPurchase(10)
	require.NoError(t, db.First(&c, c.ID).Error)
	before := c
	c.Notes = "Call before delivery"
	require.NoError(t, db.Omit("total_spent").Save(&c).Error)
	require.NoError(t, WriteLog(db, LogOptions{
		EntityType: EntityCustomer,
		EntityID:   c.ID,
		Action:     models.AuditActionUpdate,
		Before:     before,
		After:      c,
	}))
	update := lastLog(t, db)
	addPurchase(5)

	require.NoError(t, UndoLog(ctx, db, update.ID, 1, "Owner"))

	var restored models.Customer
	require.NoError(t, db.First(&restored, c.ID).Error)
	assert.Empty(t, restored.Notes)
	assert.True(t, restored.TotalSpent.Equal(decimal.NewFromInt(15)), restored.TotalSpent.String())
}

func TestUndoLog_CustomerCreateWithPurchases(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()

	c := models.Customer{Name: "Quayline", Email: "ops@quayline.example", Segment: models.SegmentRetail, TotalSpent: decimal.Zero}
	require.NoError(t, db.Create(&c).Error)
	require.NoError(t, WriteLog(db, LogOptions{EntityType: EntityCustomer, EntityID: c.ID, Action: models.AuditActionCreate, After: c}))
	created := lastLog(t, db)
	require.NoError(t, db.Create(&models.Purchase{CustomerID: c.ID, Amount: decimal.NewFromInt(3)}).Error)

	assert.ErrorIs(t, UndoLog(ctx, db, created.ID, 1, "Owner"), ErrEntityInUse)
}
