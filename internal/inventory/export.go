package inventory

import (
	"fmt"
	"io"

	"wholesale-backend/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Inventory"

var exportHeadings = []string{"ID", "Product", "SKU", "Quantity", "Low Stock Threshold", "Warehouse", "Section", "Shelf", "Last Updated"}

// WriteExport writes items as a single-sheet xlsx workbook.
func WriteExport(w io.Writer, items []models.Inventory) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	for i, h := range exportHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return err
		}
	}

	for i, inv := range items {
		row := i + 2
		var name, sku string
		var threshold int
		if inv.Product != nil {
			name, sku, threshold = inv.Product.Name, inv.Product.SKU, inv.Product.LowStockThreshold
		}
		values := []any{
			inv.ID,
			name,
			sku,
			inv.Quantity,
			threshold,
			inv.Location.Warehouse,
			inv.Location.Section,
			inv.Location.Shelf,
			inv.LastUpdated.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(exportSheet, fmt.Sprintf("A%d", row), &values); err != nil {
			return err
		}
	}

	return f.Write(w)
}
