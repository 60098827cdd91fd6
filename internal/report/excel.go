// Package report renders report rows into xlsx workbooks for download.
package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"tezgahpos/internal/domain"
)

const sheetName = "Sheet1"

// WriteProductSales streams a product sales workbook to w.
func WriteProductSales(w io.Writer, rows []domain.ProductSalesRow) error {
	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"SKU", "Product", "Quantity Sold", "Revenue"}
	if err := writeHeader(f, headers); err != nil {
		return err
	}

	total := decimal.Zero
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{row.SKU, row.Name, row.QuantitySold, rowFloat(row.Revenue)}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
		total = total.Add(row.Revenue)
	}

	if err := writeTotalRow(f, len(rows)+2, 3, "Total", total); err != nil {
		return err
	}
	return finish(f, w, len(headers))
}

// WriteInventory streams an inventory valuation workbook to w.
func WriteInventory(w io.Writer, rows []domain.InventoryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"SKU", "Product", "Stock", "Purchase Price", "Stock Value"}
	if err := writeHeader(f, headers); err != nil {
		return err
	}

	total := decimal.Zero
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{row.SKU, row.Name, row.StockQty, rowFloat(row.PurchasePrice), rowFloat(row.StockValue)}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
		total = total.Add(row.StockValue)
	}

	if err := writeTotalRow(f, len(rows)+2, 4, "Total", total); err != nil {
		return err
	}
	return finish(f, w, len(headers))
}

// WriteDailySales streams a day-by-day sales workbook to w.
func WriteDailySales(w io.Writer, rows []domain.DailySalesRow) error {
	f := excelize.NewFile()
	defer f.Close()

	headers := []string{"Day", "Sales", "Total"}
	if err := writeHeader(f, headers); err != nil {
		return err
	}

	total := decimal.Zero
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{row.Day, row.SaleCount, rowFloat(row.Total)}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write report row: %w", err)
		}
		total = total.Add(row.Total)
	}

	if err := writeTotalRow(f, len(rows)+2, 2, "Total", total); err != nil {
		return err
	}
	return finish(f, w, len(headers))
}

func writeHeader(f *excelize.File, headers []string) error {
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &values); err != nil {
		return fmt.Errorf("write report header: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheetName, "A1", last, style)
}

func writeTotalRow(f *excelize.File, rowNum, labelCol int, label string, total decimal.Decimal) error {
	labelCell, err := excelize.CoordinatesToCellName(labelCol, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, labelCell, label); err != nil {
		return err
	}
	valueCell, err := excelize.CoordinatesToCellName(labelCol+1, rowNum)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheetName, valueCell, rowFloat(total))
}

func finish(f *excelize.File, w io.Writer, columns int) error {
	if err := f.SetColWidth(sheetName, "A", columnName(columns), 18); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func columnName(n int) string {
	name, err := excelize.ColumnNumberToName(n)
	if err != nil {
		return "Z"
	}
	return name
}

func rowFloat(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
