package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"flipflow/internal"
)

func ExportOrdersToXLSX(rows []internal.OrderExportRow, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"order_number", "status", "tracking_number", "carrier", "size",
		"failure_reason", "source_emails", "email_at", "updated_at",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.OrderNumber)
		set(2, row.Status)
		set(3, derefString(row.TrackingNumber))
		set(4, row.Carrier)
		set(5, derefString(row.Size))
		set(6, derefString(row.FailureReason))
		set(7, row.SourceCount)
		set(8, row.EmailAt)
		set(9, row.UpdatedAt)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
