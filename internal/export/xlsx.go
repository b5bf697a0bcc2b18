// Package export renders health records as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sakif/garmin-mcp/internal/model"
)

const SheetName = "Daily Summaries"

// Header is the first row of the sheet.
var Header = []string{
	"Day",
	"User",
	"Steps",
	"Resting HR",
	"Calories",
	"Sleep (s)",
	"Body Battery Min",
	"Body Battery Max",
	"Updated At",
}

var columnWidths = []float64{12, 20, 10, 12, 10, 10, 18, 18, 24}

// WriteXLSX writes one row per record, in the order given. Absent
// measurements leave their cell empty.
func WriteXLSX(w io.Writer, recs []model.HealthRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(SheetName); err != nil {
		return fmt.Errorf("export: creating sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("export: removing default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(SheetName)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("export: creating header style: %w", err)
	}

	for col, title := range Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, title); err != nil {
			return fmt.Errorf("export: writing header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("export: styling header: %w", err)
		}
	}
	for col, width := range columnWidths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if err := f.SetColWidth(SheetName, name, name, width); err != nil {
			return fmt.Errorf("export: setting width of %s: %w", name, err)
		}
	}

	for i, rec := range recs {
		for col, v := range row(rec) {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return fmt.Errorf("export: writing %s: %w", cell, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: writing workbook: %w", err)
	}
	return nil
}

func row(rec model.HealthRecord) []any {
	var updated any
	if !rec.UpdatedAt.IsZero() {
		updated = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return []any{
		rec.Day,
		rec.UserID,
		measure(rec.Steps),
		measure(rec.RestingHR),
		measure(rec.Calories),
		measure(rec.SleepSeconds),
		measure(rec.BodyBatteryMin),
		measure(rec.BodyBatteryMax),
		updated,
	}
}

func measure(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
