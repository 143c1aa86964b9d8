package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"landplots/internal/metrics"
	"landplots/internal/types"
)

const (
	WorkbookFileName    = "land_plots_report.xlsx"
	WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheet = "Sheet1"
)

// Column headers use the ingest aliases so a saved workbook loads back.
var workbookHeader = []any{
	"cadastral_number", "address", "area", "purpose", "source",
	"value", "rent_income", "profitability", "coordinates",
}

// RenderWorkbook writes parcels as an .xlsx workbook, one row per parcel.
// Only the outer ring of each polygon is kept.
func RenderWorkbook(w io.Writer, parcels []types.Parcel) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(sheet, "A1", &workbookHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "B", 32); err != nil {
		return err
	}

	for i, p := range parcels {
		var ring types.Ring
		if len(p.Coordinates) > 0 {
			ring = p.Coordinates[0]
		}
		coords, err := json.Marshal(ring)
		if err != nil {
			return err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			p.CadastralNumber, p.Address, p.Area, p.Purpose, string(p.Source),
			p.Value, p.RentIncome, p.Profitability(), string(coords),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	metrics.ExportsTotal.WithLabelValues("xlsx").Inc()
	return nil
}
