// Package export renders an organization's cases as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dharsanguruparan/straymandu/internal/model"
)

// SheetName is the single sheet written by Cases.
const SheetName = "Cases"

// Header is the column order of the Cases sheet.
var Header = []string{
	"Report ID", "Dog", "Breed", "Condition", "Emergency", "Status",
	"Team", "Address", "Latitude", "Longitude", "Reported At",
}

var columnWidths = []float64{38, 16, 16, 12, 11, 14, 18, 32, 12, 12, 20}

// Cases writes reports to w, one row per report in the given order.
func Cases(w io.Writer, reports []*model.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	for i, r := range reports {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := caseRow(r)
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func caseRow(r *model.Report) []interface{} {
	emergency := "No"
	if r.Emergency {
		emergency = "Yes"
	}
	team := r.AssignedTeam
	if team == "" {
		team = model.UnassignedTeam
	}
	return []interface{}{
		r.ID,
		r.DogName(),
		r.Breed,
		string(r.Condition),
		emergency,
		string(r.Status),
		team,
		r.Location.Address,
		r.Location.Latitude,
		r.Location.Longitude,
		r.CreatedAt.UTC().Format(time.RFC3339),
	}
}
