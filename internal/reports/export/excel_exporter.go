package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"carbon-scribe/restoration-portal/internal/projects"
)

// ProjectsSheet is the worksheet holding the project export.
const ProjectsSheet = "Projects"

// WriteProjectsExcel writes the project export as an .xlsx workbook with a
// frozen, styled header row.
func WriteProjectsExcel(w io.Writer, list []projects.Project) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", ProjectsSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2E7D32"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range ProjectColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(ProjectsSheet, cell, col); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(ProjectColumns), 1)
	if err := file.SetCellStyle(ProjectsSheet, "A1", last, headerStyle); err != nil {
		return err
	}
	if err := file.SetPanes(ProjectsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	for r, p := range list {
		row := projectRow(p)
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = v
		}
		// Numeric columns are written as numbers so they can be summed.
		if p.Analysis != nil {
			values[5] = p.Analysis.CarbonRestored
		}
		if p.CFTAmount != nil {
			values[9] = *p.CFTAmount
		}
		if err := file.SetSheetRow(ProjectsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write project %s: %w", p.ID, err)
		}
	}

	if err := file.SetColWidth(ProjectsSheet, "A", "O", 20); err != nil {
		return err
	}

	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
