package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet is one tabular export
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

// BuildXLSX renders sheet into an xlsx workbook with a bold, frozen header row
func BuildXLSX(sheet Sheet) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	name := sheet.Name
	if name == "" {
		name = "Sheet1"
	}
	idx, err := f.NewSheet(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if name != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("failed to drop default sheet: %w", err)
		}
	}

	headers := make([]interface{}, len(sheet.Headers))
	for i, h := range sheet.Headers {
		headers[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E5E7EB"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	if len(sheet.Headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(sheet.Headers), 1)
		if err := f.SetCellStyle(name, "A1", last, style); err != nil {
			return nil, fmt.Errorf("failed to style header: %w", err)
		}
		if err := f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return nil, fmt.Errorf("failed to freeze header: %w", err)
		}
	}

	for i, row := range sheet.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		r := row
		if err := f.SetSheetRow(name, cell, &r); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
