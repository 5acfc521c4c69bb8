package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXExporter renders datasets into a single-sheet workbook.
type XLSXExporter struct {
	sheet string
}

// NewXLSXExporter constructs an XLSX exporter writing to the named sheet.
func NewXLSXExporter(sheet string) *XLSXExporter {
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &XLSXExporter{sheet: sheet}
}

// Render writes headers on the first row, freezes it and appends every row.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	file := excelize.NewFile()
	defer file.Close() //nolint:errcheck

	if err := file.SetSheetName("Sheet1", e.sheet); err != nil {
		return nil, fmt.Errorf("name xlsx sheet: %w", err)
	}
	if err := e.writeRow(file, 1, data.Headers); err != nil {
		return nil, err
	}
	for i, row := range data.Rows {
		if err := e.writeRow(file, i+2, row); err != nil {
			return nil, err
		}
	}

	style, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create xlsx header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(data.Headers), 1)
	if err != nil {
		return nil, fmt.Errorf("resolve xlsx header range: %w", err)
	}
	if err := file.SetCellStyle(e.sheet, "A1", last, style); err != nil {
		return nil, fmt.Errorf("style xlsx header: %w", err)
	}
	if err := file.SetPanes(e.sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze xlsx header: %w", err)
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) writeRow(file *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("resolve xlsx row %d: %w", row, err)
	}
	cells := make([]interface{}, len(values))
	for i, value := range values {
		cells[i] = value
	}
	if err := file.SetSheetRow(e.sheet, cell, &cells); err != nil {
		return fmt.Errorf("write xlsx row %d: %w", row, err)
	}
	return nil
}
