package importer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadWorkbook decodes every sheet of an xlsx workbook into typed cells.
// Raw values come from the row iterator. Only values that parse as numbers
// can be a number, a boolean or numeric text, so only those are looked up
// with GetCellType. That lookup loads the worksheet and scans its rows, so
// text cells skip it.
func ReadWorkbook(data []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	names := f.GetSheetList()
	sheets := make([]Sheet, 0, len(names))
	for _, name := range names {
		raw, err := readRawRows(f, name)
		if err != nil {
			return nil, err
		}
		sheet := Sheet{Name: name, Rows: make([][]RawCell, len(raw))}
		for r, values := range raw {
			cells := make([]RawCell, len(values))
			for c, v := range values {
				if strings.TrimSpace(v) == "" {
					continue
				}
				if _, err := parseNumber(v); err != nil {
					cells[c] = TextCell(v)
					continue
				}
				axis, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					return nil, fmt.Errorf("cell name: %w", err)
				}
				typ, err := f.GetCellType(name, axis)
				if err != nil {
					return nil, fmt.Errorf("cell type %s!%s: %w", name, axis, err)
				}
				cells[c] = decodeCell(typ, v)
			}
			sheet.Rows[r] = cells
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

func readRawRows(f *excelize.File, sheet string) ([][]string, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows %s: %w", sheet, err)
	}
	out := make([][]string, 0, 64)
	for rows.Next() {
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("read row %d of %s: %w", len(out)+1, sheet, err)
		}
		out = append(out, cols)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows %s: %w", sheet, err)
	}
	return out, nil
}

func decodeCell(typ excelize.CellType, v string) RawCell {
	switch typ {
	case excelize.CellTypeBool:
		s := strings.ToLower(strings.TrimSpace(v))
		return BoolCell(s == "1" || s == "true")
	case excelize.CellTypeNumber, excelize.CellTypeUnset, excelize.CellTypeDate:
		if n, err := parseNumber(v); err == nil {
			return NumberCell(n)
		}
		return TextCell(v)
	default:
		return TextCell(v)
	}
}
