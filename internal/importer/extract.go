package importer

import (
	"fmt"
	"strconv"
	"strings"
)

type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
	CellBool
)

func (k CellKind) String() string {
	switch k {
	case CellText:
		return "text"
	case CellNumber:
		return "number"
	case CellBool:
		return "boolean"
	default:
		return "empty"
	}
}

// RawCell is one decoded cell value.
type RawCell struct {
	Kind   CellKind
	Text   string
	Number float64
	Bool   bool
}

func TextCell(s string) RawCell {
	if strings.TrimSpace(s) == "" {
		return RawCell{}
	}
	return RawCell{Kind: CellText, Text: s}
}

func NumberCell(n float64) RawCell { return RawCell{Kind: CellNumber, Number: n} }

func BoolCell(b bool) RawCell { return RawCell{Kind: CellBool, Bool: b} }

func (c RawCell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case CellBool:
		return strconv.FormatBool(c.Bool)
	default:
		return ""
	}
}

func populatedCells(row []RawCell) int {
	n := 0
	for _, c := range row {
		if c.Kind != CellEmpty {
			n++
		}
	}
	return n
}

// Sheet is one worksheet's rows in order; Rows[i] is spreadsheet row i+1.
type Sheet struct {
	Name string
	Rows [][]RawCell
}

// extractedRow is the typed intermediate form of one data row.
type extractedRow struct {
	Row          int
	Kind         QuestionKind
	Populated    int
	Sequence     int
	Title        string
	TitleNotText bool
	Text         string
	Course       string
	Answers      [4]string
	Weights      [4]float64
	TrueWeight   float64
	FalseWeight  float64
	Statement    string
}

// rowExtractor reads rows against a layout. Every problem is appended to the
// ledger through report and a default value is used in its place.
type rowExtractor struct {
	layout TemplateLayout
	kind   QuestionKind
	fix    Normalizer
	report func(row int, cat Category, msg string)
}

func (x rowExtractor) extract(rowNo int, cells []RawCell) extractedRow {
	out := extractedRow{
		Row:       rowNo,
		Kind:      x.kind,
		Populated: populatedCells(cells),
	}
	out.Sequence = int(x.number(rowNo, cells, FieldSequence))
	out.Title, out.TitleNotText = x.text(rowNo, cells, FieldTitle)
	out.Text, _ = x.text(rowNo, cells, FieldText)
	if idx, ok := x.layout.Column(x.kind, FieldCourse); ok {
		out.Course = x.fix.Repair(cellAt(cells, idx).String())
	}

	if x.kind == KindTrueFalse {
		out.TrueWeight = x.number(rowNo, cells, FieldTrueWeight)
		out.FalseWeight = x.number(rowNo, cells, FieldFalseWeight)
		out.Statement, _ = x.text(rowNo, cells, FieldStatement)
		return out
	}
	for i := range answerFields {
		out.Weights[i] = x.number(rowNo, cells, weightFields[i])
		out.Answers[i], _ = x.text(rowNo, cells, answerFields[i])
	}
	return out
}

func (x rowExtractor) number(rowNo int, cells []RawCell, f Field) float64 {
	idx, ok := x.layout.Column(x.kind, f)
	if !ok {
		return 0
	}
	c := cellAt(cells, idx)
	switch c.Kind {
	case CellNumber:
		return c.Number
	case CellText:
		if v, err := parseNumber(c.Text); err == nil {
			return v
		}
	}
	x.report(rowNo, CatNotNumeric, fmt.Sprintf("%s is not numeric (%s %q)", f, c.Kind, c.String()))
	return 0
}

// text returns the repaired text of f and whether the cell held a number or
// a boolean instead of text.
func (x rowExtractor) text(rowNo int, cells []RawCell, f Field) (string, bool) {
	idx, ok := x.layout.Column(x.kind, f)
	if !ok {
		return "", false
	}
	c := cellAt(cells, idx)
	switch c.Kind {
	case CellText:
		return x.fix.Repair(c.Text), false
	case CellNumber:
		x.report(rowNo, CatWrongDatatype, fmt.Sprintf("%s expects text but holds a number", f))
		return c.String(), true
	case CellBool:
		x.report(rowNo, CatWrongDatatype, fmt.Sprintf("%s expects text but holds a boolean", f))
		return c.String(), true
	default:
		x.report(rowNo, CatMissingValue, fmt.Sprintf("missing value: %s", f))
		return "", false
	}
}

func cellAt(cells []RawCell, idx int) RawCell {
	if idx < 0 || idx >= len(cells) {
		return RawCell{}
	}
	return cells[idx]
}

// parseNumber accepts decimal points and decimal commas.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return strconv.ParseFloat(s, 64)
}
