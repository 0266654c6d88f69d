package importer

import (
	"fmt"
	"strings"
)

// Field names a logical column of the question template.
type Field int

const (
	FieldSequence Field = iota
	FieldTitle
	FieldText
	FieldCourse
	FieldWeight1
	FieldAnswer1
	FieldWeight2
	FieldAnswer2
	FieldWeight3
	FieldAnswer3
	FieldWeight4
	FieldAnswer4
	FieldTrueWeight
	FieldFalseWeight
	FieldStatement
	fieldCount
)

const (
	Layout2023 = "2023"
	Layout2024 = "2024"

	layout2023HeaderCells = 11
)

var fieldLabels = [fieldCount]string{
	FieldSequence:    "sequence",
	FieldTitle:       "title",
	FieldText:        "text",
	FieldCourse:      "course",
	FieldWeight1:     "weight-1",
	FieldAnswer1:     "answer-1",
	FieldWeight2:     "weight-2",
	FieldAnswer2:     "answer-2",
	FieldWeight3:     "weight-3",
	FieldAnswer3:     "answer-3",
	FieldWeight4:     "weight-4",
	FieldAnswer4:     "answer-4",
	FieldTrueWeight:  "true-weight",
	FieldFalseWeight: "false-weight",
	FieldStatement:   "answer-1",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldLabels[f]
}

var (
	answerFields = [4]Field{FieldAnswer1, FieldAnswer2, FieldAnswer3, FieldAnswer4}
	weightFields = [4]Field{FieldWeight1, FieldWeight2, FieldWeight3, FieldWeight4}
)

// TemplateLayout maps logical fields to zero-based column indexes for both
// sheet kinds. It is selected once per workbook and never changes.
type TemplateLayout struct {
	name string
	mc   [fieldCount]int
	tf   [fieldCount]int
}

func (l TemplateLayout) Name() string { return l.name }

// Column returns the column of f on a sheet of the given kind, or false when
// the layout has no such column.
func (l TemplateLayout) Column(kind QuestionKind, f Field) (int, bool) {
	if f < 0 || f >= fieldCount {
		return 0, false
	}
	idx := l.mc[f]
	if kind == KindTrueFalse {
		idx = l.tf[f]
	}
	return idx, idx >= 0
}

// Width is the number of template columns on a sheet of the given kind.
func (l TemplateLayout) Width(kind QuestionKind) int {
	cols := l.mc
	if kind == KindTrueFalse {
		cols = l.tf
	}
	width := 0
	for _, idx := range cols {
		if idx+1 > width {
			width = idx + 1
		}
	}
	return width
}

func newLayout(name string, withCourse bool) TemplateLayout {
	l := TemplateLayout{name: name}
	for i := range l.mc {
		l.mc[i] = -1
		l.tf[i] = -1
	}
	mcOrder := []Field{
		FieldSequence, FieldTitle, FieldText,
		FieldWeight1, FieldAnswer1, FieldWeight2, FieldAnswer2,
		FieldWeight3, FieldAnswer3, FieldWeight4, FieldAnswer4,
	}
	tfOrder := []Field{
		FieldSequence, FieldTitle, FieldText,
		FieldTrueWeight, FieldFalseWeight, FieldStatement,
	}
	if withCourse {
		mcOrder = append(mcOrder, FieldCourse)
		tfOrder = append(tfOrder, FieldCourse)
	}
	for i, f := range mcOrder {
		l.mc[f] = i
	}
	for i, f := range tfOrder {
		l.tf[f] = i
	}
	return l
}

var (
	layout2023 = newLayout(Layout2023, false)
	layout2024 = newLayout(Layout2024, true)
)

// ResolveLayout picks the template layout from the first sheet's header row.
// Exactly 11 populated header cells select "2023", more select "2024"; the
// decision is made on the count alone.
func ResolveLayout(header []RawCell) (TemplateLayout, error) {
	n := populatedCells(header)
	switch {
	case n == layout2023HeaderCells:
		return layout2023, nil
	case n > layout2023HeaderCells:
		return layout2024, nil
	default:
		return TemplateLayout{}, fmt.Errorf("%w: header has %d cells", ErrUnknownLayout, n)
	}
}

var headerKeywords = map[Field][]string{
	FieldSequence:    {"nr", "no", "#", "seq", "id"},
	FieldTitle:       {"titel", "title"},
	FieldText:        {"text", "frage", "question"},
	FieldCourse:      {"kapitel", "chapter", "course", "kurs"},
	FieldWeight1:     {"punkte", "points", "weight", "gewicht", "%"},
	FieldAnswer1:     {"antwort", "answer"},
	FieldTrueWeight:  {"wahr", "true", "richtig", "punkte", "points"},
	FieldFalseWeight: {"falsch", "false", "punkte", "points"},
}

// CheckHeader compares header labels against the selected layout and returns
// the columns whose label does not look like the expected field. The result
// is advisory only.
func CheckHeader(l TemplateLayout, kind QuestionKind, header []RawCell) []string {
	var mismatched []string
	for f := Field(0); f < fieldCount; f++ {
		idx, ok := l.Column(kind, f)
		if !ok {
			continue
		}
		keywords := headerKeywords[canonicalHeaderField(f)]
		if len(keywords) == 0 {
			continue
		}
		label := ""
		if idx < len(header) {
			label = strings.ToLower(strings.TrimSpace(header[idx].String()))
		}
		if !containsAny(label, keywords) {
			mismatched = append(mismatched, fmt.Sprintf("column %d (%s)", idx+1, f))
		}
	}
	return mismatched
}

func canonicalHeaderField(f Field) Field {
	switch f {
	case FieldWeight2, FieldWeight3, FieldWeight4:
		return FieldWeight1
	case FieldAnswer2, FieldAnswer3, FieldAnswer4, FieldStatement:
		return FieldAnswer1
	}
	return f
}

func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
