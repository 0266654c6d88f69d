package importer

import (
	"strings"
	"unicode/utf8"
)

const (
	minTitleRunes = 2

	minCellsMultipleChoice = 11
	minCellsTrueFalse      = 6
)

// DefaultForbiddenTitles are the example questions shipped in the blank
// template. Rows still carrying them were never filled in.
var DefaultForbiddenTitles = []string{
	"Titel der Frage",
	"Beispielfrage",
	"Beispiel Frage",
	"Musterfrage",
	"Question title",
	"Example question",
	"Sample question",
	"Titel",
	"Title",
}

// rejection is the reason a row was not accepted.
type rejection struct {
	cat Category
	msg string
}

func reject(cat Category, msg string) *rejection {
	return &rejection{cat: cat, msg: msg}
}

func minCells(kind QuestionKind) int {
	if kind == KindTrueFalse {
		return minCellsTrueFalse
	}
	return minCellsMultipleChoice
}

type fieldValidator struct {
	forbidden map[string]struct{}
}

func newFieldValidator(titles []string, fix Normalizer) fieldValidator {
	v := fieldValidator{forbidden: make(map[string]struct{}, len(titles))}
	for _, t := range titles {
		v.forbidden[fix.Repair(t)] = struct{}{}
	}
	return v
}

// validate applies the field rules in order and stops at the first failure.
func (v fieldValidator) validate(r extractedRow) *rejection {
	title := strings.TrimSpace(r.Title)
	if utf8.RuneCountInString(title) < minTitleRunes {
		return reject(CatMissingTitle, "title is missing or too short")
	}
	if r.TitleNotText {
		return reject(CatTitleNotString, "title must be text")
	}
	if _, ok := v.forbidden[title]; ok {
		return reject(CatRemoveTemplate, "remove the template question \""+title+"\"")
	}
	if strings.TrimSpace(r.Text) == "" {
		return reject(CatEmptyQuestionText, "question text is empty")
	}
	if r.Populated < minCells(r.Kind) {
		return reject(CatMissingValues, "row has missing values")
	}
	return nil
}

// looksLikeHeader reports whether a short row is a repeated header: its
// sequence cell holds a label and none of its weight cells hold a number,
// whether stored as a number or as numeric text.
func looksLikeHeader(l TemplateLayout, kind QuestionKind, cells []RawCell) bool {
	idx, _ := l.Column(kind, FieldSequence)
	seq := cellAt(cells, idx)
	if seq.Kind != CellText {
		return false
	}
	if _, err := parseNumber(seq.Text); err == nil {
		return false
	}
	weights := weightFields[:]
	if kind == KindTrueFalse {
		weights = []Field{FieldTrueWeight, FieldFalseWeight}
	}
	for _, f := range weights {
		i, ok := l.Column(kind, f)
		if !ok {
			continue
		}
		if isNumeric(cellAt(cells, i)) {
			return false
		}
	}
	return true
}

func isNumeric(c RawCell) bool {
	switch c.Kind {
	case CellNumber:
		return true
	case CellText:
		_, err := parseNumber(c.Text)
		return err == nil
	}
	return false
}
