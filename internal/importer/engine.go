package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"quizimport/internal/pkg/logger"
)

const (
	// MinDataRows is the smallest multiple-choice sheet accepted as a
	// complete assignment.
	MinDataRows = 15

	emptyRunMultipleChoice = 20
	emptyRunTrueFalse      = 2
)

var supportedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xltx": true,
	".xltm": true,
}

// Engine turns question workbooks into accepted records and a ledger. It is
// safe for concurrent use; duplicate acceptance is serialized per course.
type Engine struct {
	fix       Normalizer
	fields    fieldValidator
	dups      duplicateDetector
	log       *logger.Logger
	forbidden []string
}

type Option func(*Engine)

func WithNormalizer(n Normalizer) Option {
	return func(e *Engine) {
		if n != nil {
			e.fix = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithForbiddenTitles replaces the template placeholder titles.
func WithForbiddenTitles(titles ...string) Option {
	return func(e *Engine) {
		e.forbidden = titles
	}
}

func NewEngine(corpus Corpus, opts ...Option) *Engine {
	e := &Engine{
		fix:       TextRepairer{},
		log:       logger.Nop(),
		forbidden: DefaultForbiddenTitles,
	}
	for _, opt := range opts {
		opt(e)
	}
	if corpus == nil {
		corpus = NewMemoryCorpus()
	}
	e.fields = newFieldValidator(e.forbidden, e.fix)
	e.dups = duplicateDetector{corpus: corpus, locks: newCourseLocks()}
	return e
}

// Parse reads one workbook. It never fails: unreadable files, unknown
// layouts and incomplete assignments end up as ledger entries.
func (e *Engine) Parse(ctx context.Context, in ParseInput) ParseOutcome {
	out := ParseOutcome{
		CourseID: in.CourseID,
		AuthorID: in.AuthorID,
		QuizID:   in.QuizID,
		Filename: in.Filename,
		Records:  make([]QuestionRecord, 0),
		Errors:   make([]ValidationError, 0),
		Sheets:   make([]SheetSummary, 0, 2),
	}
	// Once a file is started every row runs to completion.
	ctx = context.WithoutCancel(ctx)

	sheets, err := e.openWorkbook(in)
	if err != nil {
		cat := CatFileUnreadable
		if errors.Is(err, ErrUnsupportedFile) {
			cat = CatUnsupportedFileType
		}
		out.addError(0, "", cat, err.Error())
		e.logOutcome(out)
		return out
	}

	mc := sheets[0]
	headerIdx := findHeader(mc)
	var header []RawCell
	if headerIdx >= 0 {
		header = mc.Rows[headerIdx]
	}
	layout, err := ResolveLayout(header)
	if err != nil {
		out.addError(headerIdx+1, mc.Name, CatUnknownLayout, err.Error())
		e.logOutcome(out)
		return out
	}
	out.Layout = layout.Name()

	mcRows, mcStop := bodyRows(mc, headerIdx, KindMultipleChoice, layout)
	if len(mcRows) < MinDataRows {
		out.addError(0, mc.Name, CatIncompleteAssignment,
			fmt.Sprintf("%s: %d data rows, at least %d required", MsgIncomplete, len(mcRows), MinDataRows))
		out.Sheets = append(out.Sheets, SheetSummary{Name: mc.Name, Kind: KindMultipleChoice, DataRows: len(mcRows)})
		addStop(&out, mc, mcStop)
		e.logOutcome(out)
		return out
	}
	e.warnHeader(&out, mc, KindMultipleChoice, layout, headerIdx)
	e.scanSheet(ctx, in, &out, mc, KindMultipleChoice, layout, mcRows)
	addStop(&out, mc, mcStop)

	if len(sheets) > 1 {
		tf := sheets[1]
		tfHeader := findHeader(tf)
		e.warnHeader(&out, tf, KindTrueFalse, layout, tfHeader)
		tfRows, tfStop := bodyRows(tf, tfHeader, KindTrueFalse, layout)
		e.scanSheet(ctx, in, &out, tf, KindTrueFalse, layout, tfRows)
		addStop(&out, tf, tfStop)
	}

	e.logOutcome(out)
	return out
}

func (e *Engine) openWorkbook(in ParseInput) ([]Sheet, error) {
	if in.Filename != "" {
		ext := strings.ToLower(filepath.Ext(in.Filename))
		if !supportedExtensions[ext] {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
		}
	}
	if len(in.Data) == 0 {
		return nil, errors.New("workbook is empty")
	}
	sheets, err := ReadWorkbook(in.Data)
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return sheets, nil
}

func (e *Engine) warnHeader(out *ParseOutcome, s Sheet, kind QuestionKind, l TemplateLayout, headerIdx int) {
	if headerIdx < 0 {
		return
	}
	bad := CheckHeader(l, kind, s.Rows[headerIdx])
	if len(bad) == 0 {
		return
	}
	out.addError(headerIdx+1, s.Name, CatLayoutWarning,
		fmt.Sprintf("header does not match layout %s: %s", l.Name(), strings.Join(bad, ", ")))
}

// scanSheet runs every data row through extraction, field rules, score
// rules and the duplicate check. Each row ends accepted or rejected.
func (e *Engine) scanSheet(ctx context.Context, in ParseInput, out *ParseOutcome, s Sheet, kind QuestionKind, l TemplateLayout, rows []int) {
	summary := SheetSummary{Name: s.Name, Kind: kind, DataRows: len(rows)}
	x := rowExtractor{
		layout: l,
		kind:   kind,
		fix:    e.fix,
		report: func(row int, cat Category, msg string) {
			out.addError(row, s.Name, cat, msg)
		},
	}

	for ordinal, idx := range rows {
		rowNo := idx + 1
		r := x.extract(rowNo, s.Rows[idx])
		rec, rej := e.processRow(ctx, in, r, ordinal+1)
		if rej != nil {
			summary.Rejected++
			out.addError(rowNo, s.Name, rej.cat, rej.msg)
			continue
		}
		summary.Accepted++
		out.Records = append(out.Records, rec)
	}
	out.Sheets = append(out.Sheets, summary)
}

func (e *Engine) processRow(ctx context.Context, in ParseInput, r extractedRow, ordinal int) (QuestionRecord, *rejection) {
	if rej := e.fields.validate(r); rej != nil {
		return QuestionRecord{}, rej
	}

	var rej *rejection
	if r.Kind == KindTrueFalse {
		rej = checkTrueFalseWeights(r.TrueWeight, r.FalseWeight)
	} else {
		rej = checkMultipleChoiceWeights(r.Weights)
	}
	if rej != nil {
		return QuestionRecord{}, rej
	}

	rec := buildRecord(in, r, ordinal)
	if rej := e.dups.accept(ctx, rec); rej != nil {
		return QuestionRecord{}, rej
	}
	return rec, nil
}

func buildRecord(in ParseInput, r extractedRow, ordinal int) QuestionRecord {
	seq := r.Sequence
	if seq <= 0 {
		seq = ordinal
	}
	rec := QuestionRecord{
		Sequence:   seq,
		Kind:       r.Kind,
		Title:      strings.TrimSpace(r.Title),
		Text:       r.Text,
		Chapter:    r.Course,
		CourseID:   in.CourseID,
		AuthorID:   in.AuthorID,
		QuizID:     in.QuizID,
		SourceFile: in.Filename,
		Row:        r.Row,
	}
	if r.Kind == KindTrueFalse {
		rec.TrueWeight = r.TrueWeight
		rec.FalseWeight = r.FalseWeight
		rec.Statement = r.Statement
		return rec
	}
	rec.Answers = make([]Answer, 0, len(r.Answers))
	for i, text := range r.Answers {
		if text == "" && r.Weights[i] == 0 {
			continue
		}
		rec.Answers = append(rec.Answers, Answer{Text: text, Weight: r.Weights[i]})
	}
	return rec
}

// findHeader returns the index of the first populated row, or -1.
func findHeader(s Sheet) int {
	for i, row := range s.Rows {
		if populatedCells(row) > 0 {
			return i
		}
	}
	return -1
}

// scanStop records why a sheet scan ended before the last populated row.
type scanStop struct {
	row    int
	reason string
}

// bodyRows lists the data rows after the header. A run of empty rows longer
// than the sheet kind's threshold, or a repeated header that is short of
// values, ends the sheet. When populated rows are left behind the returned
// stop names the first of them.
func bodyRows(s Sheet, headerIdx int, kind QuestionKind, l TemplateLayout) ([]int, *scanStop) {
	if headerIdx < 0 {
		return nil, nil
	}
	limit := emptyRunMultipleChoice
	if kind == KindTrueFalse {
		limit = emptyRunTrueFalse
	}
	rows := make([]int, 0, len(s.Rows))
	emptyRun := 0
	for i := headerIdx + 1; i < len(s.Rows); i++ {
		cells := s.Rows[i]
		n := populatedCells(cells)
		if n == 0 {
			emptyRun++
			if emptyRun > limit {
				if next := nextPopulated(s, i); next >= 0 {
					return rows, &scanStop{
						row:    next + 1,
						reason: fmt.Sprintf("more than %d empty rows before row %d", limit, next+1),
					}
				}
				break
			}
			continue
		}
		emptyRun = 0
		if n < minCells(kind) && looksLikeHeader(l, kind, cells) {
			return rows, &scanStop{row: i + 1, reason: fmt.Sprintf("repeated header at row %d", i+1)}
		}
		rows = append(rows, i)
	}
	return rows, nil
}

func nextPopulated(s Sheet, from int) int {
	for i := from; i < len(s.Rows); i++ {
		if populatedCells(s.Rows[i]) > 0 {
			return i
		}
	}
	return -1
}

func addStop(out *ParseOutcome, s Sheet, stop *scanStop) {
	if stop == nil {
		return
	}
	out.addError(stop.row, s.Name, CatScanStopped, "sheet scan stopped: "+stop.reason+"; later rows were not read")
}

func (o *ParseOutcome) addError(row int, sheet string, cat Category, msg string) {
	o.Errors = append(o.Errors, ValidationError{
		Row:         row,
		Sheet:       sheet,
		AuthorID:    o.AuthorID,
		QuizID:      o.QuizID,
		Description: msg,
		Category:    cat,
	})
}

func (e *Engine) logOutcome(out ParseOutcome) {
	sum := out.Summary()
	kv := []interface{}{
		"file", out.Filename,
		"course_id", out.CourseID,
		"author_id", out.AuthorID,
		"quiz_id", out.QuizID,
		"layout", out.Layout,
		"accepted", sum.Accepted,
		"rejected", sum.Rejected,
		"ledger", len(out.Errors),
	}
	if sum.Fatal {
		e.log.Warn("workbook rejected", kv...)
		return
	}
	e.log.Info("workbook parsed", kv...)
}
