package importer

import (
	"errors"
	"sort"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrUnknownLayout   = errors.New("unknown template layout")
)

type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "MULTIPLE_CHOICE"
	KindTrueFalse      QuestionKind = "TRUE_FALSE"
)

// Category classifies a ledger entry.
type Category string

const (
	CatFileUnreadable       Category = "FILE_UNREADABLE"
	CatUnsupportedFileType  Category = "UNSUPPORTED_FILE_TYPE"
	CatUnknownLayout        Category = "UNKNOWN_LAYOUT"
	CatIncompleteAssignment Category = "INCOMPLETE_ASSIGNMENT"
	CatLayoutWarning        Category = "LAYOUT_WARNING"
	CatScanStopped          Category = "SCAN_STOPPED"
	CatNotNumeric           Category = "NOT_NUMERIC"
	CatWrongDatatype        Category = "WRONG_DATATYPE"
	CatMissingValue         Category = "MISSING_VALUE"
	CatMissingTitle         Category = "MISSING_TITLE"
	CatTitleNotString       Category = "TITLE_NOT_STRING"
	CatRemoveTemplate       Category = "REMOVE_TEMPLATE_QUESTION"
	CatEmptyQuestionText    Category = "EMPTY_QUESTION_TEXT"
	CatMissingValues        Category = "MISSING_VALUES"
	CatScoreRule            Category = "SCORE_RULE"
	CatDuplicateTitle       Category = "DUPLICATE_TITLE"
	CatDuplicateAnswer      Category = "DUPLICATE_ANSWER"
	CatCorpusUnavailable    Category = "CORPUS_UNAVAILABLE"
)

// Score rule descriptions. Existing grading exports match on these strings.
const (
	MsgFourOfFourWrong  = "4-of-4 weighting wrong"
	MsgThreeOfFourWrong = "3-of-4 weighting wrong"
	MsgTwoOfFourWrong   = "2-of-4 weighting wrong"
	MsgOneOfFourWrong   = "1-of-4 weighting wrong"
	MsgMissingPoints    = "missing points"
	MsgTrueFalseWrong   = "true/false weighting wrong"
	MsgTitleExists      = "title already exists"
	MsgAnswerExists     = "answer already exists"
	MsgIncomplete       = "incomplete assignment"
)

type Answer struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

// QuestionRecord is either MULTIPLE_CHOICE shaped (Answers set) or TRUE_FALSE
// shaped (TrueWeight, FalseWeight and Statement set), never both.
type QuestionRecord struct {
	Sequence    int          `json:"sequence"`
	Kind        QuestionKind `json:"kind"`
	Title       string       `json:"title"`
	Text        string       `json:"text"`
	Chapter     string       `json:"chapter,omitempty"`
	Answers     []Answer     `json:"answers,omitempty"`
	TrueWeight  float64      `json:"true_weight,omitempty"`
	FalseWeight float64      `json:"false_weight,omitempty"`
	Statement   string       `json:"statement,omitempty"`
	CourseID    int64        `json:"course_id"`
	AuthorID    int64        `json:"author_id"`
	QuizID      int64        `json:"quiz_id"`
	SourceFile  string       `json:"source_file"`
	Row         int          `json:"row"`
}

type ValidationError struct {
	Row         int      `json:"row"`
	Sheet       string   `json:"sheet,omitempty"`
	AuthorID    int64    `json:"author_id"`
	QuizID      int64    `json:"quiz_id"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

func (e ValidationError) Error() string {
	return string(e.Category) + ": " + e.Description
}

type ParseInput struct {
	CourseID int64
	AuthorID int64
	QuizID   int64
	Filename string
	Data     []byte
}

type SheetSummary struct {
	Name     string       `json:"name"`
	Kind     QuestionKind `json:"kind"`
	DataRows int          `json:"data_rows"`
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
}

type ParseOutcome struct {
	CourseID int64             `json:"course_id"`
	AuthorID int64             `json:"author_id"`
	QuizID   int64             `json:"quiz_id"`
	Filename string            `json:"filename"`
	Layout   string            `json:"layout,omitempty"`
	Records  []QuestionRecord  `json:"records"`
	Errors   []ValidationError `json:"errors"`
	Sheets   []SheetSummary    `json:"sheets"`
}

// Fatal reports whether the workbook was rejected as a whole.
func (o ParseOutcome) Fatal() bool {
	for _, e := range o.Errors {
		switch e.Category {
		case CatFileUnreadable, CatUnsupportedFileType, CatUnknownLayout, CatIncompleteAssignment:
			return true
		}
	}
	return false
}

type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

type OutcomeSummary struct {
	Accepted   int             `json:"accepted"`
	Rejected   int             `json:"rejected"`
	Fatal      bool            `json:"fatal"`
	Categories []CategoryCount `json:"categories"`
}

func (o ParseOutcome) Summary() OutcomeSummary {
	out := OutcomeSummary{Accepted: len(o.Records), Fatal: o.Fatal()}
	for _, s := range o.Sheets {
		out.Rejected += s.Rejected
	}
	counts := map[Category]int{}
	for _, e := range o.Errors {
		counts[e.Category]++
	}
	out.Categories = make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		out.Categories = append(out.Categories, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out.Categories, func(i, j int) bool {
		return out.Categories[i].Category < out.Categories[j].Category
	})
	return out
}
