package importer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type sheetSpec struct {
	name string
	rows [][]any
}

var (
	mcHeader2024 = []any{"Nr", "Titel", "Fragetext", "Punkte A", "Antwort A", "Punkte B", "Antwort B", "Punkte C", "Antwort C", "Punkte D", "Antwort D", "Kapitel"}
	mcHeader2023 = mcHeader2024[:11]
	tfHeader2024 = []any{"Nr", "Titel", "Fragetext", "Punkte wahr", "Punkte falsch", "Antwort (Aussage)", "Kapitel"}
)

// buildWorkbook writes sheets to an in-memory xlsx. A nil row stays blank
// and nil cells are left unset.
func buildWorkbook(t *testing.T, sheets ...sheetSpec) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			for c, v := range row {
				if v == nil {
					continue
				}
				axis, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellValue(s.name, axis, v))
			}
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// mcRow is a valid single-answer multiple-choice row.
func mcRow(seq int, prefix string) []any {
	return []any{
		seq,
		fmt.Sprintf("%s question %d", prefix, seq),
		fmt.Sprintf("What is the answer to %s %d?", prefix, seq),
		100, fmt.Sprintf("%s right %d", prefix, seq),
		0, fmt.Sprintf("%s wrong %d-1", prefix, seq),
		0, fmt.Sprintf("%s wrong %d-2", prefix, seq),
		0, fmt.Sprintf("%s wrong %d-3", prefix, seq),
		"Chapter 1",
	}
}

func mcRows(prefix string, n int) [][]any {
	rows := make([][]any, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, mcRow(i, prefix))
	}
	return rows
}

func tfRow(seq int, prefix string, trueWeight, falseWeight any) []any {
	return []any{
		seq,
		fmt.Sprintf("%s statement %d", prefix, seq),
		fmt.Sprintf("Decide about %s %d", prefix, seq),
		trueWeight, falseWeight,
		fmt.Sprintf("%s claim %d", prefix, seq),
		"Chapter 2",
	}
}

func withHeader(header []any, rows [][]any) [][]any {
	return append([][]any{header}, rows...)
}

func mcWorkbook(t *testing.T, rows [][]any) []byte {
	return buildWorkbook(t, sheetSpec{name: "Multiple Choice", rows: withHeader(mcHeader2024, rows)})
}

func input(data []byte) ParseInput {
	return ParseInput{CourseID: 1, AuthorID: 10, QuizID: 100, Filename: "quiz.xlsx", Data: data}
}

func assertConservation(t *testing.T, out ParseOutcome) {
	t.Helper()
	accepted := 0
	for _, s := range out.Sheets {
		require.Equalf(t, s.DataRows, s.Accepted+s.Rejected, "sheet %s loses rows", s.Name)
		accepted += s.Accepted
	}
	require.Equal(t, accepted, len(out.Records))
	for _, rec := range out.Records {
		require.Nil(t, recordScoreRejection(rec), "accepted record %d violates score rules", rec.Row)
	}
}

func recordScoreRejection(rec QuestionRecord) *rejection {
	if rec.Kind == KindTrueFalse {
		return checkTrueFalseWeights(rec.TrueWeight, rec.FalseWeight)
	}
	var w [4]float64
	for i, a := range rec.Answers {
		w[i] = a.Weight
	}
	return checkMultipleChoiceWeights(w)
}

func errorsOf(out ParseOutcome, cat Category) []ValidationError {
	var res []ValidationError
	for _, e := range out.Errors {
		if e.Category == cat {
			res = append(res, e)
		}
	}
	return res
}
