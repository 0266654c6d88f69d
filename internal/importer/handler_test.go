package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockImportService struct {
	parseFn      func(ctx context.Context, in ParseInput) ParseOutcome
	parseBatchFn func(ctx context.Context, inputs []ParseInput, workers int) ([]ParseOutcome, error)
}

func (m *mockImportService) Parse(ctx context.Context, in ParseInput) ParseOutcome {
	if m.parseFn == nil {
		return ParseOutcome{}
	}
	return m.parseFn(ctx, in)
}

func (m *mockImportService) ParseBatch(ctx context.Context, inputs []ParseInput, workers int) ([]ParseOutcome, error) {
	if m.parseBatchFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.parseBatchFn(ctx, inputs, workers)
}

type recordedImport struct {
	accepted, rejected int
	fatal              bool
	categories         map[string]int
}

type fakeRecorder struct {
	calls []recordedImport
}

func (f *fakeRecorder) RecordImport(accepted, rejected int, fatal bool, categories map[string]int) {
	f.calls = append(f.calls, recordedImport{accepted: accepted, rejected: rejected, fatal: fatal, categories: categories})
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestImportOK(t *testing.T) {
	rec := &fakeRecorder{}
	h := newHandler(&mockImportService{
		parseFn: func(ctx context.Context, in ParseInput) ParseOutcome {
			if in.CourseID != 5 || in.AuthorID != 11 || in.QuizID != 77 {
				t.Fatalf("unexpected identity: %+v", in)
			}
			if in.Filename != "quiz.xlsx" || string(in.Data) != "workbook" {
				t.Fatalf("unexpected upload %q/%q", in.Filename, in.Data)
			}
			return ParseOutcome{
				CourseID: in.CourseID,
				Records:  []QuestionRecord{{Title: "a"}},
				Errors:   []ValidationError{{Category: CatScoreRule, Description: MsgTwoOfFourWrong}},
				Sheets:   []SheetSummary{{DataRows: 2, Accepted: 1, Rejected: 1}},
			}
		},
	}, HandlerConfig{Recorder: rec})

	body, ct := multipartBody(t, map[string]string{"author_id": "11", "quiz_id": "77"}, "quiz.xlsx", []byte("workbook"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/courses/5/imports", body)
	req.Header.Set("Content-Type", ct)
	req = withParam(req, "courseID", "5")
	w := httptest.NewRecorder()

	h.Import(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decodeMap(t, w)
	data, ok := res["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data: %v", res)
	}
	if id, _ := data["import_id"].(string); id == "" {
		t.Fatalf("expected import id")
	}
	summary := data["summary"].(map[string]any)
	if summary["accepted"].(float64) != 1 || summary["rejected"].(float64) != 1 {
		t.Fatalf("unexpected summary: %v", summary)
	}
	if len(rec.calls) != 1 || rec.calls[0].categories[string(CatScoreRule)] != 1 {
		t.Fatalf("unexpected recorder calls: %+v", rec.calls)
	}
}

func TestImportValidation(t *testing.T) {
	tests := []struct {
		name     string
		courseID string
		fields   map[string]string
		filename string
		want     int
	}{
		{name: "bad course", courseID: "x", fields: map[string]string{"author_id": "1", "quiz_id": "1"}, filename: "a.xlsx", want: http.StatusBadRequest},
		{name: "missing author", courseID: "1", fields: map[string]string{"quiz_id": "1"}, filename: "a.xlsx", want: http.StatusBadRequest},
		{name: "bad quiz", courseID: "1", fields: map[string]string{"author_id": "1", "quiz_id": "-3"}, filename: "a.xlsx", want: http.StatusBadRequest},
		{name: "missing file", courseID: "1", fields: map[string]string{"author_id": "1", "quiz_id": "1"}, want: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandler(&mockImportService{
				parseFn: func(ctx context.Context, in ParseInput) ParseOutcome {
					t.Fatalf("parse must not be called")
					return ParseOutcome{}
				},
			}, HandlerConfig{})
			body, ct := multipartBody(t, tc.fields, tc.filename, []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/", body)
			req.Header.Set("Content-Type", ct)
			req = withParam(req, "courseID", tc.courseID)
			w := httptest.NewRecorder()

			h.Import(w, req)

			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			res := decodeMap(t, w)
			if res["ok"] != false {
				t.Fatalf("expected ok=false: %v", res)
			}
		})
	}
}

func TestImportTooLarge(t *testing.T) {
	h := newHandler(&mockImportService{}, HandlerConfig{MaxUploadBytes: 64})
	body, ct := multipartBody(t, map[string]string{"author_id": "1", "quiz_id": "1"}, "a.xlsx", bytes.Repeat([]byte("x"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	req = withParam(req, "courseID", "1")
	w := httptest.NewRecorder()

	h.Import(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestImportArchiveEndToEnd(t *testing.T) {
	members := map[string][]byte{
		"21_a.xlsx": mcWorkbook(t, mcRows("arch", 15)),
		"22_b.xlsx": mcWorkbook(t, mcRows("arch", 15)),
	}
	archive := buildArchive(t, members, "21_a.xlsx", "22_b.xlsx")

	rec := &fakeRecorder{}
	h := NewHandler(NewEngine(NewMemoryCorpus()), HandlerConfig{Workers: 2, Recorder: rec})
	r := chi.NewRouter()
	r.Post("/courses/{courseID}/imports/archive", h.ImportArchive)

	body, ct := multipartBody(t, map[string]string{"author_id": "1", "quiz_id": "9"}, "batch.zip", archive)
	req := httptest.NewRequest(http.MethodPost, "/courses/4/imports/archive", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := decodeMap(t, w)["data"].(map[string]any)
	if data["files"].(float64) != 2 {
		t.Fatalf("expected 2 files, got %v", data["files"])
	}
	if data["accepted"].(float64) != 15 || data["rejected"].(float64) != 15 {
		t.Fatalf("expected 15 accepted and 15 duplicates, got %v/%v", data["accepted"], data["rejected"])
	}
	if len(rec.calls) != 2 {
		t.Fatalf("expected 2 recorder calls, got %d", len(rec.calls))
	}
}

func TestImportArchiveRejectsEmptyArchive(t *testing.T) {
	h := newHandler(&mockImportService{}, HandlerConfig{})
	archive := buildArchive(t, map[string][]byte{".DS_Store": []byte("x")}, ".DS_Store")
	body, ct := multipartBody(t, map[string]string{"author_id": "1", "quiz_id": "1"}, "batch.zip", archive)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	req = withParam(req, "courseID", "1")
	w := httptest.NewRecorder()

	h.ImportArchive(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
