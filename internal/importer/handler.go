package importer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"quizimport/internal/app/apiresp"
	"quizimport/internal/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultMaxUploadBytes = 32 << 20

type importService interface {
	Parse(ctx context.Context, in ParseInput) ParseOutcome
	ParseBatch(ctx context.Context, inputs []ParseInput, workers int) ([]ParseOutcome, error)
}

// Recorder receives per-workbook import counters.
type Recorder interface {
	RecordImport(accepted, rejected int, fatal bool, categories map[string]int)
}

type HandlerConfig struct {
	Workers        int
	MaxUploadBytes int64
	Recorder       Recorder
	Logger         *logger.Logger
}

type Handler struct {
	svc            importService
	workers        int
	maxUploadBytes int64
	recorder       Recorder
	log            *logger.Logger
}

type importResponse struct {
	ImportID string         `json:"import_id"`
	Summary  OutcomeSummary `json:"summary"`
	Outcome  ParseOutcome   `json:"outcome"`
}

type batchItem struct {
	Summary OutcomeSummary `json:"summary"`
	Outcome ParseOutcome   `json:"outcome"`
}

type batchResponse struct {
	ImportID  string      `json:"import_id"`
	Files     int         `json:"files"`
	Accepted  int         `json:"accepted"`
	Rejected  int         `json:"rejected"`
	Cancelled bool        `json:"cancelled,omitempty"`
	Items     []batchItem `json:"items"`
}

func NewHandler(svc *Engine, cfg HandlerConfig) *Handler {
	return newHandler(svc, cfg)
}

func newHandler(svc importService, cfg HandlerConfig) *Handler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Handler{
		svc:            svc,
		workers:        cfg.Workers,
		maxUploadBytes: cfg.MaxUploadBytes,
		recorder:       cfg.Recorder,
		log:            cfg.Logger,
	}
}

// Import handles a multipart upload of one workbook in field "file" with
// form values author_id and quiz_id.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	courseID, authorID, quizID, err := h.parseIdentity(w, r)
	if err != nil {
		apiresp.WriteError(w, r, statusFor(err), err.Error())
		return
	}
	name, data, err := h.readUpload(r)
	if err != nil {
		apiresp.WriteError(w, r, statusFor(err), err.Error())
		return
	}

	out := h.svc.Parse(r.Context(), ParseInput{
		CourseID: courseID,
		AuthorID: authorID,
		QuizID:   quizID,
		Filename: name,
		Data:     data,
	})
	h.record(out)

	importID := uuid.NewString()
	h.log.Info("import finished", "import_id", importID, "course_id", courseID, "author_id", authorID, "file", name)
	apiresp.WriteOK(w, r, http.StatusOK, importResponse{
		ImportID: importID,
		Summary:  out.Summary(),
		Outcome:  out,
	})
}

// ImportArchive handles a zip of workbooks, one per author, parsed in
// parallel.
func (h *Handler) ImportArchive(w http.ResponseWriter, r *http.Request) {
	courseID, authorID, quizID, err := h.parseIdentity(w, r)
	if err != nil {
		apiresp.WriteError(w, r, statusFor(err), err.Error())
		return
	}
	_, data, err := h.readUpload(r)
	if err != nil {
		apiresp.WriteError(w, r, statusFor(err), err.Error())
		return
	}
	inputs, err := ReadArchive(data, courseID, quizID, authorID)
	if err != nil {
		apiresp.WriteError(w, r, statusFor(err), err.Error())
		return
	}
	if len(inputs) == 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "archive contains no workbooks")
		return
	}

	outcomes, err := h.svc.ParseBatch(r.Context(), inputs, h.workers)
	resp := batchResponse{
		ImportID:  uuid.NewString(),
		Files:     len(inputs),
		Cancelled: err != nil,
		Items:     make([]batchItem, 0, len(outcomes)),
	}
	for _, out := range outcomes {
		h.record(out)
		sum := out.Summary()
		resp.Accepted += sum.Accepted
		resp.Rejected += sum.Rejected
		resp.Items = append(resp.Items, batchItem{Summary: sum, Outcome: out})
	}
	if err != nil {
		h.log.Warn("archive import cancelled", "import_id", resp.ImportID, "parsed", len(outcomes), "files", len(inputs), "error", err)
	}
	apiresp.WriteOK(w, r, http.StatusOK, resp)
}

func (h *Handler) parseIdentity(w http.ResponseWriter, r *http.Request) (courseID, authorID, quizID int64, err error) {
	courseID, err = strconv.ParseInt(chi.URLParam(r, "courseID"), 10, 64)
	if err != nil || courseID <= 0 {
		return 0, 0, 0, errors.New("invalid course id")
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return 0, 0, 0, errUploadTooLarge
		}
		return 0, 0, 0, errors.New("invalid multipart form")
	}
	authorID, err = formInt(r, "author_id")
	if err != nil {
		return 0, 0, 0, err
	}
	quizID, err = formInt(r, "quiz_id")
	if err != nil {
		return 0, 0, 0, err
	}
	return courseID, authorID, quizID, nil
}

func (h *Handler) readUpload(r *http.Request) (string, []byte, error) {
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("file is required")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, errors.New("read upload failed")
	}
	return hdr.Filename, data, nil
}

func (h *Handler) record(out ParseOutcome) {
	if h.recorder == nil {
		return
	}
	sum := out.Summary()
	cats := make(map[string]int, len(sum.Categories))
	for _, c := range sum.Categories {
		cats[string(c.Category)] = c.Count
	}
	h.recorder.RecordImport(sum.Accepted, sum.Rejected, sum.Fatal, cats)
}

var errUploadTooLarge = errors.New("upload too large")

func statusFor(err error) int {
	if errors.Is(err, errUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func formInt(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
