package observability

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"quizimport/internal/pkg/logger"

	"github.com/go-chi/chi/v5/middleware"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type importStats struct {
	Workbooks      int64
	FatalWorkbooks int64
	AcceptedRows   int64
	RejectedRows   int64
	Ledger         map[string]int64
}

type Collector struct {
	db  *sql.DB
	log *logger.Logger

	mu           sync.RWMutex
	requestStats map[key]stat
	imports      importStats
	startedAt    time.Time
}

func NewCollector(db *sql.DB, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{
		db:           db,
		log:          log,
		requestStats: make(map[key]stat),
		imports:      importStats{Ledger: make(map[string]int64)},
		startedAt:    time.Now(),
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		c.log.Info("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"course_id", extractCourseID(r.URL.Path),
			"method", r.Method,
			"path", path,
			"status", rec.status,
			"latency_ms", latencyMS,
			"remote_ip", strings.TrimSpace(r.RemoteAddr),
		)
	})
}

// RecordImport adds one parsed workbook to the import counters.
func (c *Collector) RecordImport(accepted, rejected int, fatal bool, categories map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imports.Workbooks++
	if fatal {
		c.imports.FatalWorkbooks++
	}
	c.imports.AcceptedRows += int64(accepted)
	c.imports.RejectedRows += int64(rejected)
	for cat, n := range categories {
		c.imports.Ledger[cat] += int64(n)
	}
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	imports := c.imports
	ledger := make(map[string]int64, len(c.imports.Ledger))
	for k, v := range c.imports.Ledger {
		ledger[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# quizimport observability metrics\n")
	sb.WriteString("# TYPE quizimport_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("quizimport_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE quizimport_http_requests_total counter\n")
	sb.WriteString("# TYPE quizimport_http_request_latency_ms_sum counter\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("quizimport_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("quizimport_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
	}

	sb.WriteString("# TYPE quizimport_workbooks_total counter\n")
	sb.WriteString(fmt.Sprintf("quizimport_workbooks_total %d\n", imports.Workbooks))
	sb.WriteString("# TYPE quizimport_workbooks_fatal_total counter\n")
	sb.WriteString(fmt.Sprintf("quizimport_workbooks_fatal_total %d\n", imports.FatalWorkbooks))
	sb.WriteString("# TYPE quizimport_rows_accepted_total counter\n")
	sb.WriteString(fmt.Sprintf("quizimport_rows_accepted_total %d\n", imports.AcceptedRows))
	sb.WriteString("# TYPE quizimport_rows_rejected_total counter\n")
	sb.WriteString(fmt.Sprintf("quizimport_rows_rejected_total %d\n", imports.RejectedRows))

	cats := make([]string, 0, len(ledger))
	for cat := range ledger {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	sb.WriteString("# TYPE quizimport_ledger_entries_total counter\n")
	for _, cat := range cats {
		sb.WriteString(fmt.Sprintf("quizimport_ledger_entries_total{category=\"%s\"} %d\n", cat, ledger[cat]))
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE quizimport_db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf("quizimport_db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE quizimport_db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf("quizimport_db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE quizimport_db_wait_count counter\n")
		sb.WriteString(fmt.Sprintf("quizimport_db_wait_count %d\n", dbs.WaitCount))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func extractCourseID(path string) int64 {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "courses" {
			if id, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil {
				return id
			}
		}
	}
	return 0
}
