package app

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"quizimport/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type rateBucket struct {
	Count      int
	WindowEnds time.Time
}

// UploadRateLimiter caps import uploads per client and course within a
// fixed window.
type UploadRateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	store  map[string]rateBucket
}

func NewUploadRateLimiter(max int, window time.Duration) *UploadRateLimiter {
	if max <= 0 {
		max = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &UploadRateLimiter{
		max:    max,
		window: window,
		store:  make(map[string]rateBucket),
	}
}

func (l *UploadRateLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.store {
		if now.After(b.WindowEnds) {
			delete(l.store, k)
		}
	}
	b, ok := l.store[key]
	if !ok {
		b = rateBucket{WindowEnds: now.Add(l.window)}
	}
	if b.Count >= l.max {
		l.store[key] = b
		return false
	}
	b.Count++
	l.store[key] = b
	return true
}

func UploadRateLimitMiddleware(l *UploadRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r) + "|course:" + chi.URLParam(r, "courseID")
			if !l.Allow(key) {
				apiresp.WriteError(w, r, http.StatusTooManyRequests, "too many imports, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if i := strings.LastIndex(addr, ":"); i > 0 && !strings.HasSuffix(addr, "]") {
		return addr[:i]
	}
	return addr
}
