package httpapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/google/uuid"

	"mindhaven.org/internal/apperr"
	"mindhaven.org/internal/audit"
)

const requestIDHeader = "X-Request-Id"

// RequestID tags every request with an id, honoring one supplied by a
// trusted proxy, and echoes it back on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(audit.WithRequestID(r.Context(), id)))
	})
}

// SecurityHeaders sets conservative browser protections on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes caps request body size so a client cannot exhaust memory.
func MaxBodyBytes(next http.Handler, limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog writes one entry per request on the access channel, with a
// slow-operation warning when latency crosses the configured threshold.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		var before runtime.MemStats
		runtime.ReadMemStats(&before)
		start := time.Now()

		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		if a.log == nil {
			return
		}
		a.log.Access(r.Context(), "http_request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.status,
			"duration_ms": elapsed.Milliseconds(),
			"remote":      clientAddr(r),
			"user_agent":  r.UserAgent(),
		})
		if elapsed > a.slowThreshold {
			var after runtime.MemStats
			runtime.ReadMemStats(&after)
			a.log.Event(r.Context(), "slow_operation", map[string]any{
				"method":           r.Method,
				"path":             r.URL.Path,
				"duration_ms":      elapsed.Milliseconds(),
				"threshold_ms":     a.slowThreshold.Milliseconds(),
				"heap_alloc_delta": int64(after.HeapAlloc) - int64(before.HeapAlloc),
			})
		}
	})
}

// recoverPanics converts handler panics into the standard error response
// instead of tearing down the connection.
func (a *API) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				a.respondError(w, r, apperr.FromPanic(v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}
