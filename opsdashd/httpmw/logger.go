package httpmw

import (
	"net/http"
	"time"

	"cdr.dev/slog/v3"

	"github.com/coder/opsdash/opsdashd/httpapi"
)

// Logger wraps the response in an httpapi.StatusWriter and logs each request
// once it completes. Install it ahead of Recover so recovered panics are seen
// as the 500 they produce.
func Logger(log slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw, ok := rw.(*httpapi.StatusWriter)
			if !ok {
				sw = &httpapi.StatusWriter{ResponseWriter: rw}
			}

			httplog := log.With(
				slog.F("path", r.URL.Path),
				slog.F("proto", r.Proto),
				slog.F("remote_addr", r.RemoteAddr),
				slog.F("start", start),
			)
			if rid, ok := RequestIDOptional(r); ok {
				httplog = httplog.With(slog.F("request_id", rid))
			}

			next.ServeHTTP(sw, r)

			// Don't log successful health check requests.
			if r.URL.Path == "/healthz" && sw.Status == http.StatusOK {
				return
			}

			end := time.Now()
			httplog = httplog.With(
				slog.F("took", end.Sub(start)),
				slog.F("status_code", sw.Status),
				slog.F("latency_ms", float64(end.Sub(start)/time.Millisecond)),
			)

			// We should not log at level ERROR for 5xx status codes. It
			// causes slogtest to fail instantly.
			logLevelFn := httplog.Debug
			if sw.Status >= http.StatusInternalServerError {
				httplog = httplog.With(slog.F("response_body", string(sw.ResponseBody())))
				logLevelFn = httplog.Warn
			}
			logLevelFn(r.Context(), r.Method)
		})
	}
}
