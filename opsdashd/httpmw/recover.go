package httpmw

import (
	"net/http"
	"runtime/debug"

	"cdr.dev/slog/v3"

	"github.com/coder/opsdash/opsdashd/httpapi"
)

// Recover turns a handler panic into a 500 and a warning carrying the stack.
// Websocket handlers have already hijacked the connection, so nothing is
// written for them.
func Recover(log slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				log.Warn(r.Context(), "recovered handler panic",
					slog.F("method", r.Method),
					slog.F("path", r.URL.Path),
					slog.F("panic", p),
					slog.F("stack", string(debug.Stack())),
				)
				if sw, ok := rw.(*httpapi.StatusWriter); ok && sw.Hijacked {
					return
				}
				httpapi.InternalServerError(rw, nil)
			}()
			next.ServeHTTP(rw, r)
		})
	}
}
