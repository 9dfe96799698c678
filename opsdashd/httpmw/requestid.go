package httpmw

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id. A valid id sent by a proxy in front
// of opsdashd is kept so log lines on both sides can be joined.
const RequestIDHeader = "X-Opsdash-Request-Id"

type requestIDContextKey struct{}

// RequestID returns the id assigned by AttachRequestID. It panics when the
// middleware is not installed.
func RequestID(r *http.Request) uuid.UUID {
	rid, ok := RequestIDOptional(r)
	if !ok {
		panic("developer error: AttachRequestID middleware not provided")
	}
	return rid
}

func RequestIDOptional(r *http.Request) (uuid.UUID, bool) {
	rid, ok := r.Context().Value(requestIDContextKey{}).(uuid.UUID)
	return rid, ok
}

func AttachRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rid, err := uuid.Parse(r.Header.Get(RequestIDHeader))
		if err != nil || rid == uuid.Nil {
			rid = uuid.New()
		}
		rw.Header().Set(RequestIDHeader, rid.String())
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestIDContextKey{}, rid)))
	})
}
