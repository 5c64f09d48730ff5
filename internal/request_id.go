package internal

import (
	"context"
	"github.com/google/uuid"
	"net/http"
	"strings"
)

const headerRequestID = "X-Request-Id"

type contextKey string

const requestIDKey contextKey = "requestID"

// WithRequestID stores id in the context; a blank id is replaced by a new uuid.
func WithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns an empty string if no request ID is present.
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// requestID tags every request with the caller's X-Request-Id or a new one,
// and echoes it in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRequestID(r.Context(), r.Header.Get(headerRequestID))
		w.Header().Set(headerRequestID, GetRequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
