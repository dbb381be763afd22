package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TraceIDKey    = "trace_id"
	TraceIDHeader = "X-Trace-ID"

	maxTraceIDLen = 64
)

type traceIDCtxKey struct{}

// TraceID tags every bridge request with an id that the request logger,
// recovery and the event handlers all log. An overlay may pass its own id
// so one gesture can be followed across its REST and socket traffic; ids
// that are not short tokens are replaced, since they end up in logs and
// response headers verbatim.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceIDHeader)
		if !validTraceID(id) {
			id = uuid.NewString()
		}
		c.Set(TraceIDKey, id)
		c.Request = c.Request.WithContext(WithTraceID(c.Request.Context(), id))
		c.Header(TraceIDHeader, id)
		c.Next()
	}
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch b := id[i]; {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case b == '-', b == '_', b == '.', b == ':':
		default:
			return false
		}
	}
	return true
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDCtxKey{}, id)
}

// TraceIDFrom returns the id stored by WithTraceID, or "".
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceIDCtxKey{}).(string)
	return id
}

// GetTraceID returns the request's trace id, or "" when TraceID did not run.
func GetTraceID(c *gin.Context) string {
	if id := c.GetString(TraceIDKey); id != "" {
		return id
	}
	if c.Request != nil {
		return TraceIDFrom(c.Request.Context())
	}
	return ""
}
