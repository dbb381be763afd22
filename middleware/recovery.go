package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 carrying the trace id, so an
// overlay bug report can be matched to the daemon log. http.ErrAbortHandler
// is re-raised for net/http to handle.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}
			traceID := GetTraceID(c)
			log.Error("handler panic",
				zap.Any("panic", r),
				zap.String("trace_id", traceID),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.String("client", GetClient(c)),
				zap.Stack("stack"),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":    "internal error",
				"trace_id": traceID,
			})
		}()
		c.Next()
	}
}
