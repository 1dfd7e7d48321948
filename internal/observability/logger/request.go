package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/portal/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 128
)

type RequestLogOptions struct {
	// Classify maps the last handler error to an error type and code.
	Classify func(err error) (string, string)
	Stack    bool
}

// RequestLogger writes one http_request entry per request. Routes carrying
// an invitation token log only their template, never the raw path.
func RequestLogger(opts RequestLogOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		requestID := requestIDFor(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = obscontext.WithClient(ctx, c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(started)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if !strings.Contains(route, ":token") {
			fields = append(fields, zap.String("path", c.Request.URL.Path))
		}
		if last := c.Errors.Last(); last != nil && opts.Classify != nil {
			errType, errCode := opts.Classify(last.Err)
			fields = append(fields, zap.String("error_type", errType), zap.String("error_code", errCode))
			if opts.Stack {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(requestLevel(route, status), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if id == "" || len(id) > maxRequestIDLen {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(requestIDHeader, id)
	return id
}

func requestLevel(route string, status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
