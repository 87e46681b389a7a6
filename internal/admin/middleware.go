package admin

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/m3rciful/channelgate/core/logger"
)

const requestIDHeader = "X-Request-ID"

// requestLogger tags every request with an id and logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		ctx := logger.WithRID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := "ok"
		if c.Writer.Status() >= 500 {
			status = "fail"
		}
		logger.Info(ctx, component, "request",
			slog.String("status", status),
			slog.String("request_id", id),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("route", c.FullPath()),
			slog.Int("http_status", c.Writer.Status()),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}
