package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/houzhh15/factlens/pkg/logger"
)

const (
	// RequestIDHeader 请求 ID 头，客户端传入的合法值会被沿用
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	maxRequestIDLen = 64
)

// jobRoutes 路径参数 :id 为任务 ID 的路由
var jobRoutes = map[string]bool{
	"/api/jobs/:id":    true,
	"/api/history/:id": true,
}

// RequestLogger 写入结构化请求日志并注入 request_id
// 字段与 logger.LogStage 对齐：任务相关路由带 job_id，耗时为 duration_ms，
// 5xx 记为 error，4xx 记为 warn。
func RequestLogger(l *slog.Logger) gin.HandlerFunc {
	l = logger.OrDefault(l).With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(RequestIDHeader)
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		c.Set(requestIDKey, reqID)
		c.Writer.Header().Set(RequestIDHeader, reqID)

		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.String("rid", reqID),
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("client_ip", c.ClientIP()),
		}
		if jobRoutes[c.FullPath()] {
			attrs = append(attrs, slog.String("job_id", c.Param("id")))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.String()))
		}

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		l.LogAttrs(context.Background(), level, "http_request", attrs...)
	}
}

// RequestID 返回当前请求的 request_id
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.')
	}) < 0
}
