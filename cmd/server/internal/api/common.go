package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/factlens/cmd/server/internal/domain/jobs"
	"github.com/houzhh15/factlens/cmd/server/internal/middleware"
	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
)

// JobService 是处理函数依赖的任务操作，由 *orchestrator.Orchestrator 实现
type JobService interface {
	Analyze(ctx context.Context, req orchestrator.AnalyzeRequest) (*orchestrator.AnalyzeResult, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	History(ctx context.Context, limit int) ([]models.HistoryItem, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int, error)
}

// errorResponse 返回错误响应
func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": message,
	})
}

// notFoundResponse 返回 404 响应
func notFoundResponse(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": resource + " not found",
	})
}

// badRequestResponse 返回 400 响应
func badRequestResponse(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
	})
}

// internalErrorResponse 返回 500 响应
func internalErrorResponse(c *gin.Context, err error) {
	if rid := middleware.RequestID(c); rid != "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "internal server error",
			"request_id": rid,
		})
	} else {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
	_ = c.Error(err)
}

// respondError 将领域错误映射为 HTTP 状态码
func respondError(c *gin.Context, err error) {
	var oe *errs.OrchError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		notFoundResponse(c, "job")
	case errors.Is(err, jobs.ErrJobRunning):
		errorResponse(c, http.StatusConflict, "job is still running")
	case errors.Is(err, orchestrator.ErrUnsupportedLanguage):
		badRequestResponse(c, err.Error())
	case errors.Is(err, orchestrator.ErrShuttingDown):
		errorResponse(c, http.StatusServiceUnavailable, "server is shutting down")
	case errors.As(err, &oe) && (oe.Code == errs.UNSUPPORTED_URL || oe.Code == errs.VALIDATION_FAILED):
		badRequestResponse(c, oe.Message)
	default:
		internalErrorResponse(c, err)
	}
}
