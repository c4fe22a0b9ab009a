package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator"
	"github.com/houzhh15/factlens/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HandleAnalyze 提交分析请求
// POST /api/analyze
func HandleAnalyze(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orchestrator.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequestResponse(c, "invalid request body")
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			badRequestResponse(c, "url is required")
			return
		}

		res, err := svc.Analyze(c.Request.Context(), req)
		if err != nil {
			logger.L().Warn("analyze rejected", "url", req.URL, "error", err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// HandleGetJob 返回任务当前状态，claims 按 weight 降序
// GET /api/jobs/:id
func HandleGetJob(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, job.Presentation())
	}
}

// HandleListHistory 历史任务列表，最新的在前
// GET /api/history?limit=50
func HandleListHistory(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				badRequestResponse(c, "limit must be an integer")
				return
			}
			limit = clampLimit(n)
		}

		items, err := svc.History(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	}
}

func clampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxHistoryLimit {
		return maxHistoryLimit
	}
	return n
}

// HandleDeleteJob 删除单个已结束的任务
// DELETE /api/history/:id
func HandleDeleteJob(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := svc.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		logger.L().Info("job deleted", "job_id", id)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// HandleDeleteAllJobs 清空历史，需要 all=true
// DELETE /api/history?all=true
func HandleDeleteAllJobs(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("all") != "true" {
			badRequestResponse(c, "pass all=true to delete every job")
			return
		}
		n, err := svc.DeleteAll(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		logger.L().Info("history cleared", "deleted", n)
		c.JSON(http.StatusOK, gin.H{"ok": true, "deleted": n})
	}
}
