package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/degradation"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/health"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/media"
)

// HealthDeps 健康检查依赖，均可为 nil
type HealthDeps struct {
	Version string
	// Environment 返回启动时的环境检查结果
	Environment   func() *orchestrator.EnvironmentStatus
	HealthChecker *health.HealthChecker
	Degradation   *degradation.DegradationController
}

// TranscriberHealth 转写服务状态
type TranscriberHealth struct {
	Implementation string               `json:"implementation,omitempty"`
	IsDegraded     bool                 `json:"is_degraded"`
	Status         health.ServiceStatus `json:"status"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status             string                          `json:"status"` // ok, degraded
	Version            string                          `json:"version"`
	SupportedPlatforms []string                        `json:"supported_platforms"`
	Environment        *orchestrator.EnvironmentStatus `json:"environment,omitempty"`
	Transcriber        *TranscriberHealth              `json:"transcriber,omitempty"`
}

// HandleHealth 返回服务健康状态
// GET /api/health
//
// 外部工具缺失或转写服务不健康时 status 为 "degraded"，HTTP 状态码仍为 200。
func HandleHealth(deps HealthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthResponse{
			Status:             "ok",
			Version:            deps.Version,
			SupportedPlatforms: media.SupportedPlatforms,
		}

		if deps.Environment != nil {
			if env := deps.Environment(); env != nil {
				resp.Environment = env
				if !env.Ready {
					resp.Status = "degraded"
				}
			}
		}

		if deps.HealthChecker != nil {
			th := &TranscriberHealth{Status: deps.HealthChecker.GetStatus()}
			if deps.Degradation != nil {
				th.Implementation = deps.Degradation.Name()
				th.IsDegraded = deps.Degradation.IsDegraded()
			}
			if !th.Status.IsHealthy && !th.IsDegraded {
				resp.Status = "degraded"
			}
			resp.Transcriber = th
		}

		c.JSON(http.StatusOK, resp)
	}
}

// ClientConfig 前端需要的运行参数
type ClientConfig struct {
	PollIntervalMS  int               `json:"poll_interval_ms"`
	MaxURLLength    int               `json:"max_url_length"`
	DefaultLanguage string            `json:"default_language"`
	Languages       []models.Language `json:"languages"`
}

// HandleClientConfig 返回前端配置
// GET /api/config
func HandleClientConfig(pollIntervalMS, maxURLLength int) gin.HandlerFunc {
	cfg := ClientConfig{
		PollIntervalMS:  pollIntervalMS,
		MaxURLLength:    maxURLLength,
		DefaultLanguage: models.DefaultLanguage,
		Languages:       models.SupportedLanguages(),
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, cfg)
	}
}
