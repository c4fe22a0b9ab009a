package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteConfig 路由注册参数
type RouteConfig struct {
	Health         HealthDeps
	PollIntervalMS int
	MaxURLLength   int
}

// RegisterRoutes 注册全部 HTTP 路由
func RegisterRoutes(r *gin.Engine, svc JobService, cfg RouteConfig) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := r.Group("/api")
	g.POST("/analyze", HandleAnalyze(svc))
	g.GET("/jobs/:id", HandleGetJob(svc))
	g.GET("/history", HandleListHistory(svc))
	g.DELETE("/history", HandleDeleteAllJobs(svc))
	g.DELETE("/history/:id", HandleDeleteJob(svc))
	g.GET("/health", HandleHealth(cfg.Health))
	g.GET("/config", HandleClientConfig(cfg.PollIntervalMS, cfg.MaxURLLength))
}
