package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal 任务结束总数计数器
	// Labels: status (completed/failed)
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_jobs_total",
			Help: "Total number of finished fact-check jobs by terminal status",
		},
		[]string{"status"},
	)

	// JobsInFlight 正在运行的任务数量
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "factlens_jobs_in_flight",
			Help: "Number of fact-check jobs currently running",
		},
	)

	// StageDuration 流水线阶段耗时直方图（秒）
	// Labels: stage (fetching_transcript/downloading/transcribing/fact_checking/translating)
	// Buckets: 1s .. 30min
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factlens_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"stage"},
	)

	// ChunksTotal 音频切片转写计数器
	// Labels: status (success/error)
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_chunks_total",
			Help: "Total number of audio chunks transcribed",
		},
		[]string{"status"},
	)

	// ProviderCallsTotal 模型服务调用计数器
	// Labels: provider (openai/gemini), operation (transcribe/factcheck/complete/health), status (success/retryable/fatal)
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_provider_calls_total",
			Help: "Total number of provider API calls",
		},
		[]string{"provider", "operation", "status"},
	)

	// CacheLookupsTotal 分析请求缓存查询计数器
	// Labels: result (hit/miss/translation/attached)
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factlens_cache_lookups_total",
			Help: "Analyze request cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordJobFinished 记录任务结束
func RecordJobFinished(status string) {
	JobsTotal.WithLabelValues(status).Inc()
}

// RecordStageDuration 记录阶段耗时（秒）
func RecordStageDuration(stage string, durationSeconds float64) {
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordChunkProcessed 记录音频切片转写完成
func RecordChunkProcessed(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ChunksTotal.WithLabelValues(status).Inc()
}

// RecordProviderCall 记录一次模型服务调用
func RecordProviderCall(provider, operation, status string) {
	ProviderCallsTotal.WithLabelValues(provider, operation, status).Inc()
}

// RecordCacheLookup 记录缓存查询结果
func RecordCacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}
