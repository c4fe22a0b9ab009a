package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider/gemini"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider/openai"
)

// Config 统一配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Data      DataConfig      `yaml:"data"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Media     MediaConfig     `yaml:"media"`
	Cache     CacheConfig     `yaml:"cache"`
	API       APIConfig       `yaml:"api"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Env  string `yaml:"env"` // dev, development, staging, production, prod
	Port string `yaml:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`  // 非空时额外写入滚动日志文件
}

// DataConfig 数据目录配置
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// ProvidersConfig 模型服务凭据
type ProvidersConfig struct {
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiBaseURL string `yaml:"gemini_base_url"`
}

// PipelineConfig 任务流水线配置
type PipelineConfig struct {
	TranscribeModel         string        `yaml:"transcribe_model"`
	TranscribeFallbackModel string        `yaml:"transcribe_fallback_model"`
	ChunkSeconds            int           `yaml:"chunk_seconds"`
	MaxWorkers              int           `yaml:"max_workers"`
	FactCheckModel          string        `yaml:"factcheck_model"`
	ThinkingLevel           string        `yaml:"thinking_level"`
	TranslateModel          string        `yaml:"translate_model"`
	ProviderTimeout         time.Duration `yaml:"provider_timeout"`
	ProviderRPS             float64       `yaml:"provider_rps"`
	DownloadTimeout         time.Duration `yaml:"download_timeout"`
	DownloadAttempts        int           `yaml:"download_attempts"`
	JobTimeout              time.Duration `yaml:"job_timeout"`
}

// MediaConfig yt-dlp / ffmpeg 配置
type MediaConfig struct {
	CookiesFile string `yaml:"cookies_file"`
	YtDlpPath   string `yaml:"yt_dlp_path"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

// CacheConfig 已完成任务缓存配置
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// APIConfig 对外接口参数
type APIConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
	MaxURLLength   int `yaml:"max_url_length"`
}

// LoadConfig 从环境变量加载配置，CONFIG_FILE 指定的 YAML 文件覆盖其中出现的字段
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Env:  getEnv("ENV", "dev"),
			Port: getEnv("PORT", "8000"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		Data: DataConfig{
			Dir: getEnv("DATA_DIR", "data"),
		},
		Providers: ProvidersConfig{
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", openai.DefaultBaseURL),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiBaseURL: getEnv("GEMINI_BASE_URL", gemini.DefaultBaseURL),
		},
		Pipeline: PipelineConfig{
			TranscribeModel:         getEnv("TRANSCRIBE_MODEL", "gpt-4o-transcribe"),
			TranscribeFallbackModel: getEnv("TRANSCRIBE_FALLBACK_MODEL", ""),
			ChunkSeconds:            getEnvInt("TRANSCRIBE_CHUNK_SECONDS", 900),
			MaxWorkers:              getEnvInt("TRANSCRIBE_MAX_WORKERS", 3),
			FactCheckModel:          getEnv("FACTCHECK_MODEL", "gpt-5.2"),
			ThinkingLevel:           strings.ToLower(getEnv("FACTCHECK_THINKING_LEVEL", "")),
			TranslateModel:          getEnv("TRANSLATE_MODEL", "gemini-2.5-flash"),
			ProviderTimeout:         getEnvDuration("PROVIDER_TIMEOUT", 10*time.Minute),
			ProviderRPS:             getEnvFloat("PROVIDER_RPS", 2),
			DownloadTimeout:         getEnvDuration("DOWNLOAD_TIMEOUT", 15*time.Minute),
			DownloadAttempts:        getEnvInt("DOWNLOAD_ATTEMPTS", 3),
			JobTimeout:              getEnvDuration("JOB_TIMEOUT", 60*time.Minute),
		},
		Media: MediaConfig{
			CookiesFile: getEnv("YTDLP_COOKIES_FILE", ""),
			YtDlpPath:   getEnv("YTDLP_PATH", ""),
			FFmpegPath:  getEnv("FFMPEG_PATH", ""),
			FFprobePath: getEnv("FFPROBE_PATH", ""),
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			TTL:      getEnvDuration("CACHE_TTL", 30*time.Minute),
		},
		API: APIConfig{
			PollIntervalMS: getEnvInt("POLL_INTERVAL_MS", 2000),
			MaxURLLength:   getEnvInt("MAX_URL_LENGTH", 2048),
		},
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// overlayFile 读取 YAML 文件，文件中出现的字段覆盖当前值
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// NeedsOpenAI 所选模型中是否有 OpenAI 模型
func (c *Config) NeedsOpenAI() bool {
	p := c.Pipeline
	return !gemini.IsGeminiModel(p.TranscribeModel) || !gemini.IsGeminiModel(p.FactCheckModel) ||
		(p.TranscribeFallbackModel != "" && !gemini.IsGeminiModel(p.TranscribeFallbackModel))
}

// NeedsGemini 所选模型中是否有 Gemini 模型
func (c *Config) NeedsGemini() bool {
	p := c.Pipeline
	return gemini.IsGeminiModel(p.TranscribeModel) || gemini.IsGeminiModel(p.FactCheckModel) ||
		gemini.IsGeminiModel(p.TranscribeFallbackModel)
}

// ValidateConfig 验证配置的有效性
func ValidateConfig(cfg *Config) error {
	var errors []string

	// 1. 端口验证
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 2. 日志级别验证
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	// 3. 环境验证
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true, "prod": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production, prod)", cfg.Server.Env))
	}

	// 4. 数据目录
	if strings.TrimSpace(cfg.Data.Dir) == "" {
		errors = append(errors, "DATA_DIR is required")
	}

	// 5. 流水线参数
	p := cfg.Pipeline
	if p.ChunkSeconds < 60 {
		errors = append(errors, fmt.Sprintf("invalid TRANSCRIBE_CHUNK_SECONDS: %d (must be >= 60)", p.ChunkSeconds))
	}
	if p.MaxWorkers < 1 {
		errors = append(errors, fmt.Sprintf("invalid TRANSCRIBE_MAX_WORKERS: %d (must be >= 1)", p.MaxWorkers))
	}
	if strings.TrimSpace(p.TranscribeModel) == "" {
		errors = append(errors, "TRANSCRIBE_MODEL is required")
	}
	if strings.TrimSpace(p.FactCheckModel) == "" {
		errors = append(errors, "FACTCHECK_MODEL is required")
	}
	validThinking := map[string]bool{"": true, "minimal": true, "low": true, "medium": true, "high": true}
	if !validThinking[p.ThinkingLevel] {
		errors = append(errors, fmt.Sprintf("invalid FACTCHECK_THINKING_LEVEL: %s (must be: minimal, low, medium, high)", p.ThinkingLevel))
	}
	if p.ProviderRPS <= 0 {
		errors = append(errors, "PROVIDER_RPS must be positive")
	}
	if p.ProviderTimeout <= 0 || p.DownloadTimeout <= 0 || p.JobTimeout <= 0 {
		errors = append(errors, "PROVIDER_TIMEOUT, DOWNLOAD_TIMEOUT and JOB_TIMEOUT must be positive durations")
	}
	if p.DownloadAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid DOWNLOAD_ATTEMPTS: %d (must be >= 1)", p.DownloadAttempts))
	}

	// 6. API Key：按所选模型要求
	if cfg.NeedsOpenAI() && cfg.Providers.OpenAIAPIKey == "" {
		errors = append(errors, "OPENAI_API_KEY is required for the selected models")
	}
	if cfg.NeedsGemini() && cfg.Providers.GeminiAPIKey == "" {
		errors = append(errors, "GEMINI_API_KEY is required for the selected models")
	}

	// 7. 接口参数
	if cfg.API.MaxURLLength < 1 {
		errors = append(errors, "MAX_URL_LENGTH must be positive")
	}
	if cfg.API.PollIntervalMS < 100 {
		errors = append(errors, fmt.Sprintf("invalid POLL_INTERVAL_MS: %d (must be >= 100)", cfg.API.PollIntervalMS))
	}

	if len(errors) > 0 {
		return errs.NewConfigError("configuration validation failed:\n  - " + strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// IsDevelopment 判断是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

// GetServerAddr 获取服务器监听地址
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// PrintConfig 打印配置（脱敏）
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Data Dir: %s
  Logging:
    - Level: %s
    - File: %s
  Providers:
    - OpenAI Key: %s (%s)
    - Gemini Key: %s (%s)
  Pipeline:
    - Transcribe Model: %s (fallback: %s)
    - Chunk Seconds: %d, Max Workers: %d
    - Fact-check Model: %s (thinking: %s)
    - Translate Model: %s
    - Provider Timeout: %s, RPS: %g
    - Download Timeout: %s, Attempts: %d
    - Job Timeout: %s
  Media:
    - Cookies File: %s
  Cache:
    - Redis: %s
    - TTL: %s`,
		c.Server.Env,
		c.Server.Port,
		c.Data.Dir,
		c.Log.Level,
		orNone(c.Log.File),
		maskSecret(c.Providers.OpenAIAPIKey), c.Providers.OpenAIBaseURL,
		maskSecret(c.Providers.GeminiAPIKey), c.Providers.GeminiBaseURL,
		c.Pipeline.TranscribeModel, orNone(c.Pipeline.TranscribeFallbackModel),
		c.Pipeline.ChunkSeconds, c.Pipeline.MaxWorkers,
		c.Pipeline.FactCheckModel, orNone(c.Pipeline.ThinkingLevel),
		c.Pipeline.TranslateModel,
		c.Pipeline.ProviderTimeout, c.Pipeline.ProviderRPS,
		c.Pipeline.DownloadTimeout, c.Pipeline.DownloadAttempts,
		c.Pipeline.JobTimeout,
		orNone(c.Media.CookiesFile),
		maskSecret(c.Cache.RedisURL),
		c.Cache.TTL,
	)
}

// 辅助函数

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整数环境变量，无法解析时返回默认值
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvFloat 获取浮点数环境变量
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration 获取时长环境变量，支持 "90s"、"10m"，纯数字按秒处理
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func orNone(v string) string {
	if v == "" {
		return "<none>"
	}
	return v
}

// maskSecret 对敏感信息进行脱敏
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
