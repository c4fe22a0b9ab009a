package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// EnvironmentStatus 表示整体环境状态
type EnvironmentStatus struct {
	Ready    bool               `json:"ready"`
	Issues   []string           `json:"issues"`
	Warnings []string           `json:"warnings"`
	Details  EnvironmentDetails `json:"details"`
}

// EnvironmentDetails 包含各组件的详细状态
type EnvironmentDetails struct {
	YtDlp   ToolStatus  `json:"yt_dlp"`
	FFmpeg  ToolStatus  `json:"ffmpeg"`
	FFprobe ToolStatus  `json:"ffprobe"`
	OpenAI  TokenStatus `json:"openai_api_key"`
	Gemini  TokenStatus `json:"gemini_api_key"`
}

// TokenStatus 表示 API Key 配置状态
type TokenStatus struct {
	Required   bool   `json:"required"`
	Configured bool   `json:"configured"`
	Masked     string `json:"masked,omitempty"`
}

// ToolStatus 表示命令行工具状态
type ToolStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// EnvCheckConfig 环境检查所需的配置
type EnvCheckConfig struct {
	YtDlpPath   string
	FFmpegPath  string
	FFprobePath string

	OpenAIKey   string
	GeminiKey   string
	NeedsOpenAI bool
	NeedsGemini bool
}

// CheckEnvironment 检查外部工具与 API Key，结果用于启动日志和健康检查
func CheckEnvironment(ctx context.Context, cfg EnvCheckConfig) *EnvironmentStatus {
	status := &EnvironmentStatus{
		Ready:    true,
		Issues:   []string{},
		Warnings: []string{},
	}

	// 1. 检查命令行工具
	status.Details.YtDlp = checkTool(ctx, binaryOr(cfg.YtDlpPath, "yt-dlp"), "--version")
	status.Details.FFmpeg = checkTool(ctx, binaryOr(cfg.FFmpegPath, "ffmpeg"), "-version")
	status.Details.FFprobe = checkTool(ctx, binaryOr(cfg.FFprobePath, "ffprobe"), "-version")
	for name, tool := range map[string]ToolStatus{
		"yt-dlp":  status.Details.YtDlp,
		"ffmpeg":  status.Details.FFmpeg,
		"ffprobe": status.Details.FFprobe,
	} {
		if !tool.Available {
			status.Ready = false
			status.Issues = append(status.Issues, fmt.Sprintf("%s is not available: %s", name, tool.Error))
		}
	}

	// 2. 检查 API Key
	status.Details.OpenAI = tokenStatus(cfg.OpenAIKey, cfg.NeedsOpenAI)
	status.Details.Gemini = tokenStatus(cfg.GeminiKey, cfg.NeedsGemini)
	if cfg.NeedsOpenAI && !status.Details.OpenAI.Configured {
		status.Ready = false
		status.Issues = append(status.Issues, "OPENAI_API_KEY is not set (required for the selected models)")
	}
	if cfg.NeedsGemini && !status.Details.Gemini.Configured {
		status.Ready = false
		status.Issues = append(status.Issues, "GEMINI_API_KEY is not set (required for the selected models)")
	}
	if !cfg.NeedsGemini && !status.Details.Gemini.Configured {
		status.Warnings = append(status.Warnings, "GEMINI_API_KEY is not set, reports are translated with the fact-check provider")
	}
	return status
}

func tokenStatus(token string, required bool) TokenStatus {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenStatus{Required: required}
	}
	return TokenStatus{Required: required, Configured: true, Masked: maskToken(token)}
}

// maskToken 遮蔽 Token 的中间部分
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func binaryOr(path, def string) string {
	if path = strings.TrimSpace(path); path != "" {
		return path
	}
	return def
}

// checkTool 检查工具可用性并解析版本号
func checkTool(ctx context.Context, bin, versionFlag string) ToolStatus {
	path, err := exec.LookPath(bin)
	if err != nil {
		return ToolStatus{Available: false, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, path, versionFlag).CombinedOutput()
	if err != nil {
		return ToolStatus{Available: false, Path: path, Error: err.Error()}
	}
	return ToolStatus{Available: true, Path: path, Version: parseVersion(string(output))}
}

// parseVersion 从版本输出第一行提取版本号
// "ffmpeg version 6.1.1 Copyright ..." -> "6.1.1"，"2024.08.06" -> "2024.08.06"
func parseVersion(output string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(output), "\n", 2)[0])
	if line == "" {
		return "unknown"
	}
	parts := strings.Fields(line)
	for i, p := range parts {
		if p == "version" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return parts[0]
}
