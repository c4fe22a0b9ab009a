// Package errs defines the error taxonomy shared by the pipeline components.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode 表示流水线错误类型代码
type ErrorCode string

const (
	// UNSUPPORTED_URL URL 格式错误或平台不受支持
	UNSUPPORTED_URL ErrorCode = "UNSUPPORTED_URL"

	// RESOURCE_UNAVAILABLE 视频私有、已删除或地区限制
	RESOURCE_UNAVAILABLE ErrorCode = "RESOURCE_UNAVAILABLE"

	// DOWNLOAD_FAILED 下载工具或网络的临时失败（可重试）
	DOWNLOAD_FAILED ErrorCode = "DOWNLOAD_FAILED"

	// CHUNKING_FAILED 音频无法解码或测量时长（不可重试）
	CHUNKING_FAILED ErrorCode = "CHUNKING_FAILED"

	// PROVIDER_ERROR 转写、事实核查或翻译服务调用失败
	PROVIDER_ERROR ErrorCode = "PROVIDER_ERROR"

	// VALIDATION_FAILED 服务返回的结构无法解析为报告
	VALIDATION_FAILED ErrorCode = "VALIDATION_FAILED"

	// INTERRUPTED 进程重启导致任务中断
	INTERRUPTED ErrorCode = "INTERRUPTED"

	// CONFIG_ERROR 运行所需配置缺失
	CONFIG_ERROR ErrorCode = "CONFIG_ERROR"
)

// OrchError 表示流水线组件抛出的错误
type OrchError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error 实现 error 接口
func (e *OrchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现错误链支持
func (e *OrchError) Unwrap() error {
	return e.Cause
}

// NewOrchError 创建新的流水线错误
func NewOrchError(code ErrorCode, message string, retryable bool, cause error) *OrchError {
	return &OrchError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewUnsupportedURLError 创建 URL 不受支持错误
func NewUnsupportedURLError(message string) *OrchError {
	return NewOrchError(UNSUPPORTED_URL, message, false, nil)
}

// NewResourceUnavailableError 创建资源不可用错误
func NewResourceUnavailableError(message string, cause error) *OrchError {
	return NewOrchError(RESOURCE_UNAVAILABLE, message, false, cause)
}

// NewDownloadError 创建可重试的下载错误
func NewDownloadError(message string, cause error) *OrchError {
	return NewOrchError(DOWNLOAD_FAILED, message, true, cause)
}

// NewChunkingError 创建音频切片错误
func NewChunkingError(message string, cause error) *OrchError {
	return NewOrchError(CHUNKING_FAILED, message, false, cause)
}

// NewProviderError 创建服务调用错误，retryable 由调用方按响应状态判定
func NewProviderError(message string, retryable bool, cause error) *OrchError {
	return NewOrchError(PROVIDER_ERROR, message, retryable, cause)
}

// NewValidationError 创建结构校验错误
func NewValidationError(message string, cause error) *OrchError {
	return NewOrchError(VALIDATION_FAILED, message, false, cause)
}

// NewInterruptedError 创建任务中断错误
func NewInterruptedError() *OrchError {
	return NewOrchError(INTERRUPTED, "job was interrupted by a restart", false, nil)
}

// NewConfigError 创建配置错误
func NewConfigError(message string) *OrchError {
	return NewOrchError(CONFIG_ERROR, message, false, nil)
}

// IsRetryable 判断错误链中是否存在可重试的 OrchError
func IsRetryable(err error) bool {
	var oe *OrchError
	if errors.As(err, &oe) {
		return oe.Retryable
	}
	return false
}

// CodeOf 返回错误链中第一个 OrchError 的代码
func CodeOf(err error) ErrorCode {
	var oe *OrchError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}

// UserMessage 返回写入任务 error 字段的可读信息
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var oe *OrchError
	if !errors.As(err, &oe) {
		return err.Error()
	}
	msg := oe.Message
	if oe.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, oe.Cause)
	}
	if oe.Code == DOWNLOAD_FAILED {
		return "Download failed: " + msg
	}
	return msg
}
