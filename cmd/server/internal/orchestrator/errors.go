package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
)

var (
	// ErrUnsupportedLanguage 输出语言不在支持列表中
	ErrUnsupportedLanguage = errors.New("unsupported output language")

	// ErrShuttingDown 服务正在关闭，不再接受新任务
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// interruptedMessage 重启时写入未完成任务的 error 字段
var interruptedMessage = fmt.Sprintf("%s: %s", errs.INTERRUPTED, errs.NewInterruptedError().Message)

// failureMessage 生成任务失败时的用户可读信息
func failureMessage(err error, jobTimeout time.Duration) string {
	if errs.CodeOf(err) == "" {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Sprintf("job timed out after %s", jobTimeout)
		case errors.Is(err, context.Canceled):
			return "job was cancelled because the server is shutting down"
		}
	}
	msg := errs.UserMessage(err)
	if msg == "" {
		msg = "unknown error"
	}
	return msg
}
