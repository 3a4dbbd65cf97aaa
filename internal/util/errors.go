package util

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrResultNotFound     = errors.New("result not found")
	ErrAnswerKeyEmpty     = errors.New("exam has no answer key")

	// ErrConcurrencyConflict 并发冲突：该提交已有处理流程在进行中
	ErrConcurrencyConflict = errors.New("submission is already being processed")
)

// ConfigurationError 配置错误（非法的答题卡参数、没有可评分的题目等），不可重试
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// AlignmentError 定位失败：照片中找不到足够的定位标记，需要重新拍摄
type AlignmentError struct {
	Issues []string
}

func (e *AlignmentError) Error() string {
	return "alignment failed: " + strings.Join(e.Issues, "; ")
}

// TierInvocationError 单个识别层调用失败（超时、网络、响应格式错误），
// 流水线捕获后降级到下一层，不直接中断提交处理
type TierInvocationError struct {
	Tier string
	Err  error
}

func (e *TierInvocationError) Error() string {
	return fmt.Sprintf("tier %s invocation failed: %v", e.Tier, e.Err)
}

func (e *TierInvocationError) Unwrap() error {
	return e.Err
}
