package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient 可重试的错误：网络错误、5xx、429
	ErrTransient = errors.New("transient generation error")
	// ErrClientRequest 请求本身被拒绝（429 以外的 4xx），重试无意义
	ErrClientRequest = errors.New("generation request rejected")
	// ErrEmptyResponse 响应中没有任何 choice
	ErrEmptyResponse = errors.New("no choices in generation response")
)

// APIError 上游返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation api status %d: %s", e.StatusCode, e.Message)
}

// Retryable 429 与 5xx 可重试
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Is 使 errors.Is(err, ErrTransient) / errors.Is(err, ErrClientRequest) 可用
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Retryable()
	case ErrClientRequest:
		return !e.Retryable()
	}
	return false
}

// FatalGenerationError 重试耗尽后的最终错误
type FatalGenerationError struct {
	Attempts int
	Err      error
}

func (e *FatalGenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FatalGenerationError) Unwrap() error {
	return e.Err
}

// transientError 标记网络层错误为可重试
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }
func (e *transientError) Is(target error) bool {
	return target == ErrTransient
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
