package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"

	"github.com/CanFlyhang/NovelBot/config"
)

const maxBackoff = 30 * time.Second

// Generator 文本生成接口，编排器与事实账本依赖该接口
type Generator interface {
	Generate(ctx context.Context, messages []ChatMessage, opts Options) (string, *Meta, error)
}

// Client LLM 客户端
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	Client     *http.Client

	limiter *RateLimiter
	pool    *ants.Pool

	sleep   func(ctx context.Context, d time.Duration) error
	backoff func(attempt int) time.Duration
}

// NewClient 创建新的 LLM 客户端
func NewClient(cfg *config.Config) (*Client, error) {
	pool, err := ants.NewPool(cfg.LLM.MaxConcurrentRequests,
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		klog.Errorf("LLM 并发池初始化失败: %v", err)
		return nil, err
	}

	return &Client{
		BaseURL:    strings.TrimRight(cfg.LLM.APIURL, "/"),
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		MaxTokens:  cfg.LLM.MaxTokens,
		MaxRetries: max(cfg.LLM.MaxRetries, 1),
		Client: &http.Client{
			Timeout: time.Duration(cfg.LLM.RequestTimeoutSeconds) * time.Second,
		},
		limiter: NewRateLimiter(cfg.LLM.MaxRequestsPerMinute),
		pool:    pool,
		sleep:   sleepContext,
		backoff: exponentialBackoff,
	}, nil
}

// SetRequestsPerMinute 调整每分钟请求上限
func (c *Client) SetRequestsPerMinute(n int) {
	c.limiter.SetLimit(n)
}

// SetMaxConcurrency 调整同时在途的请求数
func (c *Client) SetMaxConcurrency(n int) {
	if n < 1 {
		return
	}
	c.pool.Tune(n)
}

// Close 释放并发池
func (c *Client) Close() {
	c.pool.Release()
}

// Generate 发送对话请求，返回规范化后的文本与元信息
// 5xx、429 与网络错误按指数退避重试，其余 4xx 直接返回 *APIError
func (c *Client) Generate(ctx context.Context, messages []ChatMessage, opts Options) (string, *Meta, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.MaxTokens
	}
	reqBody := ChatRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   maxTokens,
		Stream:      false,
		Stop:        opts.Stop,
	}
	klog.V(6).Infof("Generate 请求: model=%s, messages=%d, max_tokens=%d", c.Model, len(messages), maxTokens)

	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return "", nil, err
		}

		text, meta, err := c.attempt(ctx, reqBody)
		if err == nil {
			meta.Attempts = attempt
			return text, meta, nil
		}
		if !isRetryable(err) {
			klog.Warningf("LLM 请求被拒绝，不再重试: attempt=%d, err=%v", attempt, err)
			return "", nil, err
		}

		lastErr = err
		klog.Warningf("LLM 请求失败: attempt=%d/%d, err=%v", attempt, c.MaxRetries, err)
		if attempt == c.MaxRetries {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return "", nil, err
		}
	}

	return "", nil, &FatalGenerationError{Attempts: c.MaxRetries, Err: lastErr}
}

// attempt 在并发池中执行一次 HTTP 调用
func (c *Client) attempt(ctx context.Context, reqBody ChatRequest) (string, *Meta, error) {
	type result struct {
		text string
		meta *Meta
		err  error
	}
	done := make(chan result, 1)

	err := c.pool.Submit(func() {
		text, meta, err := c.sendRequest(ctx, reqBody)
		done <- result{text: text, meta: meta, err: err}
	})
	if err != nil {
		return "", nil, fmt.Errorf("submit generation request: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case r := <-done:
		return r.text, r.meta, r.err
	}
}

// sendRequest 发送 HTTP 请求到 LLM API
func (c *Client) sendRequest(ctx context.Context, reqBody ChatRequest) (string, *Meta, error) {
	url := c.BaseURL + "/chat/completions"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	start := time.Now()
	resp, err := c.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return "", nil, &transientError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		return "", nil, &transientError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", nil, &transientError{err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if chatResp.Error != nil {
		return "", nil, &APIError{StatusCode: resp.StatusCode, Message: chatResp.Error.Message}
	}
	if len(chatResp.Choices) == 0 {
		return "", nil, &transientError{err: ErrEmptyResponse}
	}

	requestID := chatResp.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	meta := &Meta{
		RequestID: requestID,
		LatencyMs: latencyMs,
		Usage:     chatResp.Usage,
		Raw:       json.RawMessage(body),
	}
	klog.V(6).Infof("LLM 响应: id=%s, latency_ms=%.1f", requestID, latencyMs)
	return CleanContent(chatResp.Choices[0].Message.Content), meta, nil
}

// errorMessage 尽量从错误响应体中取出 error.message
func errorMessage(body []byte) string {
	var parsed ChatResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if r := []rune(msg); len(r) > 200 {
		msg = string(r[:200])
	}
	return msg
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, maxBackoff)
}

