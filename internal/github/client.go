// Package github 封装 GitHub REST API：仓库、提交、PR、Issue、评审评论与 diff 统计。
// 所有列表接口按固定页大小分页并设置页数上限，用完整性换取可控的延迟与配额。
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/oauth2"
)

// 分页参数
const (
	PageSize       = 100
	MaxRepoPages   = 5
	MaxCommitPages = 3
	MaxPRPages     = 5
	MaxIssuePages  = 3
	MaxReviewPages = 3

	maxBodyBytes = 10 << 20
)

// ErrUnauthorized 凭据失效（401），调用方需要标记 token 无效并中止同步
var ErrUnauthorized = errors.New("github: 凭据无效或已过期")

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github: http %d: %s", e.StatusCode, e.URL)
}

// IsStatus 判断 err 是否为指定状态码的 StatusError
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Config 客户端配置
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Transport   http.RoundTripper // 为空使用 http.DefaultTransport
}

// Client GitHub API 客户端；token 按调用传入，同一客户端可服务多个用户
type Client struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	transport  http.RoundTripper
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.HTTPTimeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		transport:  cfg.Transport,
	}
}

// authedClient 以 Bearer 方式注入用户 token
func (c *Client) authedClient(token string) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &http.Client{
		Timeout:   c.timeout,
		Transport: &oauth2.Transport{Source: src, Base: c.transport},
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// get 发起带重试的 GET 并返回响应体
func (c *Client) get(ctx context.Context, token, apiURL string) ([]byte, error) {
	hc := c.authedClient(token)
	var body []byte

	err := c.retryWithBackoff(ctx, "GET "+apiURL, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return fmt.Errorf("创建请求失败: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := hc.Do(req)
		if err != nil {
			return fmt.Errorf("发送请求失败: %w", err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("读取响应失败: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiURL)
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body = b
			return nil
		default:
			return &StatusError{StatusCode: resp.StatusCode, URL: apiURL, Body: truncate(string(b), 256)}
		}
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("GitHub 请求成功", "component", "github", "url", apiURL, "bytes", len(body))
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, token, apiURL string, out any) error {
	body, err := c.get(ctx, token, apiURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// retryWithBackoff 指数退避 + 抖动，只重试限流、5xx 与网络错误
func (c *Client) retryWithBackoff(ctx context.Context, operation string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(30*c.retryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(c.retryDelay/4+time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("GitHub 请求失败，准备重试", "component", "github", "operation", operation, "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrUnauthorized) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		// 403 在 GitHub 上通常是二级限流
		return se.StatusCode == http.StatusTooManyRequests ||
			(se.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(se.Body), "rate limit")) ||
			se.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "发送请求失败")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
