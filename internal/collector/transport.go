package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const renderMaxResponseBytes = 8 << 20 // 8MB，渲染后的整页 HTML

// CollyTransport 使用 colly 取回原始文档，每次调用新建一个 collector
type CollyTransport struct {
	UserAgent string
	Timeout   time.Duration
}

func NewCollyTransport(userAgent string, timeout time.Duration) *CollyTransport {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &CollyTransport{UserAgent: userAgent, Timeout: timeout}
}

func (t *CollyTransport) FetchDocument(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(t.UserAgent),
	)

	// 请求超时取配置值与 ctx 剩余时间中较小的一个
	timeout := t.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remain := time.Until(deadline); timeout <= 0 || remain < timeout {
			timeout = remain
		}
	}
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})

	// colly 不接收 ctx，放到 goroutine 里执行，ctx 结束时直接返回；
	// 残留请求由 SetRequestTimeout 兜底结束
	done := make(chan error, 1)
	go func() {
		done <- c.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return body, nil
	}
}

// RenderTransport 调用 cmd/browser-scraper 的 /render 接口，取回 JS 渲染后的 HTML
type RenderTransport struct {
	Endpoint string
	Client   *http.Client
}

func NewRenderTransport(endpoint string, timeout time.Duration) *RenderTransport {
	return &RenderTransport{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Client:   &http.Client{Timeout: timeout},
	}
}

type renderRequest struct {
	URL string `json:"url"`
}

type renderResponse struct {
	OK    bool   `json:"ok"`
	HTML  string `json:"html,omitempty"`
	Error string `json:"error,omitempty"`
}

func (t *RenderTransport) FetchDocument(ctx context.Context, rawURL string) ([]byte, error) {
	payload, err := json.Marshal(renderRequest{URL: rawURL})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint+"/render", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("render: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render: unexpected status %d", resp.StatusCode)
	}

	var out renderResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, renderMaxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("render: decode response: %w", err)
	}
	if !out.OK {
		return nil, fmt.Errorf("render: %s", out.Error)
	}
	return []byte(out.HTML), nil
}
