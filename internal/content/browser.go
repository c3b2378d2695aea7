package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TextRenderer 取回 JS 渲染后页面的正文文本
type TextRenderer interface {
	RenderText(ctx context.Context, url string, maxChars int) (string, error)
}

// BrowserClient 调用 cmd/browser-scraper 的 /extract 接口
type BrowserClient struct {
	Endpoint string
	Client   *http.Client
}

func NewBrowserClient(endpoint string, timeout time.Duration) *BrowserClient {
	return &BrowserClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Client:   &http.Client{Timeout: timeout},
	}
}

type extractRequest struct {
	URL      string `json:"url"`
	MaxChars int    `json:"maxChars"`
}

type extractResponse struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func (b *BrowserClient) RenderText(ctx context.Context, url string, maxChars int) (string, error) {
	payload, err := json.Marshal(extractRequest{URL: url, MaxChars: maxChars})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint+"/extract", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("browser: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("browser: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("browser: unexpected status %d", resp.StatusCode)
	}
	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("browser: decode response: %w", err)
	}
	if !out.OK {
		if out.Error == "" {
			out.Error = "empty content"
		}
		return "", errors.New("browser: " + out.Error)
	}
	return out.Text, nil
}
