// Package summarize 封装日报使用的大模型调用，只暴露 prompt → 文本 的黑盒接口。
package summarize

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

// Summarizer 根据 prompt 生成文本
type Summarizer interface {
	Summarize(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// ErrEmptyResponse 模型返回了空内容
var ErrEmptyResponse = errors.New("summarize: empty response")

const (
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"

	DefaultDeepSeekBaseURL = "https://api.deepseek.com"
	DefaultDeepSeekModel   = "deepseek-chat"
	DefaultGeminiModel     = "gemini-1.5-flash"
)

// Config 选择与配置模型服务
type Config struct {
	Provider string

	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string

	GeminiAPIKey string
	GeminiModel  string

	Timeout time.Duration
	// 每秒请求数，<=0 表示不限速
	RPS float64
}

// New 按配置创建 Summarizer；没有可用的 key 时返回 nil，调用方走兜底文案
func New(ctx context.Context, cfg Config) (Summarizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			log.Printf("summarize: GEMINI_API_KEY not set, summaries disabled")
			return nil, nil
		}
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.RPS)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "", ProviderDeepSeek:
		if cfg.DeepSeekAPIKey == "" {
			log.Printf("summarize: DEEPSEEK_API_KEY not set, summaries disabled")
			return nil, nil
		}
		return NewOpenAICompatible(cfg.DeepSeekBaseURL, cfg.DeepSeekAPIKey, cfg.DeepSeekModel, cfg.Timeout, cfg.RPS), nil
	default:
		return nil, errors.New("summarize: unknown provider " + cfg.Provider)
	}
}
