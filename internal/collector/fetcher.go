package collector

import (
	"context"
	"errors"
	"fmt"
)

// DefaultUserAgent 模拟常见桌面浏览器，部分源会拒绝默认的客户端标识
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultItemLimit 每个源最多取前 N 条
const DefaultItemLimit = 10

// FeedKind 决定抓取/解析策略
type FeedKind string

const (
	KindRSS  FeedKind = "rss"
	KindHTML FeedKind = "html"
)

// FeedDescriptor 描述一个数据源。只有 RSSFeed 与 HTMLFeed 两种实现。
type FeedDescriptor interface {
	SourceName() string
	FeedURL() string
	Kind() FeedKind
	isFeed()
}

// RSSFeed 是标准 RSS/Atom 源
type RSSFeed struct {
	Name string
	URL  string
}

func (f RSSFeed) SourceName() string { return f.Name }
func (f RSSFeed) FeedURL() string    { return f.URL }
func (f RSSFeed) Kind() FeedKind     { return KindRSS }
func (RSSFeed) isFeed()              {}

// HTMLFeed 是需要用 CSS 选择器从页面中提取标题链接的源。
// Browser 为 true 时页面先经过无头浏览器渲染（适合 JS 渲染的站点）。
type HTMLFeed struct {
	Name     string
	URL      string
	Selector string
	Browser  bool
}

func (f HTMLFeed) SourceName() string { return f.Name }
func (f HTMLFeed) FeedURL() string    { return f.URL }
func (f HTMLFeed) Kind() FeedKind     { return KindHTML }
func (HTMLFeed) isFeed()              {}

// RawCandidate 是抓取器产出的原始候选条目，立即交给 processor 归一化
type RawCandidate struct {
	Title string
	// 可能是相对链接
	Link string
	// 源原始格式的发布时间，可能为空或无法解析
	PublishedAt string
}

// Fetcher 抽象一种抓取策略
type Fetcher interface {
	Fetch(ctx context.Context, feed FeedDescriptor) ([]RawCandidate, error)
}

// DocumentFetcher 只负责把 URL 取回为原始文本
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, url string) ([]byte, error)
}

// FetchError 表示单个源的网络 / HTTP 状态 / 超时 / 解析失败
type FetchError struct {
	Source string
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Source, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError 表示文档取回成功但解析不出任何候选条目
type ExtractionError struct {
	Source string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.Source, e.Reason)
}

// IsTimeout 判断错误链中是否包含超时
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
