package processor

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/collector"
)

// TimestampLayout ISO-8601，毫秒精度，UTC
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Headline 归一化后的标题记录
type Headline struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Source    string `json:"source"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
}

// 常见 feed 时间格式，按顺序尝试
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp 尝试按常见格式解析时间
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp 统一输出为 UTC 的 ISO-8601
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Normalizer 把任意抓取器的候选条目转换为 Headline
type Normalizer struct {
	// Now 为本轮流水线的运行时刻，时间缺失或无法解析时使用
	Now time.Time
}

func NewNormalizer(now time.Time) *Normalizer {
	return &Normalizer{Now: now}
}

// Normalize 丢弃标题或链接为空的候选，把相对链接解析为绝对链接，
// id 为 "{category}-{sourceName}-{ordinal}"，ordinal = indexOffset + 候选在本批中的位置
func (n *Normalizer) Normalize(candidates []collector.RawCandidate, category, sourceName, baseURL string, indexOffset int) []Headline {
	out := make([]Headline, 0, len(candidates))
	base, baseErr := url.Parse(baseURL)

	for i, c := range candidates {
		// 只用去空白后的副本判空，展示标题保持原样
		link := strings.TrimSpace(c.Link)
		if strings.TrimSpace(c.Title) == "" || link == "" {
			continue
		}

		abs, err := resolveLink(base, baseErr, link)
		if err != nil {
			log.Printf("normalize: %s drop %q: %v", sourceName, link, err)
			continue
		}

		ts := FormatTimestamp(n.Now)
		if t, ok := ParseTimestamp(c.PublishedAt); ok {
			ts = FormatTimestamp(t)
		}

		out = append(out, Headline{
			ID:        fmt.Sprintf("%s-%s-%d", category, sourceName, indexOffset+i),
			Title:     c.Title,
			URL:       abs,
			Source:    sourceName,
			Category:  category,
			Timestamp: ts,
		})
	}
	return out
}

// resolveLink 只保留 http/https 的绝对链接
func resolveLink(base *url.URL, baseErr error, link string) (string, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	if !ref.IsAbs() {
		if baseErr != nil {
			return "", fmt.Errorf("invalid base url: %w", baseErr)
		}
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", ref.Scheme)
	}
	if ref.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return ref.String(), nil
}
