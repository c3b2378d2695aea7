// Package content 从文章页面中提取正文，用于详情展示与摘要。
package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultMaxLen 正文最多保留的字符数
	DefaultMaxLen = 4000
	// 达到该长度即认为提取成功，不再尝试后续策略
	adequateLen = 100
	// 正文短于该长度且有 meta description 时改用 description
	metaFallbackLen = 60

	metaSelector    = "meta:description"
	browserSelector = "browser"
)

// Article 提取结果
type Article struct {
	URL             string `json:"url"`
	Title           string `json:"title"`
	MetaDescription string `json:"metaDescription"`
	Content         string `json:"content"`
	SelectorUsed    string `json:"selectorUsed"`
	OriginalLength  int    `json:"originalLength"`
	CleanedLength   int    `json:"cleanedLength"`
}

// Extractor 抓取页面并按策略链提取正文
type Extractor struct {
	fetcher collector.DocumentFetcher
	// 可为空；静态提取失败或过短时改用无头浏览器
	browser    TextRenderer
	strategies []Strategy
	maxLen     int
}

func NewExtractor(f collector.DocumentFetcher) *Extractor {
	return &Extractor{
		fetcher:    f,
		strategies: DefaultStrategies(),
		maxLen:     DefaultMaxLen,
	}
}

// WithBrowser 设置无头浏览器兜底
func (e *Extractor) WithBrowser(r TextRenderer) *Extractor {
	e.browser = r
	return e
}

// Extract 抓取 rawURL 并提取正文
func (e *Extractor) Extract(ctx context.Context, rawURL string) (Article, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Article{}, fmt.Errorf("content: invalid url %q", rawURL)
	}

	var a Article
	body, fetchErr := e.fetcher.FetchDocument(ctx, u.String())
	if fetchErr != nil {
		if e.browser == nil {
			return Article{}, &collector.FetchError{Source: u.Host, Reason: "fetch article", Err: fetchErr}
		}
		log.Printf("content: %s static fetch failed, try browser: %v", u.Host, fetchErr)
	} else if a, err = e.ExtractHTML(body); err != nil {
		return Article{}, err
	}

	if e.browser != nil && (a.SelectorUsed == metaSelector || a.CleanedLength < metaFallbackLen) {
		text, berr := e.browser.RenderText(ctx, u.String(), e.maxLen)
		switch {
		case berr != nil && fetchErr != nil:
			return Article{}, &collector.FetchError{Source: u.Host, Reason: "fetch article", Err: errors.Join(fetchErr, berr)}
		case berr != nil:
			log.Printf("content: %s browser fallback failed: %v", u.Host, berr)
		default:
			text = clamp(collapse(text), e.maxLen)
			if n := utf8.RuneCountInString(text); n > a.CleanedLength {
				a.Content, a.SelectorUsed, a.CleanedLength = text, browserSelector, n
			}
		}
	}

	a.URL = u.String()
	log.Printf("content: %s extracted %d chars via %s", u.Host, a.CleanedLength, a.SelectorUsed)
	return a, nil
}

// ExtractHTML 对已取回的页面执行策略链
func (e *Extractor) ExtractHTML(body []byte) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Article{}, fmt.Errorf("content: parse html: %w", err)
	}

	a := Article{
		Title:           pageTitle(doc),
		MetaDescription: metaDescription(doc),
		OriginalLength:  utf8.RuneCount(body),
	}

	best, selector := "", ""
	for _, s := range e.strategies {
		text, sel := s.Extract(doc)
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
			best, selector = text, sel
		}
		if utf8.RuneCountInString(best) >= adequateLen {
			break
		}
	}

	if utf8.RuneCountInString(best) < metaFallbackLen && a.MetaDescription != "" {
		best, selector = a.MetaDescription, metaSelector
	}

	a.Content = clamp(best, e.maxLen)
	a.SelectorUsed = selector
	a.CleanedLength = utf8.RuneCountInString(a.Content)
	return a, nil
}

func pageTitle(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func metaDescription(doc *goquery.Document) string {
	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if v, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// collapse 把连续空白合并为一个空格
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clamp(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
