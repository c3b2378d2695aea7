package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLFetcher 取回页面并按描述符里的选择器提取标题链接。
// 静态解析结果为空且配置了渲染通道时，改用无头浏览器再试一次。
type HTMLFetcher struct {
	Static DocumentFetcher
	Render DocumentFetcher // 可为 nil
	Limit  int
}

func NewHTMLFetcher(static, render DocumentFetcher, limit int) *HTMLFetcher {
	if limit <= 0 {
		limit = DefaultItemLimit
	}
	return &HTMLFetcher{Static: static, Render: render, Limit: limit}
}

func (f *HTMLFetcher) Fetch(ctx context.Context, feed FeedDescriptor) ([]RawCandidate, error) {
	hf, ok := feed.(HTMLFeed)
	if !ok {
		return nil, &FetchError{Source: feed.SourceName(), Reason: fmt.Sprintf("html fetcher got %s feed", feed.Kind())}
	}
	if strings.TrimSpace(hf.Selector) == "" {
		return nil, &ExtractionError{Source: hf.Name, Reason: "empty selector"}
	}

	rendered := hf.Browser && f.Render != nil
	first := f.Static
	if rendered {
		first = f.Render
	}

	out, err := f.fetchWith(ctx, first, hf)
	if err == nil || f.Render == nil || rendered {
		return out, err
	}

	// 仅在“解析不出内容”时回退到浏览器渲染，网络错误直接返回
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		return nil, err
	}
	log.Printf("html: %s static parse empty, retry with browser render", hf.Name)
	return f.fetchWith(ctx, f.Render, hf)
}

func (f *HTMLFetcher) fetchWith(ctx context.Context, t DocumentFetcher, hf HTMLFeed) ([]RawCandidate, error) {
	body, err := t.FetchDocument(ctx, hf.URL)
	if err != nil {
		return nil, &FetchError{Source: hf.Name, Reason: "request failed", Err: err}
	}

	out, err := ExtractLinks(body, hf.Selector, f.Limit)
	if err != nil {
		return nil, &FetchError{Source: hf.Name, Reason: "parse html", Err: err}
	}
	if len(out) == 0 {
		return nil, &ExtractionError{Source: hf.Name, Reason: fmt.Sprintf("selector %q matched no links", hf.Selector)}
	}
	log.Printf("html: %s got %d items", hf.Name, len(out))
	return out, nil
}

// ExtractLinks 取选择器命中的前 limit 个元素，链接文字作标题、href 作链接；
// 标题为空或没有 href 的元素直接跳过
func ExtractLinks(body []byte, selector string, limit int) ([]RawCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	out := make([]RawCandidate, 0, limit)
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}
		title := strings.TrimSpace(s.Text())
		href, exists := s.Attr("href")
		href = strings.TrimSpace(href)
		if title == "" || !exists || href == "" {
			return true
		}
		out = append(out, RawCandidate{Title: title, Link: href})
		return true
	})
	return out, nil
}

// Dispatcher 按描述符类型分派到对应抓取器
type Dispatcher struct {
	RSS  Fetcher
	HTML Fetcher
}

// NewDispatcher render 可为 nil，表示不启用浏览器渲染
func NewDispatcher(static, render DocumentFetcher, limit int) *Dispatcher {
	return &Dispatcher{
		RSS:  NewRSSFetcher(static, limit),
		HTML: NewHTMLFetcher(static, render, limit),
	}
}

func (d *Dispatcher) Fetch(ctx context.Context, feed FeedDescriptor) ([]RawCandidate, error) {
	switch feed.(type) {
	case RSSFeed:
		return d.RSS.Fetch(ctx, feed)
	case HTMLFeed:
		return d.HTML.Fetch(ctx, feed)
	default:
		return nil, &FetchError{Source: feed.SourceName(), Reason: fmt.Sprintf("unsupported feed type %T", feed)}
	}
}
