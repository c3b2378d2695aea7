package collector

import (
	"bytes"
	"context"
	"log"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// RSSFetcher 取回 RSS/Atom 文档并解析 <item>
type RSSFetcher struct {
	Transport DocumentFetcher
	Limit     int
}

func NewRSSFetcher(t DocumentFetcher, limit int) *RSSFetcher {
	if limit <= 0 {
		limit = DefaultItemLimit
	}
	return &RSSFetcher{Transport: t, Limit: limit}
}

func (f *RSSFetcher) Fetch(ctx context.Context, feed FeedDescriptor) ([]RawCandidate, error) {
	name := feed.SourceName()

	body, err := f.Transport.FetchDocument(ctx, feed.FeedURL())
	if err != nil {
		return nil, &FetchError{Source: name, Reason: "request failed", Err: err}
	}

	// gofeed.Parser 非并发安全，每次解析新建
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Source: name, Reason: "parse feed", Err: err}
	}

	items := parsed.Items
	if len(items) > f.Limit {
		items = items[:f.Limit]
	}

	out := make([]RawCandidate, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		out = append(out, RawCandidate{
			Title:       strings.TrimSpace(it.Title),
			Link:        strings.TrimSpace(it.Link),
			PublishedAt: rawPublished(it),
		})
	}

	if len(out) == 0 {
		return nil, &ExtractionError{Source: name, Reason: "feed has no items"}
	}
	log.Printf("rss: %s got %d items", name, len(out))
	return out, nil
}

// rawPublished 优先使用 gofeed 已解析的时间，否则原样透传，由 processor 兜底为“当前时间”
func rawPublished(it *gofeed.Item) string {
	switch {
	case it.PublishedParsed != nil:
		return it.PublishedParsed.Format(time.RFC3339)
	case strings.TrimSpace(it.Published) != "":
		return strings.TrimSpace(it.Published)
	case it.UpdatedParsed != nil:
		return it.UpdatedParsed.Format(time.RFC3339)
	default:
		return strings.TrimSpace(it.Updated)
	}
}
