package content

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Strategy 一种正文提取方式，返回文本与使用的选择器，没有结果时返回空串
type Strategy interface {
	Extract(doc *goquery.Document) (text, selector string)
}

// SelectorStrategy 依次尝试选择器，取最长的文本
type SelectorStrategy []string

func (ss SelectorStrategy) Extract(doc *goquery.Document) (string, string) {
	best, bestSel := "", ""
	for _, sel := range ss {
		node := doc.Find(sel)
		if node.Length() == 0 {
			continue
		}
		text := collapse(node.Text())
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
			best, bestSel = text, sel
		}
	}
	return best, bestSel
}

// BodyStrategy 整个 body 的文本
type BodyStrategy struct{}

func (BodyStrategy) Extract(doc *goquery.Document) (string, string) {
	body := doc.Find("body")
	if body.Length() == 0 {
		return "", ""
	}
	// script/style 不属于正文
	body.Find("script, style, noscript").Remove()
	return collapse(body.Text()), "body"
}

// ParagraphStrategy 拼接所有 <p> 的文本
type ParagraphStrategy struct{}

func (ParagraphStrategy) Extract(doc *goquery.Document) (string, string) {
	var parts []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return "", ""
	}
	return collapse(strings.Join(parts, " ")), "paragraphs"
}

// 新闻站点常见的正文容器
var siteSelectors = SelectorStrategy{
	".article-body__content",
	`[data-component="text-block"]`,
	".article-body",
	".article__body",
	".content__body",
	".article-content",
	".post-content",
	".entry-content",
}

var genericSelectors = SelectorStrategy{
	"article",
	`[role="article"]`,
	"#content",
	".content",
	".news-content",
	"#article",
	".article",
	".bbt-html",
	".bbt-content",
	".rich_media_content",
	"#js_content",
}

// DefaultStrategies 站点容器 → 通用容器 → 段落 → body
func DefaultStrategies() []Strategy {
	return []Strategy{siteSelectors, genericSelectors, ParagraphStrategy{}, BodyStrategy{}}
}
