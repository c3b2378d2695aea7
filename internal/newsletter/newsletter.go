// Package newsletter 在标题流水线之上生成每日两期（AM/PM）的趋势日报。
package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/cache"
	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/pipeline"
	"github.com/LJTian/HeadlineHub/internal/summarize"
)

const (
	DefaultTitle    = "变动中的世界，视角决定答案"
	DefaultSubtitle = "今日焦点：社会变革、芯片竞赛、全球货币新秩序"

	trendMaxTokens   = 300
	overallMaxTokens = 300
	titleRunes       = 20
	summaryRunes     = 40
	// 参与摘要的标题数
	promptHeadlines = 5
	// 兜底描述中列出的标题数
	fallbackBullets = 3
)

// Trend 一个分类的趋势
type Trend struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Summary     string          `json:"summary"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	Headlines   []pipeline.Card `json:"headlines"`
	// 摘要来自兜底文案而不是模型
	Fallback bool `json:"fallback,omitempty"`
}

// Newsletter 一期日报
type Newsletter struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Subtitle string  `json:"subtitle"`
	Date     string  `json:"date"`
	Period   string  `json:"period"`
	Trends   []Trend `json:"trends"`
}

// Archive 保存生成的日报，可为空
type Archive interface {
	SaveNewsletter(ctx context.Context, id, date string, v any) error
	// GetNewsletter 不存在时返回 false
	GetNewsletter(ctx context.Context, id string, dst any) (bool, error)
}

type Options struct {
	CacheTTL time.Duration
	// 单次模型调用的超时
	SummaryTimeout time.Duration
	Location       *time.Location
}

type Builder struct {
	pipeline   *pipeline.Pipeline
	registry   *collector.Registry
	summarizer summarize.Summarizer
	cache      cache.Cache
	archive    Archive
	opts       Options

	now func() time.Time
}

// NewBuilder summarizer 为空时全部使用兜底文案
func NewBuilder(p *pipeline.Pipeline, reg *collector.Registry, s summarize.Summarizer, c cache.Cache, a Archive, opts Options) *Builder {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 12 * time.Hour
	}
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = 30 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Builder{
		pipeline:   p,
		registry:   reg,
		summarizer: s,
		cache:      c,
		archive:    a,
		opts:       opts,
		now:        time.Now,
	}
}

// Period 中午 12 点前为 AM
func Period(t time.Time, loc *time.Location) string {
	if t.In(loc).Hour() < 12 {
		return "AM"
	}
	return "PM"
}

// IssueID 形如 daily-2024-05-01-AM
func IssueID(t time.Time, loc *time.Location) string {
	return fmt.Sprintf("daily-%s-%s", t.In(loc).Format(pipeline.DateLayout), Period(t, loc))
}

var issueIDPattern = regexp.MustCompile(`^daily-(\d{4}-\d{2}-\d{2})-(AM|PM)$`)

// ParseIssueID 拆出日期与时段
func ParseIssueID(id string) (date, period string, ok bool) {
	m := issueIDPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", false
	}
	if _, err := time.Parse(pipeline.DateLayout, m[1]); err != nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func issueCacheKey(date, period string) string {
	return "newsletter:" + date + "-" + period
}

func (b *Builder) cacheKey(t time.Time) string {
	return issueCacheKey(t.In(b.opts.Location).Format(pipeline.DateLayout), Period(t, b.opts.Location))
}

// Issue 按 id 读取已生成的一期，先查缓存再查归档，不会触发抓取
func (b *Builder) Issue(ctx context.Context, id string) (Newsletter, bool, error) {
	date, period, ok := ParseIssueID(id)
	if !ok {
		return Newsletter{}, false, nil
	}

	var n Newsletter
	if b.cache != nil {
		hit, err := b.cache.Get(ctx, issueCacheKey(date, period), &n)
		if err != nil {
			log.Printf("newsletter: cache get %s error: %v", id, err)
		}
		if hit {
			return n, true, nil
		}
	}
	if b.archive == nil {
		return Newsletter{}, false, nil
	}
	found, err := b.archive.GetNewsletter(ctx, id, &n)
	if err != nil {
		return Newsletter{}, false, fmt.Errorf("newsletter: load %s: %w", id, err)
	}
	return n, found, nil
}

// Trend 返回当前一期中指定 id 的趋势
func (b *Builder) Trend(ctx context.Context, id string) (Trend, bool, error) {
	n, _, err := b.Get(ctx, false)
	if err != nil {
		return Trend{}, false, err
	}
	for _, t := range n.Trends {
		if t.ID == id {
			return t, true, nil
		}
	}
	return Trend{}, false, nil
}

// Get 返回当前时段的日报，force 时忽略缓存。第二个返回值表示是否命中缓存。
func (b *Builder) Get(ctx context.Context, force bool) (Newsletter, bool, error) {
	now := b.now()
	key := b.cacheKey(now)

	if !force && b.cache != nil {
		var cached Newsletter
		ok, err := b.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Printf("newsletter: cache get %s error: %v", key, err)
		}
		if ok {
			log.Printf("newsletter: cache hit %s", key)
			return cached, true, nil
		}
	}

	log.Printf("newsletter: building %s", key)
	n := b.Build(ctx, now)

	allFallback := true
	for _, t := range n.Trends {
		if !isFallbackTrend(t) {
			allFallback = false
			break
		}
	}
	if allFallback {
		log.Printf("newsletter: %s has no live headlines, skip cache", key)
		return n, false, nil
	}

	if b.cache != nil {
		if err := b.cache.Set(ctx, key, n, b.opts.CacheTTL); err != nil {
			log.Printf("newsletter: cache set %s error: %v", key, err)
		}
	}
	if b.archive != nil {
		if err := b.archive.SaveNewsletter(ctx, n.ID, n.Date, n); err != nil {
			log.Printf("newsletter: archive %s error: %v", n.ID, err)
		}
	}
	return n, false, nil
}

// Build 抓取并生成一期日报，不读写缓存
func (b *Builder) Build(ctx context.Context, now time.Time) Newsletter {
	start := time.Now()
	cols := b.pipeline.BuildColumns(ctx, b.registry, now)

	trends := make([]Trend, 0, len(cols))
	for _, col := range cols {
		trends = append(trends, b.trend(ctx, col))
	}

	title, subtitle := b.overall(ctx, trends)
	n := Newsletter{
		ID:       IssueID(now, b.opts.Location),
		Title:    title,
		Subtitle: subtitle,
		Date:     now.In(b.opts.Location).Format(pipeline.DateLayout),
		Period:   Period(now, b.opts.Location),
		Trends:   trends,
	}
	log.Printf("newsletter: built %s with %d trends in %s", n.ID, len(trends), time.Since(start).Round(time.Millisecond))
	return n
}

type trendSummary struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

func (b *Builder) trend(ctx context.Context, col pipeline.Column) Trend {
	label := col.Label
	if label == "" {
		label = b.registry.Label(col.Category)
	}
	t := Trend{ID: col.Category, Category: label, Headlines: col.Cards}

	if b.summarizer == nil || col.IsFallback() {
		applyFallback(&t, col)
		return t
	}

	var sum trendSummary
	err := b.ask(ctx, trendPrompt(label, col.Cards), trendMaxTokens, &sum)
	if err == nil && strings.TrimSpace(sum.Title) == "" {
		err = errors.New("missing title")
	}
	if err != nil {
		log.Printf("newsletter: summary for %s failed, use fallback: %v", col.Category, err)
		applyFallback(&t, col)
		return t
	}

	t.Title = strings.TrimSpace(sum.Title)
	t.Summary = strings.TrimSpace(sum.Summary)
	t.Description = strings.TrimSpace(sum.Description)
	return t
}

type overallSummary struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

func (b *Builder) overall(ctx context.Context, trends []Trend) (string, string) {
	if b.summarizer == nil {
		return DefaultTitle, DefaultSubtitle
	}

	var sum overallSummary
	if err := b.ask(ctx, overallPrompt(trends), overallMaxTokens, &sum); err != nil {
		log.Printf("newsletter: overall summary failed, use defaults: %v", err)
		return DefaultTitle, DefaultSubtitle
	}
	title, subtitle := strings.TrimSpace(sum.Title), strings.TrimSpace(sum.Subtitle)
	if title == "" {
		title = DefaultTitle
	}
	if subtitle == "" {
		subtitle = DefaultSubtitle
	}
	return title, subtitle
}

// ask 调用模型并把回答中的 JSON 对象解码到 dst
func (b *Builder) ask(ctx context.Context, prompt string, maxTokens int, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.SummaryTimeout)
	defer cancel()

	text, err := b.summarizer.Summarize(ctx, prompt, maxTokens)
	if err != nil {
		return err
	}
	raw, ok := ExtractJSON(text)
	if !ok {
		return fmt.Errorf("no json object in response: %q", truncateRunes(text, 80))
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode summary: %w", err)
	}
	return nil
}

// ExtractJSON 去掉代码块标记，取第一个 '{' 到最后一个 '}' 之间的内容
func ExtractJSON(s string) (string, bool) {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

func isFallbackTrend(t Trend) bool {
	return len(t.Headlines) == 1 && t.Headlines[0].Fallback
}

// applyFallback 用标题拼出摘要
func applyFallback(t *Trend, col pipeline.Column) {
	var live []pipeline.Card
	if !col.IsFallback() {
		live = col.Cards
	}

	top := t.Category + "今日焦点"
	if len(live) > 0 {
		top = live[0].Title
	}
	t.Title = truncateRunes(top, titleRunes)
	t.Summary = truncateRunes(t.Category+"领域热点："+top, summaryRunes)

	var lines []string
	for i, c := range live {
		if i >= fallbackBullets {
			break
		}
		lines = append(lines, "- "+c.Title)
	}
	if len(lines) > 0 {
		t.Description = "今日主要动态：\n" + strings.Join(lines, "\n")
	}
	t.Fallback = true
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
