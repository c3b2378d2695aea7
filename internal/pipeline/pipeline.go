// Package pipeline 把源配置串成 抓取 → 归一化 → 时间过滤 → 去重 → 排序 的完整流程，
// 每个分类固定输出一列。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/processor"
	"golang.org/x/sync/errgroup"
)

// Stage 单个分类在流水线中的状态
type Stage string

const (
	StagePending     Stage = "PENDING"
	StageFetching    Stage = "FETCHING"
	StageNormalizing Stage = "NORMALIZING"
	StageFiltering   Stage = "FILTERING"
	StageDeduping    Stage = "DEDUPING"
	StageRanking     Stage = "RANKING"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

const (
	FallbackSource = "Fallback Data"
	DateLayout     = "2006-01-02"
)

// Options 流水线参数，零值字段使用默认值
type Options struct {
	RecencyWindow  time.Duration
	PerCategoryCap int
	// 单个源的抓取超时
	SourceTimeout time.Duration
	// 整轮构建的总时限，0 表示不限制
	Deadline time.Duration
	// 同时处理的分类数
	Concurrency int
	// 计算日期 key 使用的时区
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.RecencyWindow <= 0 {
		o.RecencyWindow = 24 * time.Hour
	}
	if o.PerCategoryCap <= 0 {
		o.PerCategoryCap = processor.DefaultPerCategoryCap
	}
	if o.SourceTimeout <= 0 {
		o.SourceTimeout = 10 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Card 是列中的一条展示记录
type Card struct {
	processor.NormalizedHeadline
	// 所有源都失败时生成的占位卡片
	Fallback bool `json:"fallback,omitempty"`
}

// Column 一个分类的输出
type Column struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Cards    []Card `json:"cards"`
}

// Result 对外输出的完整结构
type Result struct {
	Date    string   `json:"date"`
	Columns []Column `json:"columns"`
}

// AllSourcesFailedError 分类下所有源都抓取失败
type AllSourcesFailedError struct {
	Category string
	Errs     []error
}

func (e *AllSourcesFailedError) Error() string {
	return fmt.Sprintf("category %s: all %d sources failed: %v", e.Category, len(e.Errs), errors.Join(e.Errs...))
}

func (e *AllSourcesFailedError) Unwrap() []error {
	return e.Errs
}

type Pipeline struct {
	fetcher collector.Fetcher
	opts    Options
}

func New(fetcher collector.Fetcher, opts Options) *Pipeline {
	return &Pipeline{fetcher: fetcher, opts: opts.withDefaults()}
}

func (p *Pipeline) Options() Options {
	return p.opts
}

// DateKey 按配置时区取日期
func (p *Pipeline) DateKey(now time.Time) string {
	return now.In(p.opts.Location).Format(DateLayout)
}

// Build 构建当日结果
func (p *Pipeline) Build(ctx context.Context, reg *collector.Registry, now time.Time) Result {
	return Result{
		Date:    p.DateKey(now),
		Columns: p.BuildColumns(ctx, reg, now),
	}
}

// BuildColumns 按注册顺序为每个分类输出一列。
// 超过总时限仍未完成的分类用占位卡片代替。
func (p *Pipeline) BuildColumns(ctx context.Context, reg *collector.Registry, now time.Time) []Column {
	if p.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Deadline)
		defer cancel()
	}

	start := time.Now()
	n := len(reg.Categories)

	var mu sync.Mutex
	columns := make([]Column, n)
	finished := make([]bool, n)
	finish := func(i int, col Column) {
		mu.Lock()
		defer mu.Unlock()
		if !finished[i] {
			columns[i] = col
			finished[i] = true
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(p.opts.Concurrency)
		for i, cat := range reg.Categories {
			g.Go(func() error {
				finish(i, p.buildCategory(ctx, reg, cat, now))
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("pipeline: deadline reached after %s: %v", time.Since(start).Round(time.Millisecond), ctx.Err())
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]Column, n)
	for i, cat := range reg.Categories {
		if !finished[i] {
			log.Printf("pipeline: %s %s -> %s (not finished before deadline)", cat.ID, StagePending, StageFailed)
			columns[i] = fallbackColumn(cat, now)
			finished[i] = true
		}
		out[i] = columns[i]
	}
	log.Printf("pipeline: built %d columns in %s", n, time.Since(start).Round(time.Millisecond))
	return out
}

type sourceResult struct {
	feed  collector.FeedDescriptor
	cands []collector.RawCandidate
	err   error
}

func (p *Pipeline) buildCategory(ctx context.Context, reg *collector.Registry, cat collector.Category, now time.Time) Column {
	stage := StagePending
	advance := func(next Stage, format string, args ...any) {
		msg := ""
		if format != "" {
			msg = " " + fmt.Sprintf(format, args...)
		}
		log.Printf("pipeline: %s %s -> %s%s", cat.ID, stage, next, msg)
		stage = next
	}

	sources := reg.Active(cat)
	advance(StageFetching, "sources=%d", len(sources))
	results := p.fetchAll(ctx, sources)

	var errs []error
	ok := 0
	for _, r := range results {
		if r.err != nil {
			if collector.IsTimeout(r.err) {
				log.Printf("pipeline: %s source %s timed out after %s", cat.ID, r.feed.SourceName(), p.opts.SourceTimeout)
			} else {
				log.Printf("pipeline: %s source %s failed: %v", cat.ID, r.feed.SourceName(), r.err)
			}
			errs = append(errs, r.err)
			continue
		}
		ok++
	}
	if ok == 0 {
		err := &AllSourcesFailedError{Category: cat.ID, Errs: errs}
		advance(StageFailed, "%v", err)
		return fallbackColumn(cat, now)
	}

	// 所有源都返回后按声明顺序归一化，结果与抓取完成顺序无关
	advance(StageNormalizing, "ok=%d failed=%d", ok, len(errs))
	norm := processor.NewNormalizer(now)
	var headlines []processor.Headline
	for _, r := range results {
		if r.err != nil {
			continue
		}
		headlines = append(headlines, norm.Normalize(r.cands, cat.ID, r.feed.SourceName(), r.feed.FeedURL(), 0)...)
	}

	advance(StageFiltering, "headlines=%d", len(headlines))
	recent := processor.FilterRecent(headlines, p.opts.RecencyWindow, now)

	advance(StageDeduping, "recent=%d", len(recent))
	groups := processor.Dedupe(recent)

	advance(StageRanking, "groups=%d", len(groups))
	ranked := processor.Rank(groups, p.opts.PerCategoryCap)

	cards := make([]Card, 0, len(ranked))
	for _, h := range ranked {
		cards = append(cards, Card{NormalizedHeadline: h})
	}
	advance(StageDone, "cards=%d", len(cards))

	return Column{Category: cat.ID, Label: cat.Label, Cards: cards}
}

// fetchAll 并发抓取分类下的全部源，结果按声明顺序返回
func (p *Pipeline) fetchAll(ctx context.Context, sources []collector.FeedDescriptor) []sourceResult {
	results := make([]sourceResult, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, p.opts.SourceTimeout)
			defer cancel()
			cands, err := p.fetcher.Fetch(sctx, src)
			results[i] = sourceResult{feed: src, cands: cands, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FallbackCard 分类没有任何可用源时的占位卡片
func FallbackCard(category string, now time.Time) Card {
	return Card{
		NormalizedHeadline: processor.NormalizedHeadline{
			ID:          category + "-fallback",
			Title:       "Fallback headline for " + category,
			URL:         "https://example.com/" + category + "-fallback",
			Source:      FallbackSource,
			Category:    category,
			Timestamp:   processor.FormatTimestamp(now),
			Sources:     []string{FallbackSource},
			SourceCount: 1,
		},
		Fallback: true,
	}
}

func fallbackColumn(cat collector.Category, now time.Time) Column {
	return Column{
		Category: cat.ID,
		Label:    cat.Label,
		Cards:    []Card{FallbackCard(cat.ID, now)},
	}
}

// IsFallback 列中只有占位卡片
func (c Column) IsFallback() bool {
	return len(c.Cards) == 1 && c.Cards[0].Fallback
}
