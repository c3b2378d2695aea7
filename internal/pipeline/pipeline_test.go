package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/HeadlineHub/internal/cache"
	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/processor"
)

var runAt = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// fakeFetcher 按源名返回固定结果
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string][]collector.RawCandidate
	errs    map[string]error
	delay   map[string]time.Duration
	calls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, feed collector.FeedDescriptor) ([]collector.RawCandidate, error) {
	name := feed.SourceName()
	f.mu.Lock()
	f.calls = append(f.calls, name)
	d := f.delay[name]
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, &collector.FetchError{Source: name, Reason: "timeout", Err: ctx.Err()}
		}
	}
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return f.results[name], nil
}

func rss(name string) collector.FeedDescriptor {
	return collector.RSSFeed{Name: name, URL: "https://" + strings.ToLower(name) + ".example.com/rss"}
}

func cand(title, link string) collector.RawCandidate {
	return collector.RawCandidate{Title: title, Link: link, PublishedAt: runAt.Format(time.RFC1123Z)}
}

func TestAllSourcesFailedYieldsFallbackCard(t *testing.T) {
	reg := &collector.Registry{
		Mode: collector.AggregateAll,
		Categories: []collector.Category{
			{ID: "society", Label: "社会", Sources: []collector.FeedDescriptor{rss("A"), rss("B")}},
			{ID: "tech", Label: "科技", Sources: []collector.FeedDescriptor{rss("C")}},
		},
	}
	f := &fakeFetcher{
		errs: map[string]error{
			"A": &collector.FetchError{Source: "A", Reason: "request failed", Err: errors.New("refused")},
			"B": &collector.ExtractionError{Source: "B", Reason: "no items"},
		},
		results: map[string][]collector.RawCandidate{
			"C": {cand("芯片新品发布", "https://c.example.com/1")},
		},
	}

	cols := New(f, Options{}).BuildColumns(context.Background(), reg, runAt)
	if len(cols) != 2 {
		t.Fatalf("expected one column per category, got %d", len(cols))
	}
	society := cols[0]
	if society.Category != "society" || len(society.Cards) != 1 {
		t.Fatalf("unexpected society column: %+v", society)
	}
	if !strings.HasSuffix(society.Cards[0].ID, "-fallback") || !society.Cards[0].Fallback {
		t.Fatalf("expected fallback card, got %+v", society.Cards[0])
	}
	if society.Cards[0].Source != FallbackSource {
		t.Fatalf("fallback card source = %q", society.Cards[0].Source)
	}
	if cols[1].IsFallback() || len(cols[1].Cards) != 1 {
		t.Fatalf("tech column should be built normally: %+v", cols[1])
	}
}

func TestCategoryWithoutSourcesFallsBack(t *testing.T) {
	reg := &collector.Registry{Mode: collector.AggregateAll, Categories: []collector.Category{{ID: "economy"}}}
	cols := New(&fakeFetcher{}, Options{}).BuildColumns(context.Background(), reg, runAt)
	if len(cols) != 1 || cols[0].Cards[0].ID != "economy-fallback" {
		t.Fatalf("unexpected columns: %+v", cols)
	}
}

func TestCrossSourceDedupAndRank(t *testing.T) {
	reg := &collector.Registry{
		Mode: collector.AggregateAll,
		Categories: []collector.Category{
			{ID: "society", Sources: []collector.FeedDescriptor{rss("X"), rss("Y"), rss("Z")}},
		},
	}
	f := &fakeFetcher{
		results: map[string][]collector.RawCandidate{
			"X": {cand("A国新规出台", "https://x.example.com/1")},
			"Y": {cand("A 国 新规 出台！", "https://y.example.com/1")},
			"Z": {cand("B市楼市回暖", "https://z.example.com/1")},
		},
		// 先声明的源最后返回，结果仍按声明顺序合并
		delay: map[string]time.Duration{"X": 30 * time.Millisecond},
	}

	cols := New(f, Options{}).BuildColumns(context.Background(), reg, runAt)
	cards := cols[0].Cards
	if len(cards) != 2 {
		t.Fatalf("expected 2 cards, got %d: %+v", len(cards), cards)
	}
	if cards[0].Title != "A国新规出台" || cards[0].SourceCount != 2 {
		t.Fatalf("unexpected first card: %+v", cards[0])
	}
	if strings.Join(cards[0].Sources, ",") != "X,Y" || cards[0].ID != "society-X-0" {
		t.Fatalf("merged card should keep declaration order: %+v", cards[0])
	}
	if cards[1].Title != "B市楼市回暖" || cards[1].SourceCount != 1 {
		t.Fatalf("unexpected second card: %+v", cards[1])
	}
}

func TestFirstModeUsesOnlyFirstSource(t *testing.T) {
	reg := &collector.Registry{
		Mode: collector.AggregateFirst,
		Categories: []collector.Category{
			{ID: "tech", Sources: []collector.FeedDescriptor{rss("P"), rss("Q")}},
		},
	}
	f := &fakeFetcher{results: map[string][]collector.RawCandidate{
		"P": {cand("p1", "https://p.example.com/1")},
		"Q": {cand("q1", "https://q.example.com/1")},
	}}

	cols := New(f, Options{}).BuildColumns(context.Background(), reg, runAt)
	if len(f.calls) != 1 || f.calls[0] != "P" {
		t.Fatalf("first mode should fetch only P, calls=%v", f.calls)
	}
	if len(cols[0].Cards) != 1 || cols[0].Cards[0].Source != "P" {
		t.Fatalf("unexpected cards: %+v", cols[0].Cards)
	}
}

func TestCapAndRecencyApplied(t *testing.T) {
	var items []collector.RawCandidate
	for i := 0; i < 8; i++ {
		items = append(items, cand(fmt.Sprintf("新闻%d", i), fmt.Sprintf("https://x.example.com/%d", i)))
	}
	items = append(items, collector.RawCandidate{
		Title: "旧闻", Link: "https://x.example.com/old",
		PublishedAt: runAt.Add(-48 * time.Hour).Format(time.RFC1123Z),
	})

	reg := &collector.Registry{
		Mode:       collector.AggregateAll,
		Categories: []collector.Category{{ID: "tech", Sources: []collector.FeedDescriptor{rss("X")}}},
	}
	f := &fakeFetcher{results: map[string][]collector.RawCandidate{"X": items}}

	cols := New(f, Options{PerCategoryCap: 5}).BuildColumns(context.Background(), reg, runAt)
	if len(cols[0].Cards) != 5 {
		t.Fatalf("expected exactly 5 cards, got %d", len(cols[0].Cards))
	}
	for _, c := range cols[0].Cards {
		if c.Title == "旧闻" {
			t.Fatalf("old headline should be filtered")
		}
	}
}

func TestSourceTimeoutIsIsolated(t *testing.T) {
	reg := &collector.Registry{
		Mode:       collector.AggregateAll,
		Categories: []collector.Category{{ID: "tech", Sources: []collector.FeedDescriptor{rss("Slow"), rss("Fast")}}},
	}
	f := &fakeFetcher{
		results: map[string][]collector.RawCandidate{
			"Slow": {cand("slow", "https://slow.example.com/1")},
			"Fast": {cand("fast", "https://fast.example.com/1")},
		},
		delay: map[string]time.Duration{"Slow": time.Second},
	}

	cols := New(f, Options{SourceTimeout: 50 * time.Millisecond}).BuildColumns(context.Background(), reg, runAt)
	if len(cols[0].Cards) != 1 || cols[0].Cards[0].Source != "Fast" {
		t.Fatalf("slow source should be skipped: %+v", cols[0].Cards)
	}
}

// blockingFetcher 忽略 ctx，模拟卡死的源
type blockingFetcher struct{ release chan struct{} }

func (b *blockingFetcher) Fetch(context.Context, collector.FeedDescriptor) ([]collector.RawCandidate, error) {
	<-b.release
	return nil, errors.New("released")
}

func TestDeadlineFallsBackUnfinishedCategories(t *testing.T) {
	b := &blockingFetcher{release: make(chan struct{})}
	defer close(b.release)

	reg := &collector.Registry{
		Mode:       collector.AggregateAll,
		Categories: []collector.Category{{ID: "society", Sources: []collector.FeedDescriptor{rss("A")}}},
	}
	start := time.Now()
	cols := New(b, Options{Deadline: 50 * time.Millisecond}).BuildColumns(context.Background(), reg, runAt)
	if time.Since(start) > time.Second {
		t.Fatalf("BuildColumns should return at the deadline")
	}
	if len(cols) != 1 || !cols[0].IsFallback() {
		t.Fatalf("unfinished category should fall back: %+v", cols)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	reg := &collector.Registry{
		Mode: collector.AggregateAll,
		Categories: []collector.Category{
			{ID: "a", Sources: []collector.FeedDescriptor{rss("X"), rss("Y")}},
			{ID: "b", Sources: []collector.FeedDescriptor{rss("Z")}},
		},
	}
	results := map[string][]collector.RawCandidate{
		"X": {cand("one", "https://x.example.com/1"), cand("two", "https://x.example.com/2")},
		"Y": {cand("Two!", "https://y.example.com/2"), cand("three", "https://y.example.com/3")},
		"Z": {cand("four", "https://z.example.com/4")},
	}

	first := New(&fakeFetcher{results: results, delay: map[string]time.Duration{"X": 20 * time.Millisecond}}, Options{}).
		Build(context.Background(), reg, runAt)
	second := New(&fakeFetcher{results: results, delay: map[string]time.Duration{"Y": 20 * time.Millisecond}}, Options{}).
		Build(context.Background(), reg, runAt)

	if first.Date != "2024-05-01" && first.Date != "2024-04-30" {
		t.Fatalf("unexpected date %q", first.Date)
	}
	for i := range first.Columns {
		a, b := first.Columns[i].Cards, second.Columns[i].Cards
		if len(a) != len(b) {
			t.Fatalf("column %d length differs", i)
		}
		for j := range a {
			if a[j].ID != b[j].ID {
				t.Fatalf("column %d card %d differs: %s vs %s", i, j, a[j].ID, b[j].ID)
			}
		}
	}
	if first.Columns[0].Cards[0].Title != "two" {
		t.Fatalf("multi-source story should rank first, got %q", first.Columns[0].Cards[0].Title)
	}
}

type recorder struct{ saved []Result }

func (r *recorder) SaveResult(_ context.Context, res Result) error {
	r.saved = append(r.saved, res)
	return nil
}

func TestServiceCachesByDate(t *testing.T) {
	reg := &collector.Registry{
		Mode:       collector.AggregateAll,
		Categories: []collector.Category{{ID: "tech", Sources: []collector.FeedDescriptor{rss("X")}}},
	}
	f := &fakeFetcher{results: map[string][]collector.RawCandidate{"X": {cand("t", "https://x.example.com/1")}}}
	rec := &recorder{}
	c := cache.NewMemory()

	svc := NewService(New(f, Options{Location: time.UTC}), reg, c, time.Hour, rec)
	svc.now = func() time.Time { return runAt }

	r1, cached, err := svc.Headlines(context.Background(), false)
	if err != nil || cached {
		t.Fatalf("first call should build, cached=%v err=%v", cached, err)
	}
	if r1.Date != "2024-05-01" {
		t.Fatalf("date = %q", r1.Date)
	}
	if _, cached, _ := svc.Headlines(context.Background(), false); !cached {
		t.Fatalf("second call should hit cache")
	}
	if len(f.calls) != 1 {
		t.Fatalf("cache hit should not fetch again, calls=%d", len(f.calls))
	}

	if _, cached, _ := svc.Headlines(context.Background(), true); cached {
		t.Fatalf("force should bypass cache")
	}
	if len(f.calls) != 2 || len(rec.saved) != 2 {
		t.Fatalf("force should rebuild and record, calls=%d saved=%d", len(f.calls), len(rec.saved))
	}

	var stored Result
	if ok, _ := c.Get(context.Background(), "headlines:2024-05-01", &stored); !ok || len(stored.Columns) != 1 {
		t.Fatalf("result not cached under date key: %+v", stored)
	}
}

func TestServiceSkipsCacheWhenEverythingFellBack(t *testing.T) {
	reg := &collector.Registry{
		Mode:       collector.AggregateAll,
		Categories: []collector.Category{{ID: "tech", Sources: []collector.FeedDescriptor{rss("X")}}},
	}
	f := &fakeFetcher{errs: map[string]error{"X": errors.New("down")}}
	svc := NewService(New(f, Options{}), reg, cache.NewMemory(), time.Hour, nil)

	r, _, _ := svc.Headlines(context.Background(), false)
	if !r.Columns[0].IsFallback() {
		t.Fatalf("expected fallback column")
	}
	if _, cached, _ := svc.Headlines(context.Background(), false); cached {
		t.Fatalf("fallback-only result should not be cached")
	}
}

func TestFallbackCardShape(t *testing.T) {
	c := FallbackCard("tech", runAt)
	if c.ID != "tech-fallback" || c.URL != "https://example.com/tech-fallback" || c.Timestamp != processor.FormatTimestamp(runAt) {
		t.Fatalf("unexpected fallback card: %+v", c)
	}
}
