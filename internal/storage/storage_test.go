package storage

import (
	"testing"
	"time"

	"github.com/LJTian/HeadlineHub/internal/pipeline"
	"github.com/LJTian/HeadlineHub/internal/processor"
)

func TestTruncateRunesDB(t *testing.T) {
	if got := truncateRunesDB("  你好世界  ", 2); got != "你好" {
		t.Fatalf("truncateRunesDB = %q", got)
	}
	if got := truncateRunesDB("abc", 10); got != "abc" {
		t.Fatalf("short string should be kept, got %q", got)
	}
	if got := truncateRunesDB("abc", 0); got != "" {
		t.Fatalf("zero limit should return empty, got %q", got)
	}
}

func TestToValidUTF8(t *testing.T) {
	if got := toValidUTF8("ok\xffok"); got != "ok\uFFFDok" {
		t.Fatalf("toValidUTF8 = %q", got)
	}
}

func TestToRecordsSkipsFallbackAndStampsDate(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	// UTC 20:00 在东八区已是第二天
	ts := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	now := time.Date(2024, 5, 2, 1, 0, 0, 0, time.UTC)

	card := pipeline.Card{NormalizedHeadline: processor.NormalizedHeadline{
		ID: "tech-X-0", Title: "芯片", URL: "https://x.example.com/1", Source: "X",
		Category: "tech", Timestamp: processor.FormatTimestamp(ts),
		Sources: []string{"X", "Y"}, SourceCount: 2,
	}}
	broken := card
	broken.URL = "https://x.example.com/2"
	broken.Timestamp = "not-a-date"

	r := pipeline.Result{
		Date: "2024-05-02",
		Columns: []pipeline.Column{
			{Category: "tech", Cards: []pipeline.Card{card, broken}},
			{Category: "society", Cards: []pipeline.Card{pipeline.FallbackCard("society", now)}},
		},
	}

	recs := toRecords(r, now, loc)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records (fallback skipped), got %d", len(recs))
	}
	if recs[0].PublishedDate != "2024-05-02" || recs[0].CardID != "tech-X-0" || recs[0].SourceCount != 2 {
		t.Fatalf("unexpected record: %+v", recs[0])
	}
	if srcs, ok := recs[0].ExtraData["sources"].([]any); !ok || len(srcs) != 2 {
		t.Fatalf("sources not kept in extra data: %#v", recs[0].ExtraData)
	}
	if !recs[1].PublishedAt.Equal(now) {
		t.Fatalf("unparseable timestamp should use now, got %v", recs[1].PublishedAt)
	}
}
