package processor

import (
	"sort"
	"time"
)

// DefaultPerCategoryCap 每个分类最多展示的条数
const DefaultPerCategoryCap = 5

// Rank 先按 sourceCount 降序，再按时间降序，其余保持输入顺序；
// 然后每个分类各自截断到 perCategoryCap 条。
// 无法解析的时间视为最旧。
func Rank(normalized []NormalizedHeadline, perCategoryCap int) []NormalizedHeadline {
	if perCategoryCap <= 0 {
		perCategoryCap = DefaultPerCategoryCap
	}

	sorted := make([]NormalizedHeadline, len(normalized))
	copy(sorted, normalized)

	instants := make(map[string]time.Time, len(sorted))
	instant := func(ts string) time.Time {
		if t, ok := instants[ts]; ok {
			return t
		}
		t, _ := ParseTimestamp(ts)
		instants[ts] = t
		return t
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SourceCount != b.SourceCount {
			return a.SourceCount > b.SourceCount
		}
		return instant(a.Timestamp).After(instant(b.Timestamp))
	})

	counts := make(map[string]int)
	out := make([]NormalizedHeadline, 0, len(sorted))
	for _, h := range sorted {
		if counts[h.Category] >= perCategoryCap {
			continue
		}
		counts[h.Category]++
		out = append(out, h)
	}
	return out
}
