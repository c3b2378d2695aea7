package processor

import "time"

// FilterRecent 保留 now - timestamp <= window 的条目。
// 时间无法解析的条目一律保留（宁可多展示，也不因解析缺陷隐藏内容）。
func FilterRecent(headlines []Headline, window time.Duration, now time.Time) []Headline {
	out := make([]Headline, 0, len(headlines))
	for _, h := range headlines {
		t, ok := ParseTimestamp(h.Timestamp)
		if !ok || now.Sub(t) <= window {
			out = append(out, h)
		}
	}
	return out
}
