package processor

import (
	"strings"
	"time"
	"unicode"
)

// NormalizedHeadline 同一事件（多家媒体报道）合并后的记录
type NormalizedHeadline struct {
	// 取组内第一条的 id
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Source   string `json:"source"`
	Category string `json:"category"`
	// 组内最新的时间
	Timestamp   string   `json:"timestamp"`
	Sources     []string `json:"sources"`
	SourceCount int      `json:"sourceCount"`
}

// NormalizeTitle 生成仅用于比较的标题 key：转小写，去掉标点，只保留字母、数字与汉字。
// 空白同样被去掉，"A 国 新规 出台！" 与 "A国新规出台" 得到相同的 key。
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.Is(unicode.Han, r), unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Dedupe 按归一化标题分组，每组输出一条记录。
// 代表字段取组内第一条；sources 去重后保持插入顺序；组的输出顺序为各组首条的插入顺序。
func Dedupe(headlines []Headline) []NormalizedHeadline {
	type group struct {
		members []Headline
	}

	order := make([]string, 0, len(headlines))
	groups := make(map[string]*group, len(headlines))

	for _, h := range headlines {
		key := NormalizeTitle(h.Title)
		if key == "" {
			// 全是标点的标题无法比较，按原文单独成组
			key = "\x00" + h.Title
		}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, h)
	}

	out := make([]NormalizedHeadline, 0, len(order))
	for _, key := range order {
		members := groups[key].members
		base := members[0]

		sources := make([]string, 0, len(members))
		seen := make(map[string]struct{}, len(members))
		for _, m := range members {
			if _, ok := seen[m.Source]; ok {
				continue
			}
			seen[m.Source] = struct{}{}
			sources = append(sources, m.Source)
		}

		out = append(out, NormalizedHeadline{
			ID:          base.ID,
			Title:       base.Title,
			URL:         base.URL,
			Source:      base.Source,
			Category:    base.Category,
			Timestamp:   latestTimestamp(members),
			Sources:     sources,
			SourceCount: len(sources),
		})
	}
	return out
}

// latestTimestamp 返回组内最新的时间；都无法解析时沿用第一条的原值
func latestTimestamp(members []Headline) string {
	var (
		latest time.Time
		found  bool
	)
	for _, m := range members {
		t, ok := ParseTimestamp(m.Timestamp)
		if !ok {
			continue
		}
		if !found || t.After(latest) {
			latest = t
			found = true
		}
	}
	if !found {
		return members[0].Timestamp
	}
	return FormatTimestamp(latest)
}
