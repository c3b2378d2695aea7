package newsletter

import (
	"fmt"
	"strings"

	"github.com/LJTian/HeadlineHub/internal/pipeline"
)

func trendPrompt(label string, cards []pipeline.Card) string {
	var titles []string
	for i, c := range cards {
		if i >= promptHeadlines {
			break
		}
		titles = append(titles, c.Title)
	}

	return fmt.Sprintf(`以下是%s领域最新头条：
%s
你是一位具有宏观视野和行业洞察力的评论员，请从这些头条中判断最核心的未来信号、主要驱动因素以及可能带来的机会或风险，提炼出：
1. 一句简体中文标题（%d字以内）
2. %d字以内的简体中文概要
3. 100字左右的详细分析，使用 Markdown

只返回 JSON：
{"title": "标题", "summary": "概要", "description": "详细说明"}`, label, strings.Join(titles, "\n"), titleRunes, summaryRunes)
}

func overallPrompt(trends []Trend) string {
	var b strings.Builder
	b.WriteString("基于以下各类别的趋势，生成简体中文整体的标题和副标题：\n\n")
	for _, t := range trends {
		fmt.Fprintf(&b, "%s类：%s\n", t.Category, t.Title)
	}
	b.WriteString(`
要求：
1. title: 一句话概括今天各类别的共同趋势，20字以内
2. subtitle: 更长的描述，40-60字

只返回 JSON：
{"title": "整体标题", "subtitle": "整体副标题"}`)
	return b.String()
}
