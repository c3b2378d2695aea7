package chat

import (
	"fmt"
	"strings"
)

const persona = "你是一位友好且睿智的新闻对话伙伴，具备全球视野和跨领域知识，喜欢用轻松自然的语气交流，用开放、启发式的方式帮助用户理解新闻背后的逻辑。"

func topicBlock(t topic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "标题: %s\n", t.title)
	if t.summary != "" {
		fmt.Fprintf(&b, "摘要: %s\n", t.summary)
	}
	if t.source != "" {
		fmt.Fprintf(&b, "来源: %s\n", t.source)
	}
	if t.timestamp != "" {
		fmt.Fprintf(&b, "时间: %s\n", t.timestamp)
	}
	if len(t.headlines) > 0 {
		b.WriteString("相关新闻:\n")
		for _, h := range t.headlines {
			fmt.Fprintf(&b, "• %s（%s）\n", h.Title, h.Source)
		}
	}
	return b.String()
}

func openingPrompt(t topic) string {
	return fmt.Sprintf(`%s
以下是今日话题：
%s
请基于上述内容提出 2 个开放式、引人深思的问题，分别聚焦：
1. 背景与成因分析
2. 当前影响评估
每个问题 10-25 个字。

只返回 JSON：
{"answer": "%s", "nextQuestions": ["问题1", "问题2"]}`, persona, topicBlock(t), openingLine)
}

func answerPrompt(t topic, question string, history []Message) string {
	var conv strings.Builder
	for _, m := range history {
		who := "用户"
		if m.Role == "assistant" {
			who = "助手"
		}
		fmt.Fprintf(&conv, "%s: %s\n", who, strings.TrimSpace(m.Content))
	}
	if conv.Len() == 0 {
		conv.WriteString("（无）\n")
	}

	return fmt.Sprintf(`%s
以下是今日话题：
%s
此前的对话：
%s
用户问题:
"%s"

请用中文回答（约150字），使用 Markdown，适当加粗关键词、分段或使用列表。

只返回 JSON：
{"answer": "..."}`, persona, topicBlock(t), conv.String(), question)
}

func followUpPrompt(question, answer string) string {
	return fmt.Sprintf(`基于以下对话内容，生成 2 个开放式后续问题，每个 10-25 个字，自然延续对话：

用户问题: "%s"
回答: "%s"

只返回 JSON：
{"nextQuestions": ["问题1", "问题2"]}`, question, answer)
}
