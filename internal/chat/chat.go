// Package chat 围绕当期趋势或单条标题与用户对话。
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/newsletter"
	"github.com/LJTian/HeadlineHub/internal/pipeline"
	"github.com/LJTian/HeadlineHub/internal/summarize"
)

// Mode 对话的上下文类型
type Mode string

const (
	ModeTrend    Mode = "trend"
	ModeHeadline Mode = "headline"
)

var (
	ErrMissingTopic    = errors.New("chat: topicId is required")
	ErrMissingQuestion = errors.New("chat: question is required")
	ErrUnknownMode     = errors.New("chat: unknown mode")
)

const (
	initMaxTokens     = 256
	answerMaxTokens   = 800
	followUpMaxTokens = 128
	// 放进 prompt 的历史消息条数
	historyMessages = 6

	AnswerTopicMissing    = "抱歉，该主题不存在，请返回首页重新选择。"
	AnswerHeadlineMissing = "抱歉，这条新闻已过期或不存在，请返回首页重新选择。"
	AnswerUnavailable     = "抱歉，AI 服务暂时不可用，请稍后再试。"
	openingLine           = "我建议从以下几个角度深入探讨："
)

var (
	defaultOpeningQuestions = []string{"这件事的背景和成因是什么？", "目前造成了哪些影响？"}
	defaultFollowUps        = []string{"所以呢？", "还有其他角度和观点吗？"}
)

// Message 一条历史消息，role 为 user 或 assistant
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	TopicID  string    `json:"topicId"`
	Question string    `json:"question"`
	History  []Message `json:"history"`
	// Init 为 true 且问题为空时只返回开场问题
	Init bool `json:"init"`
	Mode Mode `json:"mode"`
}

type Reply struct {
	Answer        string   `json:"answer"`
	NextQuestions []string `json:"nextQuestions"`
}

type NewsletterSource interface {
	Get(ctx context.Context, force bool) (newsletter.Newsletter, bool, error)
}

type HeadlineSource interface {
	Headlines(ctx context.Context, force bool) (pipeline.Result, bool, error)
}

type Options struct {
	// 回答与开场问题的超时
	Timeout time.Duration
	// 追问生成的超时，比回答短
	FollowUpTimeout time.Duration
}

type Service struct {
	newsletters NewsletterSource
	headlines   HeadlineSource
	summarizer  summarize.Summarizer
	opts        Options
}

// New summarizer 为空时回答固定的不可用文案
func New(n NewsletterSource, h HeadlineSource, s summarize.Summarizer, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.FollowUpTimeout <= 0 {
		opts.FollowUpTimeout = 5 * time.Second
	}
	return &Service{newsletters: n, headlines: h, summarizer: s, opts: opts}
}

// topic 对话围绕的内容
type topic struct {
	title     string
	summary   string
	source    string
	timestamp string
	headlines []pipeline.Card
}

// Reply 查找话题后生成开场问题或回答；找不到话题时返回提示文案而不是错误
func (s *Service) Reply(ctx context.Context, req Request) (Reply, error) {
	req.TopicID = strings.TrimSpace(req.TopicID)
	if req.TopicID == "" {
		return Reply{}, ErrMissingTopic
	}
	if req.Mode == "" {
		req.Mode = ModeTrend
	}
	if req.Mode != ModeTrend && req.Mode != ModeHeadline {
		return Reply{}, fmt.Errorf("%w %q", ErrUnknownMode, req.Mode)
	}
	question := strings.TrimSpace(req.Question)
	if !req.Init && question == "" {
		return Reply{}, ErrMissingQuestion
	}

	t, missing, err := s.lookup(ctx, req.Mode, req.TopicID)
	if err != nil {
		return Reply{}, err
	}
	if missing != "" {
		log.Printf("chat: %s %s not found", req.Mode, req.TopicID)
		return Reply{Answer: missing, NextQuestions: []string{}}, nil
	}

	if req.Init && question == "" {
		return s.opening(ctx, t), nil
	}
	return s.answer(ctx, t, question, req.History), nil
}

func (s *Service) lookup(ctx context.Context, mode Mode, id string) (topic, string, error) {
	if mode == ModeHeadline {
		res, _, err := s.headlines.Headlines(ctx, false)
		if err != nil {
			return topic{}, "", err
		}
		for _, col := range res.Columns {
			for _, c := range col.Cards {
				if c.ID == id && !c.Fallback {
					return topic{title: c.Title, source: c.Source, timestamp: c.Timestamp}, "", nil
				}
			}
		}
		return topic{}, AnswerHeadlineMissing, nil
	}

	n, _, err := s.newsletters.Get(ctx, false)
	if err != nil {
		return topic{}, "", err
	}
	for _, tr := range n.Trends {
		if tr.ID == id {
			return topic{title: tr.Title, summary: tr.Summary, headlines: tr.Headlines}, "", nil
		}
	}
	return topic{}, AnswerTopicMissing, nil
}

func (s *Service) opening(ctx context.Context, t topic) Reply {
	fallback := Reply{Answer: openingLine, NextQuestions: defaultOpeningQuestions}
	if s.summarizer == nil {
		return fallback
	}

	var r Reply
	if err := s.ask(ctx, s.opts.Timeout, openingPrompt(t), initMaxTokens, &r); err != nil || len(r.NextQuestions) == 0 {
		log.Printf("chat: opening questions failed, use defaults: %v", err)
		return fallback
	}
	if strings.TrimSpace(r.Answer) == "" {
		r.Answer = openingLine
	}
	return r
}

func (s *Service) answer(ctx context.Context, t topic, question string, history []Message) Reply {
	if s.summarizer == nil {
		return Reply{Answer: AnswerUnavailable, NextQuestions: []string{}}
	}

	var r Reply
	err := s.ask(ctx, s.opts.Timeout, answerPrompt(t, question, recent(history)), answerMaxTokens, &r)
	if err == nil && strings.TrimSpace(r.Answer) == "" {
		err = errors.New("missing answer")
	}
	if err != nil {
		log.Printf("chat: answer failed: %v", err)
		return Reply{Answer: AnswerUnavailable, NextQuestions: []string{}}
	}

	var follow struct {
		NextQuestions []string `json:"nextQuestions"`
	}
	if err := s.ask(ctx, s.opts.FollowUpTimeout, followUpPrompt(question, r.Answer), followUpMaxTokens, &follow); err != nil || len(follow.NextQuestions) == 0 {
		log.Printf("chat: follow-up questions failed, use defaults: %v", err)
		follow.NextQuestions = defaultFollowUps
	}
	return Reply{Answer: strings.TrimSpace(r.Answer), NextQuestions: follow.NextQuestions}
}

// ask 调用模型并把回答中的 JSON 对象解码到 dst
func (s *Service) ask(ctx context.Context, timeout time.Duration, prompt string, maxTokens int, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := s.summarizer.Summarize(ctx, prompt, maxTokens)
	if err != nil {
		return err
	}
	raw, ok := newsletter.ExtractJSON(text)
	if !ok {
		return errors.New("no json object in response")
	}
	return json.Unmarshal([]byte(raw), dst)
}

func recent(history []Message) []Message {
	if len(history) > historyMessages {
		return history[len(history)-historyMessages:]
	}
	return history
}
