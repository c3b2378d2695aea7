package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/HeadlineHub/internal/newsletter"
	"github.com/LJTian/HeadlineHub/internal/pipeline"
	"github.com/LJTian/HeadlineHub/internal/processor"
	"github.com/LJTian/HeadlineHub/internal/summarize"
)

type fakeNewsletters struct{ err error }

func (f fakeNewsletters) Get(context.Context, bool) (newsletter.Newsletter, bool, error) {
	if f.err != nil {
		return newsletter.Newsletter{}, false, f.err
	}
	return newsletter.Newsletter{
		ID: "daily-2024-05-01-AM",
		Trends: []newsletter.Trend{{
			ID:       "tech",
			Title:    "芯片竞赛升温",
			Summary:  "多国加码半导体",
			Category: "科技",
			Headlines: []pipeline.Card{
				{NormalizedHeadline: processor.NormalizedHeadline{ID: "tech-X-0", Title: "某国发布芯片补贴", Source: "X"}},
			},
		}},
	}, true, nil
}

type fakeHeadlines struct{}

func (fakeHeadlines) Headlines(context.Context, bool) (pipeline.Result, bool, error) {
	return pipeline.Result{Date: "2024-05-01", Columns: []pipeline.Column{
		{Category: "society", Cards: []pipeline.Card{
			{NormalizedHeadline: processor.NormalizedHeadline{ID: "society-BBC-3", Title: "A国新规出台", Source: "BBC", Timestamp: "2024-05-01T06:00:00.000Z"}},
		}},
		{Category: "economy", Cards: []pipeline.Card{pipeline.FallbackCard("economy", time.Now())}},
	}}, true, nil
}

type fakeSummarizer struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
}

func (f *fakeSummarizer) Name() string { return "fake" }

func (f *fakeSummarizer) Summarize(_ context.Context, prompt string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func newTestService(s *fakeSummarizer) *Service {
	var sum summarize.Summarizer
	if s != nil {
		sum = s
	}
	return New(fakeNewsletters{}, fakeHeadlines{}, sum, Options{Timeout: time.Second, FollowUpTimeout: time.Second})
}

func TestReplyValidatesRequest(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	if _, err := svc.Reply(ctx, Request{Question: "为什么？"}); !errors.Is(err, ErrMissingTopic) {
		t.Fatalf("expected ErrMissingTopic, got %v", err)
	}
	if _, err := svc.Reply(ctx, Request{TopicID: "tech"}); !errors.Is(err, ErrMissingQuestion) {
		t.Fatalf("expected ErrMissingQuestion, got %v", err)
	}
	if _, err := svc.Reply(ctx, Request{TopicID: "tech", Question: "q", Mode: "video"}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestReplyUnknownTopicIsAnswerNotError(t *testing.T) {
	svc := newTestService(nil)

	r, err := svc.Reply(context.Background(), Request{TopicID: "sports", Question: "q"})
	if err != nil || r.Answer != AnswerTopicMissing {
		t.Fatalf("unknown trend: %+v err=%v", r, err)
	}
	r, _ = svc.Reply(context.Background(), Request{TopicID: "society-BBC-9", Question: "q", Mode: ModeHeadline})
	if r.Answer != AnswerHeadlineMissing {
		t.Fatalf("unknown headline: %+v", r)
	}
	// 占位卡片不能作为对话话题
	r, _ = svc.Reply(context.Background(), Request{TopicID: "economy-fallback", Question: "q", Mode: ModeHeadline})
	if r.Answer != AnswerHeadlineMissing {
		t.Fatalf("fallback card should not be a topic: %+v", r)
	}
}

func TestReplyInitReturnsOpeningQuestions(t *testing.T) {
	s := &fakeSummarizer{replies: []string{
		"```json\n{\"answer\": \"从这两点聊聊：\", \"nextQuestions\": [\"补贴为何加码？\", \"谁会受益？\"]}\n```",
	}}
	r, err := newTestService(s).Reply(context.Background(), Request{TopicID: "tech", Init: true})
	if err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if r.Answer != "从这两点聊聊：" || len(r.NextQuestions) != 2 {
		t.Fatalf("unexpected opening: %+v", r)
	}
	if len(s.prompts) != 1 || !strings.Contains(s.prompts[0], "芯片竞赛升温") || !strings.Contains(s.prompts[0], "某国发布芯片补贴（X）") {
		t.Fatalf("opening prompt should carry trend context: %q", s.prompts)
	}

	// 没有模型时使用默认开场问题
	r, _ = newTestService(nil).Reply(context.Background(), Request{TopicID: "tech", Init: true})
	if len(r.NextQuestions) != 2 || r.Answer == "" {
		t.Fatalf("expected default opening, got %+v", r)
	}
}

func TestReplyAnswersWithHistoryAndFollowUps(t *testing.T) {
	s := &fakeSummarizer{replies: []string{
		`{"answer": "**补贴**会带动投资。"}`,
		`{"nextQuestions": ["投资会过热吗？", "其他国家怎么应对？"]}`,
	}}
	history := []Message{
		{Role: "user", Content: "这条新闻说了什么？"},
		{Role: "assistant", Content: "讲的是发布了新规。"},
	}
	r, err := newTestService(s).Reply(context.Background(), Request{
		TopicID: "society-BBC-3", Mode: ModeHeadline, Question: "影响有多大？", History: history,
	})
	if err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if r.Answer != "**补贴**会带动投资。" || len(r.NextQuestions) != 2 || r.NextQuestions[0] != "投资会过热吗？" {
		t.Fatalf("unexpected reply: %+v", r)
	}
	p := s.prompts[0]
	if !strings.Contains(p, "A国新规出台") || !strings.Contains(p, "来源: BBC") ||
		!strings.Contains(p, "助手: 讲的是发布了新规。") || !strings.Contains(p, "影响有多大？") {
		t.Fatalf("answer prompt missing context: %q", p)
	}
	if !strings.Contains(s.prompts[1], "**补贴**会带动投资。") {
		t.Fatalf("follow-up prompt should quote the answer: %q", s.prompts[1])
	}
}

func TestReplyFallbacks(t *testing.T) {
	// 追问失败时用默认追问
	s := &fakeSummarizer{replies: []string{`{"answer": "回答"}`, "不是 JSON"}}
	r, _ := newTestService(s).Reply(context.Background(), Request{TopicID: "tech", Question: "q"})
	if r.Answer != "回答" || len(r.NextQuestions) != 2 || r.NextQuestions[0] != defaultFollowUps[0] {
		t.Fatalf("expected default follow-ups, got %+v", r)
	}

	// 模型不可用时返回固定文案
	s = &fakeSummarizer{err: errors.New("quota exceeded")}
	r, err := newTestService(s).Reply(context.Background(), Request{TopicID: "tech", Question: "q"})
	if err != nil || r.Answer != AnswerUnavailable {
		t.Fatalf("expected unavailable answer, got %+v err=%v", r, err)
	}
	if r, _ := newTestService(nil).Reply(context.Background(), Request{TopicID: "tech", Question: "q"}); r.Answer != AnswerUnavailable {
		t.Fatalf("nil summarizer should answer unavailable, got %+v", r)
	}
}

func TestRecentKeepsLastMessages(t *testing.T) {
	var h []Message
	for i := 0; i < 10; i++ {
		h = append(h, Message{Role: "user", Content: string(rune('a' + i))})
	}
	got := recent(h)
	if len(got) != historyMessages || got[0].Content != "e" {
		t.Fatalf("recent = %+v", got)
	}
}

func TestReplyContextSourceError(t *testing.T) {
	svc := New(fakeNewsletters{err: errors.New("boom")}, fakeHeadlines{}, nil, Options{})
	if _, err := svc.Reply(context.Background(), Request{TopicID: "tech", Question: "q"}); err == nil {
		t.Fatalf("newsletter failure should surface as error")
	}
}
