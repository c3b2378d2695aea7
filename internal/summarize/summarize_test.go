package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAICompatibleSummarize(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  今日要闻  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	s := NewOpenAICompatible(srv.URL+"/", "sk-test", "", time.Second, 0)
	out, err := s.Summarize(context.Background(), "hello", 100)
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if out != "今日要闻" {
		t.Fatalf("Summarize = %q", out)
	}
	if auth != "Bearer sk-test" {
		t.Fatalf("Authorization = %q", auth)
	}
	if got.Model != DefaultDeepSeekModel || got.MaxTokens != 100 || got.Messages[0].Content != "hello" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestOpenAICompatibleErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	body := `{"error":"quota"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	s := NewOpenAICompatible(srv.URL, "k", "m", time.Second, 0)
	if _, err := s.Summarize(context.Background(), "p", 10); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}

	status = http.StatusOK
	body = `{"choices":[]}`
	if _, err := s.Summarize(context.Background(), "p", 10); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestOpenAICompatibleHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewOpenAICompatible(srv.URL, "k", "m", 10*time.Second, 0).Summarize(ctx, "p", 10); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestNewWithoutKeyReturnsNil(t *testing.T) {
	s, err := New(context.Background(), Config{Provider: "deepseek"})
	if err != nil || s != nil {
		t.Fatalf("expected nil summarizer, got %v %v", s, err)
	}
	s, err = New(context.Background(), Config{Provider: "gemini"})
	if err != nil || s != nil {
		t.Fatalf("expected nil summarizer, got %v %v", s, err)
	}
	if _, err := New(context.Background(), Config{Provider: "other"}); err == nil {
		t.Fatalf("unknown provider should fail")
	}
	s, _ = New(context.Background(), Config{DeepSeekAPIKey: "k"})
	if _, ok := s.(*OpenAICompatible); !ok {
		t.Fatalf("default provider should be deepseek, got %T", s)
	}
}
