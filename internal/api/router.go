package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/chat"
	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/content"
	"github.com/LJTian/HeadlineHub/internal/newsletter"
	"github.com/LJTian/HeadlineHub/internal/pipeline"
	"github.com/LJTian/HeadlineHub/internal/storage"
	"github.com/gin-gonic/gin"
)

type HeadlineService interface {
	Headlines(ctx context.Context, force bool) (pipeline.Result, bool, error)
	Registry() *collector.Registry
}

type NewsletterService interface {
	Get(ctx context.Context, force bool) (newsletter.Newsletter, bool, error)
	Issue(ctx context.Context, id string) (newsletter.Newsletter, bool, error)
	Trend(ctx context.Context, id string) (newsletter.Trend, bool, error)
}

type ChatService interface {
	Reply(ctx context.Context, req chat.Request) (chat.Reply, error)
}

type ContentExtractor interface {
	Extract(ctx context.Context, url string) (content.Article, error)
}

type HistoryStore interface {
	ListHeadlines(ctx context.Context, category, date string, limit int) ([]storage.Headline, error)
	ListDates(ctx context.Context, limit int) ([]string, error)
}

type Server struct {
	headlines  HeadlineService
	newsletter NewsletterService
	content    ContentExtractor
	chat       ChatService
	// 未配置数据库时为空
	history HistoryStore
}

func NewServer(h HeadlineService, n NewsletterService, e ContentExtractor, c ChatService, history HistoryStore) *Server {
	return &Server{headlines: h, newsletter: n, content: e, chat: c, history: history}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/headlines", s.getHeadlines)
		v1.GET("/newsletter", s.getNewsletter)
		v1.GET("/newsletter/:id", s.getNewsletterByID)
		v1.POST("/chat", s.postChat)
		v1.POST("/content", s.fetchContent)
		v1.GET("/categories", s.listCategories)
		v1.GET("/history", s.listHistory)
		v1.GET("/history/dates", s.listHistoryDates)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ok(c *gin.Context, data any, extra gin.H) {
	body := gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func forced(c *gin.Context) bool {
	switch strings.ToLower(c.Query("force")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func (s *Server) getHeadlines(c *gin.Context) {
	res, cached, err := s.headlines.Headlines(c.Request.Context(), forced(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, res, gin.H{"cached": cached, "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) getNewsletter(c *gin.Context) {
	if s.newsletter == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "newsletter disabled")
		return
	}
	n, cached, err := s.newsletter.Get(c.Request.Context(), forced(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, n, gin.H{"cached": cached})
}

// getNewsletterByID id 为 daily-YYYY-MM-DD-AM|PM 时返回整期，否则按趋势 id 在当期中查找
func (s *Server) getNewsletterByID(c *gin.Context) {
	if s.newsletter == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "newsletter disabled")
		return
	}
	id := c.Param("id")

	var (
		data  any
		found bool
		err   error
	)
	if _, _, isIssue := newsletter.ParseIssueID(id); isIssue {
		data, found, err = s.newsletter.Issue(c.Request.Context(), id)
	} else {
		data, found, err = s.newsletter.Trend(c.Request.Context(), id)
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if !found {
		fail(c, http.StatusNotFound, "not_found", "unknown id "+id)
		return
	}
	ok(c, data, nil)
}

func (s *Server) postChat(c *gin.Context) {
	if s.chat == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "chat disabled")
		return
	}
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}

	reply, err := s.chat.Reply(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, chat.ErrMissingTopic) || errors.Is(err, chat.ErrMissingQuestion) || errors.Is(err, chat.ErrUnknownMode) {
			fail(c, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, reply, nil)
}

type contentRequest struct {
	URL string `json:"url" binding:"required"`
}

func (s *Server) fetchContent(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "url is required")
		return
	}

	article, err := s.content.Extract(c.Request.Context(), req.URL)
	if err != nil {
		var fe *collector.FetchError
		if errors.As(err, &fe) {
			fail(c, http.StatusBadGateway, "fetch_failed", err.Error())
			return
		}
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	ok(c, article, nil)
}

type categoryView struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Sources []string `json:"sources"`
}

func (s *Server) listCategories(c *gin.Context) {
	reg := s.headlines.Registry()
	out := make([]categoryView, 0, len(reg.Categories))
	for _, cat := range reg.Categories {
		v := categoryView{ID: cat.ID, Label: cat.Label, Sources: []string{}}
		for _, src := range reg.Active(cat) {
			v.Sources = append(v.Sources, src.SourceName())
		}
		out = append(out, v)
	}
	ok(c, out, gin.H{"mode": reg.Mode})
}

func (s *Server) listHistory(c *gin.Context) {
	if s.history == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "history disabled")
		return
	}

	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse(pipeline.DateLayout, date); err != nil {
			fail(c, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
			return
		}
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	items, err := s.history.ListHeadlines(c.Request.Context(), c.Query("category"), date, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, items, nil)
}

func (s *Server) listHistoryDates(c *gin.Context) {
	if s.history == nil {
		fail(c, http.StatusServiceUnavailable, "unavailable", "history disabled")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "31"))
	if err != nil || limit <= 0 {
		limit = 31
	}
	dates, err := s.history.ListDates(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, dates, nil)
}
