package main

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/LJTian/HeadlineHub/internal/api"
	"github.com/LJTian/HeadlineHub/internal/cache"
	"github.com/LJTian/HeadlineHub/internal/chat"
	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/config"
	"github.com/LJTian/HeadlineHub/internal/content"
	"github.com/LJTian/HeadlineHub/internal/newsletter"
	"github.com/LJTian/HeadlineHub/internal/pipeline"
	"github.com/LJTian/HeadlineHub/internal/scheduler"
	"github.com/LJTian/HeadlineHub/internal/storage"
	"github.com/LJTian/HeadlineHub/internal/summarize"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	reg := cfg.Registry()

	// 未配置 Redis 时使用进程内缓存
	var c cache.Cache = cache.NewMemory()
	if cfg.RedisAddr != "" {
		rc := cache.NewRedis(cfg.RedisAddr, "headlinehub:")
		defer rc.Close()
		c = rc
	}

	// 未配置数据库时不保存历史，history 接口返回 503
	var (
		recorder pipeline.Recorder
		archive  newsletter.Archive
		history  api.HistoryStore
	)
	if cfg.PostgresDSN != "" {
		store, err := storage.NewStore(cfg.PostgresDSN, c, cfg.Location)
		if err != nil {
			log.Fatalf("init store failed: %v", err)
		}
		if err := store.SyncSources(context.Background(), reg); err != nil {
			log.Fatalf("sync sources failed: %v", err)
		}
		recorder, archive, history = store, store, store
	}

	fetcher := newDispatcher(cfg)
	opts := pipeline.Options{
		RecencyWindow:  cfg.RecencyWindow,
		PerCategoryCap: cfg.PerCategoryCap,
		SourceTimeout:  cfg.SourceTimeout,
		Deadline:       cfg.BuildDeadline,
		Concurrency:    cfg.FetchConcurrency,
		Location:       cfg.Location,
	}
	headlines := pipeline.NewService(pipeline.New(fetcher, opts), reg, c, cfg.HeadlinesCacheTTL, recorder)

	sum, err := summarize.New(context.Background(), summarize.Config{
		Provider:        cfg.LLMProvider,
		DeepSeekAPIKey:  cfg.DeepSeekAPIKey,
		DeepSeekBaseURL: cfg.DeepSeekBaseURL,
		DeepSeekModel:   cfg.DeepSeekModel,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GeminiModel:     cfg.GeminiModel,
		Timeout:         cfg.LLMTimeout,
		RPS:             cfg.LLMRPS,
	})
	if err != nil {
		log.Printf("warn: init summarizer failed, newsletter uses fallback text: %v", err)
		sum = nil
	}
	if closer, ok := sum.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// 日报的时间窗口与标题不同，单独一条流水线；总时限不限制，日报由定时任务预热
	nlOpts := opts
	nlOpts.RecencyWindow = cfg.NewsletterWindow
	nlOpts.Deadline = 0
	letters := newsletter.NewBuilder(pipeline.New(fetcher, nlOpts), reg, sum, c, archive, newsletter.Options{
		CacheTTL:       cfg.NewsletterTTL,
		SummaryTimeout: cfg.LLMTimeout,
		Location:       cfg.Location,
	})

	extractor := content.NewExtractor(collector.NewCollyTransport(cfg.UserAgent, 15*time.Second))
	// 静态提取失败或过短时交给 browser-scraper 渲染
	if cfg.BrowserScraperURL != "" {
		extractor.WithBrowser(content.NewBrowserClient(cfg.BrowserScraperURL, 30*time.Second))
	}

	talk := chat.New(letters, headlines, sum, chat.Options{Timeout: cfg.LLMTimeout})

	s, err := scheduler.New(
		scheduler.Job{Name: "headlines", Spec: cfg.CronSpec, Run: func(ctx context.Context) {
			headlines.Refresh(ctx)
		}},
		scheduler.Job{Name: "newsletter", Spec: cfg.NewsletterCronSpec, Run: func(ctx context.Context) {
			if _, _, err := letters.Get(ctx, true); err != nil {
				log.Printf("newsletter job error: %v", err)
			}
		}},
	)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()

	// API
	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	apiServer := api.NewServer(headlines, letters, extractor, talk, history)
	apiServer.RegisterRoutes(r)

	// 若配置了前端目录，则托管 SPA 静态文件并做 fallback
	if cfg.WebRoot != "" {
		assetsDir := filepath.Join(cfg.WebRoot, "assets")
		indexFile := filepath.Join(cfg.WebRoot, "index.html")
		r.Static("/assets", assetsDir)
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet {
				c.Status(http.StatusNotFound)
				return
			}
			// SPA：未匹配 API 的 GET 均返回 index.html
			c.File(indexFile)
		})
	}
	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}

// newDispatcher 静态抓取走 colly；配置了 browser-scraper 时 HTML 源可以走无头浏览器渲染
func newDispatcher(cfg *config.Config) *collector.Dispatcher {
	static := collector.NewCollyTransport(cfg.UserAgent, cfg.SourceTimeout)
	var render collector.DocumentFetcher
	if cfg.BrowserScraperURL != "" {
		render = collector.NewRenderTransport(cfg.BrowserScraperURL, cfg.SourceTimeout+10*time.Second)
	}
	return collector.NewDispatcher(static, render, cfg.FetchLimit)
}

// basicAuthMiddleware 为整个站点增加一个简单的 Basic Auth 访问密码。
// 仅当配置了 APP_BASIC_USER / APP_BASIC_PASS 时启用。
// /health 不做认证，便于健康检查。
func basicAuthMiddleware(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
