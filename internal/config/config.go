package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/collector"
)

type Config struct {
	AppPort       string
	BasicAuthUser string
	BasicAuthPass string
	// 前端构建产物目录，为空时不托管静态文件
	WebRoot string

	// 为空时不保存历史
	PostgresDSN string
	// 为空时使用进程内缓存
	RedisAddr string

	SourcesFile     string
	AggregationMode string

	CronSpec           string
	NewsletterCronSpec string

	RecencyWindow     time.Duration
	NewsletterWindow  time.Duration
	PerCategoryCap    int
	FetchLimit        int
	SourceTimeout     time.Duration
	BuildDeadline     time.Duration
	FetchConcurrency  int
	HeadlinesCacheTTL time.Duration
	NewsletterTTL     time.Duration

	UserAgent         string
	BrowserScraperURL string

	LLMProvider     string
	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string
	GeminiAPIKey    string
	GeminiModel     string
	LLMTimeout      time.Duration
	LLMRPS          float64

	Timezone string
	Location *time.Location
}

func Load() *Config {
	cfg := &Config{
		AppPort:       getEnv("APP_PORT", "9000"),
		BasicAuthUser: getEnv("APP_BASIC_USER", ""),
		BasicAuthPass: getEnv("APP_BASIC_PASS", ""),
		WebRoot:       getEnv("WEB_ROOT", ""),

		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		RedisAddr:   getEnv("REDIS_ADDR", ""),

		SourcesFile:     getEnv("SOURCES_FILE", ""),
		AggregationMode: strings.ToLower(getEnv("AGGREGATION_MODE", "")),

		CronSpec:           getEnv("CRON_SPEC", "*/30 * * * *"),
		NewsletterCronSpec: getEnv("NEWSLETTER_CRON", "5 0,12 * * *"),

		RecencyWindow:     getEnvDuration("RECENCY_WINDOW", 24*time.Hour),
		NewsletterWindow:  getEnvDuration("NEWSLETTER_WINDOW", 24*time.Hour),
		PerCategoryCap:    getEnvInt("PER_CATEGORY_CAP", 5),
		FetchLimit:        getEnvInt("FETCH_LIMIT", collector.DefaultItemLimit),
		SourceTimeout:     getEnvDuration("SOURCE_TIMEOUT", 10*time.Second),
		BuildDeadline:     getEnvDuration("BUILD_DEADLINE", 12*time.Second),
		FetchConcurrency:  getEnvInt("FETCH_CONCURRENCY", 4),
		HeadlinesCacheTTL: getEnvDuration("HEADLINES_CACHE_TTL", time.Hour),
		NewsletterTTL:     getEnvDuration("NEWSLETTER_CACHE_TTL", 12*time.Hour),

		UserAgent:         getEnv("USER_AGENT", collector.DefaultUserAgent),
		BrowserScraperURL: getEnv("BROWSER_SCRAPER_URL", ""),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "deepseek")),
		DeepSeekAPIKey:  getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekBaseURL: getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
		DeepSeekModel:   getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		LLMTimeout:      getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		LLMRPS:          getEnvFloat("LLM_RPS", 1),

		Timezone: getEnv("TIMEZONE", "Asia/Shanghai"),
	}
	cfg.Location = loadLocation(cfg.Timezone)

	log.Printf("config loaded: port=%s cron=%s newsletter_cron=%s history=%t redis=%t llm=%s tz=%s",
		cfg.AppPort, cfg.CronSpec, cfg.NewsletterCronSpec,
		cfg.PostgresDSN != "", cfg.RedisAddr != "", cfg.LLMProvider, cfg.Location)
	return cfg
}

// Registry 优先读取 SOURCES_FILE，未配置或读取失败时使用内置源；AGGREGATION_MODE 会覆盖文件中的 mode
func (c *Config) Registry() *collector.Registry {
	reg := collector.DefaultRegistry()
	if c.SourcesFile != "" {
		loaded, err := collector.LoadRegistry(c.SourcesFile)
		if err != nil {
			log.Printf("config: load sources %s failed, use built-in: %v", c.SourcesFile, err)
		} else {
			reg = loaded
		}
	}

	switch collector.Aggregation(c.AggregationMode) {
	case collector.AggregateAll, collector.AggregateFirst:
		reg.Mode = collector.Aggregation(c.AggregationMode)
	case "":
	default:
		log.Printf("config: unknown AGGREGATION_MODE %q, keep %s", c.AggregationMode, reg.Mode)
	}
	return reg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("config: invalid %s=%q, use %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		log.Printf("config: invalid %s=%q, use %g", key, v, def)
		return def
	}
	return f
}

// getEnvDuration 接受 time.ParseDuration 格式，纯数字按秒处理
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Printf("config: invalid %s=%q, use %s", key, v, def)
		return def
	}
	return d
}

// 东八区作为兜底，避免容器内缺少 tzdata 时日期错位
func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	log.Printf("config: load timezone %q failed: %v, use UTC+8", name, err)
	return time.FixedZone("CST", 8*3600)
}
