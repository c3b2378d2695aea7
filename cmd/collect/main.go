package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/config"
	"github.com/LJTian/HeadlineHub/internal/pipeline"
	"github.com/LJTian/HeadlineHub/internal/storage"
)

// 一个仅执行一次构建的命令行入口：抓取全部分类并把结果以 JSON 输出到标准输出
func main() {
	save := flag.Bool("save", false, "同时写入 POSTGRES_DSN 指定的历史库")
	flag.Parse()

	cfg := config.Load()
	reg := cfg.Registry()

	static := collector.NewCollyTransport(cfg.UserAgent, cfg.SourceTimeout)
	var render collector.DocumentFetcher
	if cfg.BrowserScraperURL != "" {
		render = collector.NewRenderTransport(cfg.BrowserScraperURL, cfg.SourceTimeout+10*time.Second)
	}

	p := pipeline.New(collector.NewDispatcher(static, render, cfg.FetchLimit), pipeline.Options{
		RecencyWindow:  cfg.RecencyWindow,
		PerCategoryCap: cfg.PerCategoryCap,
		SourceTimeout:  cfg.SourceTimeout,
		Deadline:       cfg.BuildDeadline,
		Concurrency:    cfg.FetchConcurrency,
		Location:       cfg.Location,
	})

	ctx := context.Background()
	result := p.Build(ctx, reg, time.Now())

	if *save {
		if cfg.PostgresDSN == "" {
			log.Fatalf("-save requires POSTGRES_DSN")
		}
		store, err := storage.NewStore(cfg.PostgresDSN, nil, cfg.Location)
		if err != nil {
			log.Fatalf("init store failed: %v", err)
		}
		if err := store.SyncSources(ctx, reg); err != nil {
			log.Fatalf("sync sources failed: %v", err)
		}
		if err := store.SaveResult(ctx, result); err != nil {
			log.Fatalf("save result failed: %v", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("encode result failed: %v", err)
	}
}
