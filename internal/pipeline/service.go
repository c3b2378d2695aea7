package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/LJTian/HeadlineHub/internal/cache"
	"github.com/LJTian/HeadlineHub/internal/collector"
	"golang.org/x/sync/singleflight"
)

// Recorder 保存每轮构建结果（历史记录），可为空
type Recorder interface {
	SaveResult(ctx context.Context, r Result) error
}

// Service 带缓存的标题服务，缓存 key 按日期划分
type Service struct {
	pipeline *Pipeline
	registry *collector.Registry
	cache    cache.Cache
	ttl      time.Duration
	recorder Recorder
	group    singleflight.Group

	now func() time.Time
}

func NewService(p *Pipeline, reg *collector.Registry, c cache.Cache, ttl time.Duration, rec Recorder) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		pipeline: p,
		registry: reg,
		cache:    c,
		ttl:      ttl,
		recorder: rec,
		now:      time.Now,
	}
}

func (s *Service) Registry() *collector.Registry {
	return s.registry
}

func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// CacheKey 当日结果的缓存 key
func (s *Service) CacheKey(now time.Time) string {
	return "headlines:" + s.pipeline.DateKey(now)
}

// Headlines 先查缓存，未命中或 force 时重新构建。第二个返回值表示是否命中缓存。
func (s *Service) Headlines(ctx context.Context, force bool) (Result, bool, error) {
	now := s.now()
	key := s.CacheKey(now)

	if !force && s.cache != nil {
		var cached Result
		ok, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.Printf("headlines: cache get %s error: %v", key, err)
		}
		if ok {
			return cached, true, nil
		}
	}

	// 同一时刻的并发请求共享一次构建
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.build(context.WithoutCancel(ctx), key, now), nil
	})
	if err != nil {
		return Result{}, false, err
	}
	return v.(Result), false, nil
}

// Refresh 忽略缓存重新构建，供定时任务使用
func (s *Service) Refresh(ctx context.Context) Result {
	r, _, _ := s.Headlines(ctx, true)
	return r
}

func (s *Service) build(ctx context.Context, key string, now time.Time) Result {
	result := s.pipeline.Build(ctx, s.registry, now)

	if allFallback(result) {
		// 全部是占位数据时不写缓存，下次请求重新尝试
		log.Printf("headlines: %s all categories fell back, skip cache", key)
		return result
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
			log.Printf("headlines: cache set %s error: %v", key, err)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.SaveResult(ctx, result); err != nil {
			log.Printf("headlines: save history error: %v", err)
		}
	}
	return result
}

func allFallback(r Result) bool {
	for _, c := range r.Columns {
		if !c.IsFallback() {
			return false
		}
	}
	return true
}
