// Package storage 保存每轮构建出的标题与日报，供按日期回看。
package storage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/cache"
	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/pipeline"
	"github.com/LJTian/HeadlineHub/internal/processor"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Source 描述注册表中的一个数据源
type Source struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:128;uniqueIndex" json:"name"`
	Category string `gorm:"size:64;index" json:"category"`
	Kind     string `gorm:"size:16" json:"kind"`
	URL      string `gorm:"size:1024" json:"url"`
	Status   string `gorm:"size:32;index" json:"status"` // active / disabled

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Headline 历史标题。card id 只在单轮内唯一，因此以 URL 作为幂等键。
type Headline struct {
	ID            uint              `gorm:"primaryKey" json:"-"`
	CardID        string            `gorm:"size:200" json:"id"`
	Title         string            `gorm:"size:512" json:"title"`
	URL           string            `gorm:"size:1024;uniqueIndex" json:"url"`
	Source        string            `gorm:"size:128;index" json:"source"`
	Category      string            `gorm:"size:64;index" json:"category"`
	SourceCount   int               `gorm:"index" json:"sourceCount"`
	PublishedAt   time.Time         `gorm:"index" json:"publishedAt"`
	PublishedDate string            `gorm:"size:10;index" json:"publishedDate"` // 日期 YYYY-MM-DD
	ExtraData     datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct {
	DB    *gorm.DB
	Cache cache.Cache
	loc   *time.Location
}

// NewStore 打开 PostgreSQL 并迁移表结构，c 用于列表查询的短期缓存，可为空
func NewStore(dsn string, c cache.Cache, loc *time.Location) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Source{}, &Headline{}, &NewsletterIssue{}); err != nil {
		return nil, err
	}

	return NewStoreWithDB(db, c, loc), nil
}

func NewStoreWithDB(db *gorm.DB, c cache.Cache, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{DB: db, Cache: c, loc: loc}
}

// SyncSources 确保注册表中的源都已入库，已存在的更新分类与地址
func (s *Store) SyncSources(ctx context.Context, reg *collector.Registry) error {
	for _, cat := range reg.Categories {
		for _, src := range cat.Sources {
			row := &Source{
				Name:     src.SourceName(),
				Category: cat.ID,
				Kind:     string(src.Kind()),
				URL:      src.FeedURL(),
				Status:   "active",
			}
			db := s.DB.WithContext(ctx)
			if err := db.Where("name = ?", row.Name).FirstOrCreate(row).Error; err != nil {
				return err
			}
			if err := db.Model(row).Updates(map[string]any{
				"category": cat.ID,
				"kind":     string(src.Kind()),
				"url":      src.FeedURL(),
			}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断字符串，确保不会超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// toRecords 把一轮结果转换为入库记录，占位卡片不入库
func toRecords(r pipeline.Result, now time.Time, loc *time.Location) []Headline {
	var out []Headline
	for _, col := range r.Columns {
		for _, c := range col.Cards {
			if c.Fallback || c.URL == "" {
				continue
			}
			pub, ok := processor.ParseTimestamp(c.Timestamp)
			if !ok {
				pub = now
			}
			sources := make([]any, 0, len(c.Sources))
			for _, name := range c.Sources {
				sources = append(sources, name)
			}
			out = append(out, Headline{
				CardID:        truncateRunesDB(c.ID, 200),
				Title:         truncateRunesDB(toValidUTF8(c.Title), 512),
				URL:           c.URL,
				Source:        truncateRunesDB(c.Source, 128),
				Category:      col.Category,
				SourceCount:   c.SourceCount,
				PublishedAt:   pub,
				PublishedDate: pub.In(loc).Format(pipeline.DateLayout),
				ExtraData: datatypes.JSONMap{
					"sources":   sources,
					"buildDate": r.Date,
				},
			})
		}
	}
	return out
}

// SaveResult 保存一轮结果，已存在的 URL 更新来源数等字段
func (s *Store) SaveResult(ctx context.Context, r pipeline.Result) error {
	records := toRecords(r, time.Now(), s.loc)
	db := s.DB.WithContext(ctx)
	for i := range records {
		h := &records[i]
		// 以 URL 作为幂等键，避免重复插入
		if err := db.Where("url = ?", h.URL).FirstOrCreate(h).Error; err != nil {
			return err
		}
		_ = db.Model(h).Updates(map[string]any{
			"title":          records[i].Title,
			"source_count":   records[i].SourceCount,
			"extra_data":     records[i].ExtraData,
			"published_at":   records[i].PublishedAt,
			"published_date": records[i].PublishedDate,
		}).Error
	}
	log.Printf("storage: saved %d headlines for %s", len(records), r.Date)

	// 不主动删除列表缓存，依赖短 TTL 自然过期
	return nil
}

const listCacheTTL = 5 * time.Minute

// ListHeadlines 按分类与可选日期返回历史标题，按来源数、时间倒序
// category: 分类 id，可为空
// date: 可选，格式 2006-01-02
func (s *Store) ListHeadlines(ctx context.Context, category, date string, limit int) ([]Headline, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("history:list:%s:%s:%d", category, date, limit)
	if s.Cache != nil {
		var cached []Headline
		if ok, err := s.Cache.Get(ctx, cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	var list []Headline
	db := s.DB.WithContext(ctx).Model(&Headline{})
	if category != "" {
		db = db.Where("category = ?", category)
	}
	if date != "" {
		db = db.Where("published_date = ?", date)
	}
	if err := db.Order("source_count DESC").Order("published_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}

	if s.Cache != nil && len(list) > 0 {
		_ = s.Cache.Set(ctx, cacheKey, list, listCacheTTL)
	}
	return list, nil
}

// ListDates 返回有数据的日期列表（倒序），结果缓存 5 分钟
func (s *Store) ListDates(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > 365 {
		limit = 31
	}
	cacheKey := fmt.Sprintf("history:dates:%d", limit)
	if s.Cache != nil {
		var cached []string
		if ok, err := s.Cache.Get(ctx, cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	var dates []string
	err := s.DB.WithContext(ctx).Model(&Headline{}).
		Distinct("published_date").
		Where("published_date <> ''").
		Order("published_date DESC").
		Limit(limit).
		Pluck("published_date", &dates).Error
	if err != nil {
		return nil, err
	}

	if s.Cache != nil && len(dates) > 0 {
		_ = s.Cache.Set(ctx, cacheKey, dates, listCacheTTL)
	}
	return dates, nil
}
