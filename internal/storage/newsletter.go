package storage

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewsletterIssue 日报归档，按 id（daily-YYYY-MM-DD-AM/PM）保存生成结果的原始 JSON
type NewsletterIssue struct {
	ID        string         `gorm:"primaryKey;size:64" json:"id"`
	Date      string         `gorm:"size:10;index" json:"date"`
	Data      datatypes.JSON `gorm:"type:jsonb" json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SaveNewsletter 写入或覆盖一期日报
func (s *Store) SaveNewsletter(ctx context.Context, id, date string, v any) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	issue := NewsletterIssue{ID: id, Date: date, Data: datatypes.JSON(bs)}
	return s.DB.WithContext(ctx).Save(&issue).Error
}

// GetNewsletter 读取一期日报，不存在时返回 false
func (s *Store) GetNewsletter(ctx context.Context, id string, dst any) (bool, error) {
	var issue NewsletterIssue
	// 未找到是常态，不打印 record not found
	silent := s.DB.WithContext(ctx).Session(&gorm.Session{Logger: s.DB.Logger.LogMode(logger.Silent)})
	if err := silent.Where("id = ?", id).First(&issue).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(issue.Data, dst); err != nil {
		return false, err
	}
	return true, nil
}
