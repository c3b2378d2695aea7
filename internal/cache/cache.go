// Package cache 提供带 TTL 的键值缓存。值统一按 JSON 存储，每次写入整体替换。
package cache

import (
	"context"
	"time"
)

// Cache 是流水线结果缓存的最小接口
type Cache interface {
	// Get 命中时把值解码到 dst 并返回 true
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}
