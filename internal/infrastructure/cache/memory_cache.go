package cache

import (
	"context"
	"sync"
	"time"

	"github.com/openmtp/permbridge/pkg/logger"
	"go.uber.org/zap"
)

/**
 * entry 缓存项
 */
type entry[V any] struct {
	value V

	// expiration 过期时间（零值表示永不过期）
	expiration time.Time

	// accessedAt 最后访问时间，用于容量淘汰
	accessedAt time.Time
}

func (e *entry[V]) expiredAt(now time.Time) bool {
	return !e.expiration.IsZero() && now.After(e.expiration)
}

/**
 * MemoryCache 内存缓存实现
 *
 * 特性：
 * - 并发安全
 * - TTL 支持
 * - 超出容量时淘汰最久未访问的项
 * - 可选的定期清理
 */
type MemoryCache[K comparable, V any] struct {
	items map[K]*entry[V]

	// maxSize 最大缓存项数（0 表示无限制）
	maxSize int

	stats *Stats

	// now 时间源，测试中可替换
	now func() time.Time

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
	mu      sync.Mutex
}

/**
 * NewMemoryCache 创建内存缓存
 *
 * Parameters:
 *   - maxSize: 最大缓存项数（0 表示无限制）
 *   - cleanupInterval: 清理间隔（0 表示不定期清理，过期项在读取时移除）
 *
 * Returns: *MemoryCache - 内存缓存实例
 */
func NewMemoryCache[K comparable, V any](maxSize int, cleanupInterval time.Duration) *MemoryCache[K, V] {
	ctx, cancel := context.WithCancel(context.Background())

	c := &MemoryCache[K, V]{
		items:   make(map[K]*entry[V]),
		maxSize: maxSize,
		stats:   &Stats{},
		now:     time.Now,
		cancel:  cancel,
	}

	if cleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(ctx, cleanupInterval)
		logger.Debug("内存缓存已启动",
			zap.Int("max_size", maxSize),
			zap.Duration("cleanup_interval", cleanupInterval))
	}

	return c
}

// Set 设置缓存值，缓存已停止时忽略
func (c *MemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	now := c.now()
	var expiration time.Time
	if ttl > 0 {
		expiration = now.Add(ttl)
	}

	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.items[key] = &entry[V]{
		value:      value,
		expiration: expiration,
		accessedAt: now,
	}
	c.stats.recordSet()
}

// Get 获取缓存值
func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	if c.stopped {
		return zero, false
	}

	item, found := c.items[key]
	if !found {
		c.stats.recordMiss()
		return zero, false
	}

	now := c.now()
	if item.expiredAt(now) {
		delete(c.items, key)
		c.stats.recordMiss()
		c.stats.recordEviction()
		return zero, false
	}

	item.accessedAt = now
	c.stats.recordHit()
	return item.value, true
}

// Delete 删除缓存
func (c *MemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.items[key]; found {
		delete(c.items, key)
		c.stats.recordDelete()
	}
}

// Clear 清空所有缓存
func (c *MemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
}

// Count 获取缓存项数量
func (c *MemoryCache[K, V]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats 获取缓存统计信息
func (c *MemoryCache[K, V]) Stats() *Stats {
	return c.stats
}

/**
 * evictOldestLocked 淘汰最久未访问的缓存项
 *
 * 调用方必须持有 mu
 */
func (c *MemoryCache[K, V]) evictOldestLocked() {
	var (
		oldestKey  K
		oldestTime time.Time
		found      bool
	)

	for key, item := range c.items {
		if !found || item.accessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.accessedAt
			found = true
		}
	}

	if found {
		delete(c.items, oldestKey)
		c.stats.recordEviction()
	}
}

func (c *MemoryCache[K, V]) cleanupLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// cleanup 清理过期缓存
func (c *MemoryCache[K, V]) cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	deleted := 0
	for key, item := range c.items {
		if item.expiredAt(now) {
			delete(c.items, key)
			c.stats.recordEviction()
			deleted++
		}
	}

	if deleted > 0 {
		logger.Debug("清理过期缓存",
			zap.Int("count", deleted),
			zap.Int("remaining", len(c.items)))
	}
	return deleted
}

/**
 * Stop 停止缓存
 *
 * 重复调用直接返回
 */
func (c *MemoryCache[K, V]) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	clear(c.items)
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	logger.Debug("内存缓存已停止", zap.Float64("hit_rate", c.stats.HitRate()))
}
