/**
 * Package cache 提供带过期时间的内存缓存
 *
 * 权限探测结果在短时间内复用，避免频繁调用原生接口
 */

package cache

import (
	"sync/atomic"
	"time"
)

/**
 * Cache 缓存接口
 */
type Cache[K comparable, V any] interface {
	// Get 获取缓存值
	// Returns: V - 缓存值, bool - 是否命中（过期视为未命中）
	Get(key K) (V, bool)

	// Set 设置缓存值
	// Parameters:
	//   - key: 缓存键
	//   - value: 缓存值
	//   - ttl: 过期时间（0 表示永不过期）
	Set(key K, value V, ttl time.Duration)

	// Delete 删除缓存
	Delete(key K)

	// Clear 清空所有缓存
	Clear()

	// Count 获取缓存项数量（含尚未清理的过期项）
	Count() int

	// Stop 停止缓存（清理资源）
	Stop()
}

/**
 * Stats 缓存统计信息
 */
type Stats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
}

// Snapshot 统计快照
type Snapshot struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
}

func (s *Stats) recordHit()      { s.hits.Add(1) }
func (s *Stats) recordMiss()     { s.misses.Add(1) }
func (s *Stats) recordSet()      { s.sets.Add(1) }
func (s *Stats) recordDelete()   { s.deletes.Add(1) }
func (s *Stats) recordEviction() { s.evictions.Add(1) }

/**
 * Snapshot 获取统计信息快照
 */
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Deletes:   s.deletes.Load(),
		Evictions: s.evictions.Load(),
	}
}

/**
 * HitRate 计算缓存命中率
 * Returns: float64 - 命中率（0-1之间）
 */
func (s *Stats) HitRate() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

/**
 * Reset 重置统计信息
 */
func (s *Stats) Reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.sets.Store(0)
	s.deletes.Store(0)
	s.evictions.Store(0)
}
