package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

/**
 * PermissionRecord 一次权限状态观测
 */
type PermissionRecord struct {
	ID           string
	Capability   string
	Status       string
	IsAuthorized bool
	Seq          uint64
	ObservedAt   time.Time
}

/**
 * HistoryRepository 权限状态历史存储
 *
 * 只记录状态变化，用于排查用户反馈的权限问题
 */
type HistoryRepository interface {
	// Save 保存一条记录
	Save(ctx context.Context, record PermissionRecord) error

	// Latest 查询某个能力最近一条记录，没有记录时返回 nil
	Latest(ctx context.Context, capability string) (*PermissionRecord, error)

	// FindRecent 查询最近的记录（按时间倒序）
	FindRecent(ctx context.Context, limit int) ([]PermissionRecord, error)

	// DeleteOlderThan 删除旧数据
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

/**
 * SQLiteHistoryRepository SQLite 权限历史实现
 */
type SQLiteHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteHistoryRepository 创建权限历史存储
func NewSQLiteHistoryRepository(db *sql.DB) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db}
}

/**
 * Save 保存一条记录
 *
 * ID 为空时自动生成，ObservedAt 为零值时使用当前时间
 */
func (r *SQLiteHistoryRepository) Save(ctx context.Context, record PermissionRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.ObservedAt.IsZero() {
		record.ObservedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permission_history (uuid, capability, status, is_authorized, seq, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, record.ID, record.Capability, record.Status, record.IsAuthorized, int64(record.Seq), record.ObservedAt.UTC())
	if err != nil {
		return fmt.Errorf("保存权限记录失败: %w", err)
	}
	return nil
}

// Latest 查询某个能力最近一条记录
func (r *SQLiteHistoryRepository) Latest(ctx context.Context, capability string) (*PermissionRecord, error) {
	records, err := r.query(ctx, `
		SELECT uuid, capability, status, is_authorized, seq, observed_at
		FROM permission_history
		WHERE capability = ?
		ORDER BY observed_at DESC, id DESC
		LIMIT 1
	`, capability)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

/**
 * FindRecent 查询最近的记录
 *
 * limit <= 0 时返回空结果
 */
func (r *SQLiteHistoryRepository) FindRecent(ctx context.Context, limit int) ([]PermissionRecord, error) {
	if limit <= 0 {
		return []PermissionRecord{}, nil
	}
	return r.query(ctx, `
		SELECT uuid, capability, status, is_authorized, seq, observed_at
		FROM permission_history
		ORDER BY observed_at DESC, id DESC
		LIMIT ?
	`, limit)
}

// DeleteOlderThan 删除早于 cutoff 的记录
func (r *SQLiteHistoryRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM permission_history WHERE observed_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("删除旧权限记录失败: %w", err)
	}
	return result.RowsAffected()
}

func (r *SQLiteHistoryRepository) query(ctx context.Context, query string, args ...interface{}) ([]PermissionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询权限记录失败: %w", err)
	}
	defer rows.Close()

	records := []PermissionRecord{}
	for rows.Next() {
		var (
			record PermissionRecord
			seq    int64
		)
		if err := rows.Scan(&record.ID, &record.Capability, &record.Status, &record.IsAuthorized, &seq, &record.ObservedAt); err != nil {
			return nil, fmt.Errorf("扫描权限记录失败: %w", err)
		}
		record.Seq = uint64(seq)
		records = append(records, record)
	}
	return records, rows.Err()
}
