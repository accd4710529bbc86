package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSettingNotFound 设置项不存在
var ErrSettingNotFound = errors.New("setting not found")

// SettingsRepository 应用设置存储
//
// 值以 JSON 保存，数据库中的 NULL 与缺失的键一样返回 ErrSettingNotFound。
type SettingsRepository interface {
	// Get 读取设置，并反序列化到 dest
	Get(ctx context.Context, key string, dest interface{}) error

	// Set 写入设置
	Set(ctx context.Context, key string, value interface{}) error

	// All 读取全部设置
	All(ctx context.Context) (map[string]json.RawMessage, error)
}

// SQLiteSettingsRepository SQLite 设置存储实现
type SQLiteSettingsRepository struct {
	db *sql.DB
}

// NewSQLiteSettingsRepository 创建设置存储
func NewSQLiteSettingsRepository(db *sql.DB) *SQLiteSettingsRepository {
	return &SQLiteSettingsRepository{db: db}
}

// Get 读取设置
func (r *SQLiteSettingsRepository) Get(ctx context.Context, key string, dest interface{}) error {
	var raw sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSettingNotFound
	}
	if err != nil {
		return fmt.Errorf("读取设置 %s 失败: %w", key, err)
	}
	if !raw.Valid || raw.String == "null" {
		return ErrSettingNotFound
	}

	if err := json.Unmarshal([]byte(raw.String), dest); err != nil {
		return fmt.Errorf("解析设置 %s 失败: %w", key, err)
	}
	return nil
}

// Set 写入设置，已存在时覆盖
func (r *SQLiteSettingsRepository) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化设置 %s 失败: %w", key, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("写入设置 %s 失败: %w", key, err)
	}
	return nil
}

// All 读取全部设置
func (r *SQLiteSettingsRepository) All(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("查询设置失败: %w", err)
	}
	defer rows.Close()

	result := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			key string
			raw sql.NullString
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("扫描设置失败: %w", err)
		}
		if !raw.Valid {
			result[key] = json.RawMessage("null")
			continue
		}
		result[key] = json.RawMessage(raw.String)
	}
	return result, rows.Err()
}
