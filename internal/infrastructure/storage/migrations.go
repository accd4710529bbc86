package storage

import (
	"database/sql"
	"fmt"

	"github.com/openmtp/permbridge/pkg/logger"
	"go.uber.org/zap"
)

/**
 * Migration 数据库迁移
 */
type Migration struct {
	// Version 迁移版本号
	Version int

	// Name 迁移名称
	Name string

	// SQL 迁移 SQL 语句
	SQL string
}

// 所有迁移脚本（按版本号排序）
var migrations = []Migration{
	{
		Version: 1,
		Name:    "init_settings_table",
		SQL: `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value JSON,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		Version: 2,
		Name:    "init_permission_history_table",
		SQL: `
CREATE TABLE IF NOT EXISTS permission_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT UNIQUE NOT NULL,
    capability TEXT NOT NULL,
    status TEXT NOT NULL,
    is_authorized BOOLEAN NOT NULL,
    seq INTEGER NOT NULL DEFAULT 0,
    observed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_permission_history_observed ON permission_history(observed_at);
CREATE INDEX IF NOT EXISTS idx_permission_history_capability ON permission_history(capability);
`,
	},
}

/**
 * RunMigrations 执行数据库迁移
 *
 * 每个迁移在独立事务中执行，已应用的版本会被跳过
 *
 * Parameters:
 *   - db: 数据库连接
 *
 * Returns: error - 错误信息
 */
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`); err != nil {
		return fmt.Errorf("创建迁移记录表失败: %w", err)
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := applyMigration(db, migration); err != nil {
			return err
		}
		logger.Info("迁移应用成功",
			zap.Int("version", migration.Version),
			zap.String("name", migration.Name),
		)
	}

	return nil
}

func appliedVersions(db *sql.DB) (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("查询迁移版本失败: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("扫描迁移版本失败: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历迁移版本失败: %w", err)
	}
	return applied, nil
}

func applyMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return fmt.Errorf("执行迁移 %s 失败: %w", migration.Name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return fmt.Errorf("记录迁移版本失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", migration.Name, err)
	}
	return nil
}
