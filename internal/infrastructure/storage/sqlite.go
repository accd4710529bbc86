/**
 * Package storage 提供本地持久化
 *
 * 保存应用设置（例如首次安装标记）和权限状态变化记录
 */

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite 驱动
	"github.com/openmtp/permbridge/pkg/logger"
	"go.uber.org/zap"
)

// MemoryPath 内存数据库路径
const MemoryPath = ":memory:"

/**
 * SQLiteConfig SQLite 配置
 */
type SQLiteConfig struct {
	// Path 数据库文件路径，":memory:" 表示内存数据库
	Path string `yaml:"path"`

	// MaxOpenConns 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConnMaxLifetime 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

/**
 * NewSQLiteDB 创建 SQLite 数据库连接
 *
 * 文件数据库会自动创建父目录并开启 WAL 模式
 *
 * Parameters:
 *   - config: SQLite 配置
 *
 * Returns: *sql.DB - 数据库连接实例, error - 错误信息
 */
func NewSQLiteDB(config SQLiteConfig) (*sql.DB, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("数据库路径不能为空")
	}

	logger.Info("创建 SQLite 数据库连接", zap.String("path", config.Path))

	inMemory := config.Path == MemoryPath
	dataSourceName := config.Path
	if inMemory {
		// 共享缓存让连接池内的连接看到同一个库
		dataSourceName = "file::memory:?mode=memory&cache=shared"
	} else if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if !inMemory {
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA busy_timeout=5000",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("执行 %s 失败: %w", pragma, err)
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接验证失败: %w", err)
	}

	logger.Debug("SQLite 数据库连接成功", zap.Bool("in_memory", inMemory))
	return db, nil
}
