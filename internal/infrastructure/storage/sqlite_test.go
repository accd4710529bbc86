package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSQLiteConfig 临时目录下的数据库配置
func testSQLiteConfig(t *testing.T) *SQLiteConfig {
	t.Helper()
	return &SQLiteConfig{
		Path:            filepath.Join(t.TempDir(), "nested", "openmtp.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}
}

// TestNewSQLiteDB 测试创建 SQLite 数据库连接
//
// 父目录不存在时自动创建，并开启 WAL 模式
func TestNewSQLiteDB(t *testing.T) {
	config := testSQLiteConfig(t)

	db, err := NewSQLiteDB(*config)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
	assert.FileExists(t, config.Path)
}

// TestNewSQLiteDB_EmptyPath 测试空路径
func TestNewSQLiteDB_EmptyPath(t *testing.T) {
	_, err := NewSQLiteDB(SQLiteConfig{})
	assert.Error(t, err)
}

// TestNewSQLiteDB_MemoryDatabase 测试内存数据库
func TestNewSQLiteDB_MemoryDatabase(t *testing.T) {
	db, err := NewSQLiteDB(SQLiteConfig{Path: MemoryPath, MaxOpenConns: 1})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping())
}

// TestRunMigrations 测试数据库迁移
func TestRunMigrations(t *testing.T) {
	db, err := NewSQLiteDB(*testSQLiteConfig(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(db))

	for _, table := range []string{"schema_migrations", "settings", "permission_history"} {
		var count int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "表 %s 应该存在", table)
	}

	var version int
	require.NoError(t, db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, len(migrations), version)
}
