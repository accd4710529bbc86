/**
 * Package config 提供配置管理功能
 *
 * 从 ~/.openmtp/config.yaml 加载配置，文件不存在时使用默认值
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmtp/permbridge/internal/infrastructure/platform"
	"github.com/openmtp/permbridge/pkg/logger"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// 默认值
const (
	DefaultAppName       = "OpenMTP"
	DefaultCapability    = "full-disk-access"
	DefaultMinOSVersion  = "10.15"
	DefaultProbeSchedule = "@every 30s"
	DefaultProbeTimeout  = 5 * time.Second
	DefaultPromptTimeout = 2 * time.Minute
	DefaultCacheTTL      = 5 * time.Second
	DefaultHistoryDays   = 30
)

/**
 * Config 应用配置结构体
 */
type Config struct {
	// Application 应用基本配置
	Application ApplicationConfig `yaml:"application"`

	// Permission 权限检查配置
	Permission PermissionConfig `yaml:"permission"`

	// Storage 存储配置
	Storage StorageConfig `yaml:"storage"`

	// Logging 日志配置
	Logging LoggingConfig `yaml:"logging"`
}

/**
 * ApplicationConfig 应用基本配置
 */
type ApplicationConfig struct {
	/** 应用名称 */
	Name string `yaml:"name"`

	/** 应用版本 */
	Version string `yaml:"version"`

	/** 是否启用调试模式 */
	Debug bool `yaml:"debug"`
}

/**
 * PermissionConfig 权限检查配置
 */
type PermissionConfig struct {
	/** 需要检查的权限，例如 full-disk-access、documents */
	Capability string `yaml:"capability"`

	/** 提供权限 API 的最低 macOS 版本 */
	MinOSVersion string `yaml:"min_os_version"`

	/** 定期重新检查的 cron 表达式，为空时不定期检查 */
	ProbeSchedule string `yaml:"probe_schedule"`

	/** 单次原生查询超时 */
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	/** 等待用户响应授权弹窗的超时 */
	PromptTimeout time.Duration `yaml:"prompt_timeout"`

	/** 权限状态缓存有效期 */
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

/**
 * StorageConfig 存储配置
 */
type StorageConfig struct {
	/** SQLite 数据库路径 */
	Path string `yaml:"path"`

	/** 最大打开连接数 */
	MaxOpenConns int `yaml:"max_open_conns"`

	/** 权限历史保留天数，0 表示永久保留 */
	HistoryDays int `yaml:"history_days"`
}

/**
 * LoggingConfig 日志配置
 */
type LoggingConfig struct {
	/** 运行环境：development / production */
	Env string `yaml:"env"`

	/** 日志级别 */
	Level string `yaml:"level"`

	/** 文件配置 */
	File FileConfig `yaml:"file"`
}

/**
 * FileConfig 日志文件配置
 */
type FileConfig struct {
	/** 日志文件路径，为空时只输出到控制台 */
	Path string `yaml:"path"`

	/** 单个文件最大大小（MB） */
	MaxSizeMB int `yaml:"max_size_mb"`

	/** 最大备份文件数 */
	MaxBackups int `yaml:"max_backups"`

	/** 最大保留天数 */
	MaxAgeDays int `yaml:"max_age_days"`

	/** 是否压缩 */
	Compress bool `yaml:"compress"`
}

// Dir 返回配置目录 ~/.openmtp
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("获取用户主目录失败: %w", err)
	}
	return filepath.Join(homeDir, ".openmtp"), nil
}

/**
 * Load 加载配置文件
 *
 * 读取文件后先展开 ${VAR} 形式的环境变量，再解析 YAML。
 * 文件中缺失的字段使用默认值。
 *
 * Parameters:
 *   - path: 配置文件路径，为空时使用 ~/.openmtp/config.yaml
 *
 * Returns:
 *   - *Config: 加载的配置
 *   - error: 读取、解析或校验失败
 */
func Load(path string) (*Config, error) {
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config, err := LoadDefault()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	config.expandPaths()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

/**
 * LoadDefault 加载默认配置
 *
 * Returns:
 *   - *Config: 默认配置
 *   - error: 无法确定用户主目录时返回错误
 */
func LoadDefault() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	return &Config{
		Application: ApplicationConfig{
			Name:    DefaultAppName,
			Version: "1.0.0",
		},
		Permission: PermissionConfig{
			Capability:    DefaultCapability,
			MinOSVersion:  DefaultMinOSVersion,
			ProbeSchedule: DefaultProbeSchedule,
			ProbeTimeout:  DefaultProbeTimeout,
			PromptTimeout: DefaultPromptTimeout,
			CacheTTL:      DefaultCacheTTL,
		},
		Storage: StorageConfig{
			Path:         filepath.Join(dir, "openmtp.db"),
			MaxOpenConns: 4,
			HistoryDays:  DefaultHistoryDays,
		},
		Logging: LoggingConfig{
			Env:   "production",
			Level: "info",
			File: FileConfig{
				Path:       filepath.Join(dir, "logs", "openmtp.log"),
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}, nil
}

/**
 * Validate 校验配置
 *
 * Returns:
 *   - error: 第一个不合法的字段
 */
func (c *Config) Validate() error {
	if _, err := platform.ParseCapability(c.Permission.Capability); err != nil {
		return fmt.Errorf("permission.capability 不合法: %w", err)
	}

	if c.Permission.MinOSVersion == "" {
		return fmt.Errorf("permission.min_os_version 不能为空")
	}
	if c.Permission.ProbeSchedule != "" {
		if _, err := cron.ParseStandard(c.Permission.ProbeSchedule); err != nil {
			return fmt.Errorf("permission.probe_schedule 不合法: %w", err)
		}
	}
	if c.Permission.ProbeTimeout <= 0 {
		return fmt.Errorf("permission.probe_timeout 必须大于 0")
	}
	if c.Permission.PromptTimeout <= 0 {
		return fmt.Errorf("permission.prompt_timeout 必须大于 0")
	}
	if c.Permission.CacheTTL < 0 {
		return fmt.Errorf("permission.cache_ttl 不能为负数")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path 不能为空")
	}
	if c.Storage.HistoryDays < 0 {
		return fmt.Errorf("storage.history_days 不能为负数")
	}

	switch c.Logging.Env {
	case "development", "production":
	default:
		return fmt.Errorf("logging.env 不合法: %q", c.Logging.Env)
	}
	return nil
}

// LoggerOptions 转换为日志初始化参数
func (c *Config) LoggerOptions() logger.Options {
	level := c.Logging.Level
	if c.Application.Debug {
		level = "debug"
	}
	return logger.Options{
		Env:        c.Logging.Env,
		Level:      level,
		File:       c.Logging.File.Path,
		MaxSizeMB:  c.Logging.File.MaxSizeMB,
		MaxBackups: c.Logging.File.MaxBackups,
		MaxAgeDays: c.Logging.File.MaxAgeDays,
		Compress:   c.Logging.File.Compress,
	}
}

// expandPaths 展开路径中的 ~
func (c *Config) expandPaths() {
	c.Storage.Path = expandHome(c.Storage.Path)
	c.Logging.File.Path = expandHome(c.Logging.File.Path)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
