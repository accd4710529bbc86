/**
 * Package logger 提供结构化日志功能
 *
 * 基于 uber-go/zap 实现的结构化日志系统。
 * 支持开发环境和生产环境的不同配置，文件输出通过 lumberjack 滚动。
 */
package logger

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// logger 全局日志实例
	logger *zap.Logger

	// once 确保日志只初始化一次
	once sync.Once

	// sugar 全局 sugared logger 实例
	sugar *zap.SugaredLogger
)

// Options 日志初始化选项
//
// 一般由配置文件的 logging 段转换而来，零值字段使用环境变量或默认值。
type Options struct {
	// Env 环境类型（development/production）
	Env string

	// Level 日志级别（debug/info/warn/error）
	Level string

	// File 日志文件路径，为空时只输出到控制台
	File string

	// MaxSizeMB 单个日志文件最大大小（MB）
	MaxSizeMB int

	// MaxBackups 最大保留的旧文件数量
	MaxBackups int

	// MaxAgeDays 旧文件最大保留天数
	MaxAgeDays int

	// Compress 是否压缩旧文件
	Compress bool
}

// optionsFromEnv 从环境变量读取日志选项
//
// 环境变量：
//   - ENV: 环境类型，默认 development
//   - LOG_LEVEL: 日志级别，默认根据环境自动设置
//   - LOG_FILE: 日志文件路径
//   - LOG_MAX_SIZE / LOG_MAX_BACKUPS / LOG_MAX_AGE / LOG_COMPRESS: 滚动参数
func optionsFromEnv() Options {
	return Options{
		Env:        getEnv("ENV", "development"),
		Level:      getEnv("LOG_LEVEL", ""),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  getEnvInt("LOG_MAX_SIZE", 100),
		MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		MaxAgeDays: getEnvInt("LOG_MAX_AGE", 28),
		Compress:   getEnvBool("LOG_COMPRESS", false),
	}
}

// InitLogger 初始化日志系统
//
// 根据环境变量配置日志系统：
//   - 开发环境：控制台彩色输出，Debug 级别
//   - 生产环境：JSON 格式，Info 级别
//
// Returns: error - 初始化失败时返回错误
func InitLogger() error {
	return InitWithOptions(optionsFromEnv())
}

// InitWithOptions 使用显式选项初始化日志系统
//
// 与 InitLogger 一样只生效一次，后续调用直接返回。
//
// Parameters:
//   - opts: 日志选项
//
// Returns: error - 初始化失败时返回错误
func InitWithOptions(opts Options) error {
	var initErr error
	once.Do(func() {
		if opts.Env == "production" {
			logger, initErr = initProductionLogger(opts)
		} else {
			logger, initErr = initDevelopmentLogger(opts)
		}

		if initErr != nil {
			return
		}

		sugar = logger.Sugar()
	})

	return initErr
}

// initDevelopmentLogger 初始化开发环境日志
//
// 开发环境配置：
//   - 控制台彩色输出
//   - Debug 级别
//   - 友好的时间格式（2024-01-29 15:04:05.123）
//   - 指定文件时同时写入滚动文件
func initDevelopmentLogger(opts Options) (*zap.Logger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    "",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.999"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	level := parseLevel(opts.Level, zapcore.DebugLevel)

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stdout),
			level,
		),
	}

	if opts.File != "" {
		fileEncoder := encoderConfig
		fileEncoder.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(fileEncoder),
			zapcore.AddSync(newRotatingWriter(opts)),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.Development()), nil
}

// initProductionLogger 初始化生产环境日志
//
// 生产环境配置：
//   - JSON 格式（机器可解析）
//   - Info 级别
//   - 指定文件时输出到 lumberjack 滚动文件，否则输出到 stdout
func initProductionLogger(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	level := parseLevel(opts.Level, zapcore.InfoLevel)

	var sink zapcore.WriteSyncer
	if opts.File != "" {
		sink = zapcore.AddSync(newRotatingWriter(opts))
	} else {
		sink = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(config.EncoderConfig),
		sink,
		level,
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// newRotatingWriter 创建滚动日志写入器
func newRotatingWriter(opts Options) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
}

// parseLevel 解析日志级别，失败时使用默认值
func parseLevel(level string, fallback zapcore.Level) zap.AtomicLevel {
	if level == "" {
		return zap.NewAtomicLevelAt(fallback)
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return zap.NewAtomicLevelAt(fallback)
	}
	return zap.NewAtomicLevelAt(parsed)
}

// GetLogger 获取全局 logger 实例
//
// 如果日志系统未初始化，会自动初始化（读取环境变量）。
//
// Returns: *zap.Logger - 全局 logger 实例
func GetLogger() *zap.Logger {
	if logger == nil {
		if err := InitLogger(); err != nil || logger == nil {
			return zap.NewNop()
		}
	}
	return logger
}

// GetSugaredLogger 获取全局 sugared logger 实例
//
// Returns: *zap.SugaredLogger - 全局 sugared logger 实例
func GetSugaredLogger() *zap.SugaredLogger {
	if sugar == nil {
		_ = InitLogger()
		if sugar == nil {
			return zap.NewNop().Sugar()
		}
	}
	return sugar
}

// Sync 刷新日志缓冲区
//
// 应用退出前应该调用此方法确保所有日志都已写入。
func Sync() error {
	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Debug 记录 Debug 级别日志
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Info 记录 Info 级别日志
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Warn 记录 Warn 级别日志
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error 记录 Error 级别日志
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal 记录 Fatal 级别日志后退出程序
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// With 创建带有预设字段的 logger
//
// 各组件用它生成自己的 logger，例如 logger.With(zap.String("component", "prober"))。
//
// Parameters:
//   - fields: 预设的日志字段
//
// Returns: *zap.Logger - 带有预设字段的 logger
func With(fields ...zap.Field) *zap.Logger {
	return GetLogger().With(fields...)
}

// getEnv 获取环境变量，不存在时返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整数环境变量，无法解析时返回默认值
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getEnvBool 获取布尔环境变量
//
// 接受 true/1/yes 与 false/0/no（大小写不敏感），其他值返回默认值。
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
