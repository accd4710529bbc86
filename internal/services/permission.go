package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openmtp/permbridge/internal/infrastructure/cache"
	"github.com/openmtp/permbridge/internal/infrastructure/platform"
	"github.com/openmtp/permbridge/pkg/logger"
	"go.uber.org/zap"
)

const (
	// DefaultProbeTimeout 单次原生查询的超时时间
	DefaultProbeTimeout = 5 * time.Second

	// DefaultPromptTimeout 等待用户响应系统授权弹窗的超时时间
	DefaultPromptTimeout = 2 * time.Minute

	// DefaultCacheTTL 权限状态缓存有效期
	DefaultCacheTTL = 5 * time.Second
)

// errProbeTimeout 原生调用超时
var errProbeTimeout = errors.New("native permission call timed out")

// Prober 权限探测器
//
// 所有方法都不会返回权限错误：失败一律按 denied 处理并记录一次日志。
type Prober interface {
	// IsSupported 当前系统版本是否提供权限 API
	IsSupported() bool

	// CheckStatus 查询权限状态，不触发系统弹窗
	CheckStatus(capability platform.Capability) platform.PermissionStatus

	// RequestAccess 请求授权
	RequestAccess(capability platform.Capability) platform.PermissionStatus

	// OpenSettings 打开对应权限的系统设置页
	OpenSettings(capability platform.Capability) error

	// InvalidateCache 丢弃缓存的权限状态
	InvalidateCache(capability platform.Capability)
}

// PermissionServiceConfig 权限服务配置
type PermissionServiceConfig struct {
	// MinOSVersion 提供权限 API 的最低系统版本
	MinOSVersion string

	// ProbeTimeout 单次原生查询超时
	ProbeTimeout time.Duration

	// PromptTimeout 授权弹窗超时
	PromptTimeout time.Duration

	// CacheTTL 权限状态缓存有效期，0 表示不缓存
	CacheTTL time.Duration
}

// DefaultPermissionServiceConfig 默认配置
func DefaultPermissionServiceConfig() PermissionServiceConfig {
	return PermissionServiceConfig{
		MinOSVersion:  platform.DefaultMinOSVersion,
		ProbeTimeout:  DefaultProbeTimeout,
		PromptTimeout: DefaultPromptTimeout,
		CacheTTL:      DefaultCacheTTL,
	}
}

// PermissionServiceOption 权限服务选项
type PermissionServiceOption func(*PermissionService)

// WithPermissionLogger 设置日志记录器
func WithPermissionLogger(l *zap.Logger) PermissionServiceOption {
	return func(s *PermissionService) {
		s.log = l
	}
}

// PermissionService 权限服务
//
// 对原生权限接口的容错封装：
//   - 系统版本早于权限 API 时不调用原生接口，直接返回 unsupported
//   - 原生调用出错、panic 或超时都视为 denied
//   - 查询结果短时间缓存
type PermissionService struct {
	native   platform.NativePermissions
	detector platform.OSVersionDetector
	cfg      PermissionServiceConfig

	// cache 能力 -> 最近一次查询结果
	cache *cache.MemoryCache[platform.Capability, platform.PermissionStatus]

	log *zap.Logger

	supportedOnce sync.Once
	supported     bool
}

// NewPermissionService 创建权限服务
//
// Parameters:
//   - native: 原生权限接口
//   - detector: 系统版本检测器
//   - cfg: 配置，零值字段使用默认值
//
// Returns: *PermissionService - 权限服务实例
func NewPermissionService(
	native platform.NativePermissions,
	detector platform.OSVersionDetector,
	cfg PermissionServiceConfig,
	opts ...PermissionServiceOption,
) *PermissionService {
	defaults := DefaultPermissionServiceConfig()
	if cfg.MinOSVersion == "" {
		cfg.MinOSVersion = defaults.MinOSVersion
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaults.ProbeTimeout
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = defaults.PromptTimeout
	}
	if cfg.CacheTTL < 0 {
		cfg.CacheTTL = 0
	}

	s := &PermissionService{
		native:   native,
		detector: detector,
		cfg:      cfg,
		cache:    cache.NewMemoryCache[platform.Capability, platform.PermissionStatus](len(platform.Capabilities()), 0),
		log:      logger.With(zap.String("component", "permission_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsSupported 当前系统版本是否提供权限 API
//
// 只检测一次；检测失败按不支持处理。
func (s *PermissionService) IsSupported() bool {
	s.supportedOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ProbeTimeout)
		defer cancel()

		version, err := s.detector.DetectOSVersion(ctx)
		if err != nil {
			s.log.Info("无法获取系统版本，跳过权限检查", zap.Error(err))
			return
		}

		ok, err := platform.IsVersionAtLeast(version, s.cfg.MinOSVersion)
		if err != nil {
			s.log.Warn("系统版本格式无法识别，跳过权限检查",
				zap.String("version", version),
				zap.Error(err),
			)
			return
		}
		s.supported = ok

		s.log.Debug("权限 API 支持检测",
			zap.String("version", version),
			zap.String("min_version", s.cfg.MinOSVersion),
			zap.Bool("supported", ok),
		)
	})
	return s.supported
}

// CheckStatus 查询权限状态
func (s *PermissionService) CheckStatus(capability platform.Capability) platform.PermissionStatus {
	if !s.IsSupported() {
		return platform.PermissionStatusUnsupported
	}

	if status, ok := s.cache.Get(capability); ok {
		s.log.Debug("权限状态（缓存）",
			zap.String("capability", capability.String()),
			zap.String("status", status.String()),
		)
		return status
	}

	status, err := callNative(s.cfg.ProbeTimeout, func() (platform.PermissionStatus, error) {
		return s.native.AuthStatus(capability)
	})
	if err != nil {
		s.log.Error("权限检查失败",
			zap.String("capability", capability.String()),
			zap.Error(err),
		)
		return platform.PermissionStatusDenied
	}

	if s.cfg.CacheTTL > 0 {
		s.cache.Set(capability, status, s.cfg.CacheTTL)
	}

	s.log.Debug("权限状态（检查）",
		zap.String("capability", capability.String()),
		zap.String("status", status.String()),
	)
	return status
}

// RequestAccess 请求授权
//
// 完全磁盘访问没有程序化的授权弹窗，只能打开设置页，返回打开后重新查询的状态。
// 目录权限会触发系统弹窗并等待用户选择。
func (s *PermissionService) RequestAccess(capability platform.Capability) platform.PermissionStatus {
	if !s.IsSupported() {
		return platform.PermissionStatusUnsupported
	}

	s.InvalidateCache(capability)

	if capability == platform.CapabilityFullDiskAccess {
		_, err := callNative(s.cfg.ProbeTimeout, func() (platform.PermissionStatus, error) {
			return platform.PermissionStatusNotDetermined, s.native.AskForFullDiskAccess()
		})
		if err != nil {
			s.log.Error("请求完全磁盘访问失败", zap.Error(err))
			return platform.PermissionStatusDenied
		}
		return s.CheckStatus(capability)
	}

	status, err := callNative(s.cfg.PromptTimeout, func() (platform.PermissionStatus, error) {
		return s.native.AskForFolderAccess(capability)
	})
	if err != nil {
		s.log.Error("请求目录访问失败",
			zap.String("capability", capability.String()),
			zap.Error(err),
		)
		return platform.PermissionStatusDenied
	}

	s.log.Info("目录访问授权结果",
		zap.String("capability", capability.String()),
		zap.String("status", status.String()),
	)
	return status
}

// OpenSettings 打开对应权限的系统设置页
//
// 不支持的系统上什么也不做。
func (s *PermissionService) OpenSettings(capability platform.Capability) error {
	if !s.IsSupported() {
		return nil
	}

	_, err := callNative(s.cfg.ProbeTimeout, func() (platform.PermissionStatus, error) {
		return platform.PermissionStatusNotDetermined, s.native.OpenSettings(capability)
	})
	if err != nil {
		return fmt.Errorf("open settings for %s: %w", capability, err)
	}
	return nil
}

// InvalidateCache 丢弃缓存的权限状态
func (s *PermissionService) InvalidateCache(capability platform.Capability) {
	s.cache.Delete(capability)
}

// Close 释放缓存资源
func (s *PermissionService) Close() {
	s.cache.Stop()
}

/**
 * callNative 在独立 goroutine 中调用原生接口
 *
 * 原生调用可能阻塞或 panic，超时后放弃等待（调用本身无法取消）。
 *
 * Parameters:
 *   - timeout: 最长等待时间
 *   - fn: 原生调用
 *
 * Returns:
 *   - PermissionStatus: 调用结果
 *   - error: 调用出错、panic 或超时
 */
func callNative(timeout time.Duration, fn func() (platform.PermissionStatus, error)) (platform.PermissionStatus, error) {
	type result struct {
		status platform.PermissionStatus
		err    error
	}

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{platform.PermissionStatusDenied, fmt.Errorf("native permission call panicked: %v", r)}
			}
		}()
		status, err := fn()
		done <- result{status, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.status, r.err
	case <-timer.C:
		return platform.PermissionStatusDenied, fmt.Errorf("%w after %s", errProbeTimeout, timeout)
	}
}
