package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openmtp/permbridge/internal/infrastructure/storage"
	"github.com/openmtp/permbridge/pkg/logger"
	"go.uber.org/zap"
)

// freshInstallKey 首次安装标记在设置中的键
const freshInstallKey = "freshInstall"

// FreshInstallState 首次安装判定结果
type FreshInstallState struct {
	// IsFreshInstall 1 表示首次安装（或标记被重置），0 表示非首次
	IsFreshInstall int `json:"isFreshInstall"`

	// AllowWritingJSON 是否需要把设置同步写出到 JSON 文件
	AllowWritingJSON bool `json:"allowWritingJson"`
}

// FreshInstallService 首次安装跟踪
//
// 标记取值：缺失 -> 刚安装；1 -> 第二次启动；-1 -> 被重置；0 -> 已多次启动。
type FreshInstallService struct {
	settings storage.SettingsRepository
	log      *zap.Logger
}

// NewFreshInstallService 创建首次安装服务
func NewFreshInstallService(settings storage.SettingsRepository) *FreshInstallService {
	return &FreshInstallService{
		settings: settings,
		log:      logger.With(zap.String("component", "fresh_install")),
	}
}

/**
 * Resolve 根据已保存的标记计算本次启动的状态
 *
 * 除已多次启动的情况外，计算结果会写回设置。
 *
 * Returns:
 *   - FreshInstallState: 判定结果
 *   - error: 读写设置失败
 */
func (s *FreshInstallService) Resolve(ctx context.Context) (FreshInstallState, error) {
	var stored interface{}
	err := s.settings.Get(ctx, freshInstallKey, &stored)

	var state FreshInstallState
	switch {
	case errors.Is(err, storage.ErrSettingNotFound):
		state.IsFreshInstall = 1
	case err != nil:
		return state, fmt.Errorf("读取首次安装标记失败: %w", err)
	default:
		value, isNumber := stored.(float64)
		switch {
		case isNumber && value == 1:
			state.IsFreshInstall = 0
		case isNumber && value == -1:
			state.IsFreshInstall = 1
		default:
			state.AllowWritingJSON = true
			s.log.Debug("非首次启动", zap.Any("stored", stored))
			return state, nil
		}
	}

	if err := s.settings.Set(ctx, freshInstallKey, state.IsFreshInstall); err != nil {
		return state, fmt.Errorf("保存首次安装标记失败: %w", err)
	}

	s.log.Info("首次安装标记已更新", zap.Int("is_fresh_install", state.IsFreshInstall))
	return state, nil
}

// Reset 重置首次安装标记，下次启动视为首次安装
func (s *FreshInstallService) Reset(ctx context.Context) error {
	return s.settings.Set(ctx, freshInstallKey, -1)
}

/**
 * ExportJSON 把全部设置写出到 JSON 文件
 *
 * 先写临时文件再重命名，避免写到一半的文件被读取。
 *
 * Parameters:
 *   - path: 目标文件路径
 */
func (s *FreshInstallService) ExportJSON(ctx context.Context, path string) error {
	all, err := s.settings.All(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化设置失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建设置目录失败: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入设置文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("写入设置文件失败: %w", err)
	}

	s.log.Debug("设置已导出", zap.String("path", path), zap.Int("count", len(all)))
	return nil
}
