package platform

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	"golang.org/x/mod/semver"
)

// DefaultMinOSVersion 权限 API 可用的最低 macOS 版本
const DefaultMinOSVersion = "10.15"

// OSVersionDetector 系统版本探测接口
type OSVersionDetector interface {
	// DetectOSVersion 返回当前 macOS 版本，例如 "14.2.1"
	DetectOSVersion(ctx context.Context) (string, error)
}

// HostVersionDetector 基于 gopsutil 的系统版本探测
type HostVersionDetector struct{}

// NewOSVersionDetector 创建系统版本探测器
func NewOSVersionDetector() OSVersionDetector {
	return HostVersionDetector{}
}

// DetectOSVersion 返回当前 macOS 版本
//
// 非 macOS 平台返回 ErrUnsupportedPlatform。
func (HostVersionDetector) DetectOSVersion(ctx context.Context) (string, error) {
	if runtime.GOOS != "darwin" {
		return "", ErrUnsupportedPlatform
	}

	_, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("读取系统版本失败: %w", err)
	}
	if version == "" {
		return "", fmt.Errorf("读取系统版本失败: empty version")
	}
	return version, nil
}

// IsVersionAtLeast 判断 current 是否不低于 minimum
//
// 版本号格式为 "10.15"、"14.2.1" 等点分数字。
func IsVersionAtLeast(current, minimum string) (bool, error) {
	cur, err := canonicalVersion(current)
	if err != nil {
		return false, err
	}
	floor, err := canonicalVersion(minimum)
	if err != nil {
		return false, err
	}
	return semver.Compare(cur, floor) >= 0, nil
}

// canonicalVersion 将 macOS 版本号转换为 semver 形式（v 前缀）
func canonicalVersion(version string) (string, error) {
	v := "v" + strings.TrimPrefix(strings.TrimSpace(version), "v")
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid version: %q", version)
	}
	return v, nil
}
