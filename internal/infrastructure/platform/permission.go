package platform

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedPlatform 当前平台不提供权限 API
	ErrUnsupportedPlatform = errors.New("permission api is only available on macOS")

	// ErrUnknownCapability 未知的权限能力标识
	ErrUnknownCapability = errors.New("unknown permission capability")
)

// Capability 权限能力枚举
//
// 标识需要检查的权限：完全磁盘访问或某个受保护的用户目录。
// 字符串形式是原生权限接口使用的稳定标识，不可更改。
type Capability string

const (
	// CapabilityFullDiskAccess 完全磁盘访问权限
	CapabilityFullDiskAccess Capability = "full-disk-access"

	// CapabilityDesktop 桌面目录
	CapabilityDesktop Capability = "desktop"

	// CapabilityDocuments 文稿目录
	CapabilityDocuments Capability = "documents"

	// CapabilityDownloads 下载目录
	CapabilityDownloads Capability = "downloads"

	// CapabilityMusic 音乐目录
	CapabilityMusic Capability = "music"

	// CapabilityPictures 图片目录
	CapabilityPictures Capability = "pictures"
)

// String 返回能力的字符串表示
func (c Capability) String() string {
	return string(c)
}

// IsFolder 是否为目录级权限
func (c Capability) IsFolder() bool {
	switch c {
	case CapabilityDesktop, CapabilityDocuments, CapabilityDownloads, CapabilityMusic, CapabilityPictures:
		return true
	default:
		return false
	}
}

// Capabilities 返回所有已知的权限能力
func Capabilities() []Capability {
	return []Capability{
		CapabilityFullDiskAccess,
		CapabilityDesktop,
		CapabilityDocuments,
		CapabilityDownloads,
		CapabilityMusic,
		CapabilityPictures,
	}
}

// ParseCapability 解析权限能力标识
//
// Parameters: s - 能力字符串，例如 "full-disk-access"
//
// Returns: Capability - 解析结果, error - 未知标识时返回 ErrUnknownCapability
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.TrimSpace(s))
	if c == CapabilityFullDiskAccess || c.IsFolder() {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCapability, s)
}

// PermissionStatus 权限状态枚举
//
// unsupported 表示系统版本早于权限 API，按已授权处理。
type PermissionStatus int

const (
	// PermissionStatusAuthorized 已授权
	PermissionStatusAuthorized PermissionStatus = iota

	// PermissionStatusDenied 被拒绝
	PermissionStatusDenied

	// PermissionStatusNotDetermined 用户尚未做出选择
	PermissionStatusNotDetermined

	// PermissionStatusRestricted 受限（例如被 MDM 策略禁止）
	PermissionStatusRestricted

	// PermissionStatusUnsupported 当前系统不支持权限查询
	PermissionStatusUnsupported
)

// String 返回权限状态的字符串表示
//
// 与原生权限接口的返回值保持一致，"not determined" 中间是空格。
func (s PermissionStatus) String() string {
	switch s {
	case PermissionStatusAuthorized:
		return "authorized"
	case PermissionStatusDenied:
		return "denied"
	case PermissionStatusNotDetermined:
		return "not determined"
	case PermissionStatusRestricted:
		return "restricted"
	case PermissionStatusUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// IsAuthorized 是否可以视为已授权
//
// unsupported 是宽松默认值，同样视为已授权。
func (s PermissionStatus) IsAuthorized() bool {
	return s == PermissionStatusAuthorized || s == PermissionStatusUnsupported
}

// ParsePermissionStatus 解析权限状态字符串
//
// 同时接受 "not determined" 和 "not_determined"。
func ParsePermissionStatus(s string) (PermissionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "authorized":
		return PermissionStatusAuthorized, nil
	case "denied":
		return PermissionStatusDenied, nil
	case "not determined", "not_determined":
		return PermissionStatusNotDetermined, nil
	case "restricted":
		return PermissionStatusRestricted, nil
	case "unsupported":
		return PermissionStatusUnsupported, nil
	default:
		return PermissionStatusDenied, fmt.Errorf("unknown permission status: %q", s)
	}
}

// NativePermissions 原生权限接口
//
// 对操作系统权限子系统（macOS TCC）的薄封装。
// 上层只通过该接口访问原生能力，可以替换为任意平台实现或测试桩。
type NativePermissions interface {
	// AuthStatus 查询权限状态，不触发系统弹窗
	AuthStatus(capability Capability) (PermissionStatus, error)

	// AskForFullDiskAccess 打开完全磁盘访问设置页
	// 系统没有提供完全磁盘访问的程序化授权弹窗
	AskForFullDiskAccess() error

	// AskForFolderAccess 触发目录访问授权弹窗并返回结果
	AskForFolderAccess(capability Capability) (PermissionStatus, error)

	// OpenSettings 打开对应权限的系统设置页
	OpenSettings(capability Capability) error
}

// settingsURL 返回权限对应的系统设置 URL
func settingsURL(capability Capability) (string, error) {
	switch {
	case capability == CapabilityFullDiskAccess:
		return "x-apple.systempreferences:com.apple.preference.security?Privacy_AllFiles", nil
	case capability.IsFolder():
		return "x-apple.systempreferences:com.apple.preference.security?Privacy_FilesAndFolders", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
}
