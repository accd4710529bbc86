//go:build darwin

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DarwinPermissions macOS 平台的原生权限实现
//
// 完全磁盘访问通过打开系统级 TCC 数据库判断；目录权限优先读取用户级
// TCC 数据库，只有请求授权时才实际读取目录。通过 x-apple.systempreferences
// URL 打开系统设置。
type DarwinPermissions struct {
	// homeDir 用户家目录
	homeDir string

	// tccDatabase 用于探测完全磁盘访问的受保护文件
	tccDatabase string

	// userTCCDatabase 记录目录授权的用户级 TCC 数据库
	userTCCDatabase string

	// bundleID TCC 记录中的客户端标识
	bundleID string

	// open 打开 URL 的函数
	open func(url string) error

	// decided 用户已经对授权框做出选择的目录
	decided map[Capability]bool
	mu      sync.Mutex
}

// NewNativePermissions 创建 macOS 平台的原生权限实现
// Returns: NativePermissions - macOS 平台实现
func NewNativePermissions() NativePermissions {
	homeDir, _ := os.UserHomeDir()
	return &DarwinPermissions{
		homeDir:         homeDir,
		tccDatabase:     systemTCCDatabase,
		userTCCDatabase: filepath.Join(homeDir, userTCCDatabase),
		bundleID:        DefaultBundleID,
		open:            openURL,
		decided:         make(map[Capability]bool),
	}
}

// AuthStatus 查询权限状态，不会弹出系统授权框
func (p *DarwinPermissions) AuthStatus(capability Capability) (PermissionStatus, error) {
	switch {
	case capability == CapabilityFullDiskAccess:
		return probeFile(p.tccDatabase)

	case capability.IsFolder():
		path, err := folderPath(p.homeDir, capability)
		if err != nil {
			return PermissionStatusDenied, err
		}
		return folderStatus(p.userTCCDatabase, p.bundleID, capability, path, p.isDecided(capability))

	default:
		return PermissionStatusDenied, fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
}

// AskForFullDiskAccess 打开完全磁盘访问设置页
func (p *DarwinPermissions) AskForFullDiskAccess() error {
	return p.OpenSettings(CapabilityFullDiskAccess)
}

// AskForFolderAccess 请求目录访问权限
//
// 首次读取受保护目录时系统会弹出授权对话框，读取会阻塞到用户做出选择。
func (p *DarwinPermissions) AskForFolderAccess(capability Capability) (PermissionStatus, error) {
	if !capability.IsFolder() {
		return PermissionStatusDenied, fmt.Errorf("%w: %q is not a folder", ErrUnknownCapability, capability)
	}
	path, err := folderPath(p.homeDir, capability)
	if err != nil {
		return PermissionStatusDenied, err
	}

	status, err := probeDir(path)
	if err == nil {
		p.markDecided(capability)
	}
	return status, err
}

func (p *DarwinPermissions) isDecided(capability Capability) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decided[capability]
}

func (p *DarwinPermissions) markDecided(capability Capability) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decided == nil {
		p.decided = make(map[Capability]bool)
	}
	p.decided[capability] = true
}

// OpenSettings 打开系统设置中的对应权限页面
func (p *DarwinPermissions) OpenSettings(capability Capability) error {
	url, err := settingsURL(capability)
	if err != nil {
		return err
	}
	return p.open(url)
}
