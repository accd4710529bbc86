package platform

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
)

// systemTCCDatabase 系统级 TCC 数据库路径
// 只有拥有完全磁盘访问权限的进程才能打开
const systemTCCDatabase = "/Library/Application Support/com.apple.TCC/TCC.db"

// folderNames 目录权限对应的家目录子目录
var folderNames = map[Capability]string{
	CapabilityDesktop:   "Desktop",
	CapabilityDocuments: "Documents",
	CapabilityDownloads: "Downloads",
	CapabilityMusic:     "Music",
	CapabilityPictures:  "Pictures",
}

// folderPath 返回目录权限对应的绝对路径
func folderPath(homeDir string, capability Capability) (string, error) {
	name, ok := folderNames[capability]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, capability)
	}
	return filepath.Join(homeDir, name), nil
}

// probeFile 通过打开受保护文件判断访问权限
//
// 打开成功视为已授权，EPERM/EACCES 视为被拒绝，其余错误原样返回。
func probeFile(path string) (PermissionStatus, error) {
	f, err := os.Open(path)
	if err != nil {
		return classifyAccessError(path, err)
	}
	_ = f.Close()
	return PermissionStatusAuthorized, nil
}

// probeDir 通过读取目录项判断目录访问权限
//
// 受 TCC 保护的目录可以打开，但读取目录项会被拒绝，所以必须实际读取一次。
func probeDir(path string) (PermissionStatus, error) {
	f, err := os.Open(path)
	if err != nil {
		return classifyAccessError(path, err)
	}
	defer f.Close()

	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return classifyAccessError(path, err)
	}
	return PermissionStatusAuthorized, nil
}

// classifyAccessError 将文件系统错误映射为权限状态
func classifyAccessError(path string, err error) (PermissionStatus, error) {
	if errors.Is(err, fs.ErrPermission) {
		return PermissionStatusDenied, nil
	}
	return PermissionStatusDenied, fmt.Errorf("probe %s: %w", path, err)
}

// openURL 使用 open 命令打开 URL，不等待命令结束
func openURL(url string) error {
	cmd := exec.Command("open", url)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("打开系统设置失败: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
