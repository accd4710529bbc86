package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseCapability 测试权限能力解析
func TestParseCapability(t *testing.T) {
	for _, c := range Capabilities() {
		parsed, err := ParseCapability(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, err := ParseCapability("camera")
	assert.ErrorIs(t, err, ErrUnknownCapability)

	_, err = ParseCapability("")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

// TestCapability_IsFolder 测试目录级权限判断
func TestCapability_IsFolder(t *testing.T) {
	assert.False(t, CapabilityFullDiskAccess.IsFolder())
	assert.True(t, CapabilityDesktop.IsFolder())
	assert.True(t, CapabilityPictures.IsFolder())
	assert.False(t, Capability("camera").IsFolder())
}

// TestPermissionStatus_String 测试状态字符串与解析
//
// "not determined" 与原生接口一致，解析时也接受下划线形式。
func TestPermissionStatus_String(t *testing.T) {
	tests := []struct {
		status PermissionStatus
		want   string
	}{
		{PermissionStatusAuthorized, "authorized"},
		{PermissionStatusDenied, "denied"},
		{PermissionStatusNotDetermined, "not determined"},
		{PermissionStatusRestricted, "restricted"},
		{PermissionStatusUnsupported, "unsupported"},
		{PermissionStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}

	status, err := ParsePermissionStatus("not_determined")
	require.NoError(t, err)
	assert.Equal(t, PermissionStatusNotDetermined, status)

	status, err = ParsePermissionStatus("bogus")
	assert.Error(t, err)
	assert.Equal(t, PermissionStatusDenied, status)
}

// TestPermissionStatus_IsAuthorized 测试宽松授权判断
func TestPermissionStatus_IsAuthorized(t *testing.T) {
	assert.True(t, PermissionStatusAuthorized.IsAuthorized())
	assert.True(t, PermissionStatusUnsupported.IsAuthorized())
	assert.False(t, PermissionStatusDenied.IsAuthorized())
	assert.False(t, PermissionStatusNotDetermined.IsAuthorized())
	assert.False(t, PermissionStatusRestricted.IsAuthorized())
}

// TestSettingsURL 测试系统设置 URL 映射
func TestSettingsURL(t *testing.T) {
	url, err := settingsURL(CapabilityFullDiskAccess)
	require.NoError(t, err)
	assert.Contains(t, url, "Privacy_AllFiles")

	url, err = settingsURL(CapabilityDownloads)
	require.NoError(t, err)
	assert.Contains(t, url, "Privacy_FilesAndFolders")

	_, err = settingsURL("camera")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

// TestFolderPath 测试目录路径映射
func TestFolderPath(t *testing.T) {
	path, err := folderPath("/Users/test", CapabilityDocuments)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/Users/test", "Documents"), path)

	_, err = folderPath("/Users/test", CapabilityFullDiskAccess)
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

// TestProbeDir 测试目录探测
func TestProbeDir(t *testing.T) {
	t.Run("可读目录", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))

		status, err := probeDir(dir)
		require.NoError(t, err)
		assert.Equal(t, PermissionStatusAuthorized, status)
	})

	t.Run("空目录", func(t *testing.T) {
		status, err := probeDir(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, PermissionStatusAuthorized, status)
	})

	t.Run("不存在的目录", func(t *testing.T) {
		status, err := probeDir(filepath.Join(t.TempDir(), "missing"))
		assert.Error(t, err)
		assert.Equal(t, PermissionStatusDenied, status)
	})

	t.Run("无权限目录", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root 用户不受文件权限限制")
		}
		dir := filepath.Join(t.TempDir(), "locked")
		require.NoError(t, os.Mkdir(dir, 0o000))
		defer os.Chmod(dir, 0o755)

		status, err := probeDir(dir)
		require.NoError(t, err)
		assert.Equal(t, PermissionStatusDenied, status)
	})
}

// TestProbeFile 测试文件探测
func TestProbeFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "TCC.db")
	require.NoError(t, os.WriteFile(file, []byte("db"), 0o600))

	status, err := probeFile(file)
	require.NoError(t, err)
	assert.Equal(t, PermissionStatusAuthorized, status)

	if os.Geteuid() != 0 {
		require.NoError(t, os.Chmod(file, 0o000))
		status, err = probeFile(file)
		require.NoError(t, err)
		assert.Equal(t, PermissionStatusDenied, status)
	}
}

// TestIsVersionAtLeast 测试版本比较
func TestIsVersionAtLeast(t *testing.T) {
	tests := []struct {
		current string
		minimum string
		want    bool
	}{
		{"14.2.1", "10.15", true},
		{"10.15", "10.15", true},
		{"10.15.7", "10.15", true},
		{"10.14.6", "10.15", false},
		{"11.0", "10.15", true},
		{"10.9", "10.15", false},
	}

	for _, tt := range tests {
		t.Run(tt.current+">="+tt.minimum, func(t *testing.T) {
			got, err := IsVersionAtLeast(tt.current, tt.minimum)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := IsVersionAtLeast("not-a-version", "10.15")
	assert.Error(t, err)
}
