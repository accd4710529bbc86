//go:build !darwin

package platform

// StubPermissions 非 macOS 平台的原生权限实现
// 所有调用都返回 ErrUnsupportedPlatform
type StubPermissions struct{}

// NewNativePermissions 创建 stub 实现
// Returns: NativePermissions - stub 实现
func NewNativePermissions() NativePermissions {
	return &StubPermissions{}
}

// AuthStatus 始终返回 ErrUnsupportedPlatform
func (p *StubPermissions) AuthStatus(capability Capability) (PermissionStatus, error) {
	return PermissionStatusUnsupported, ErrUnsupportedPlatform
}

// AskForFullDiskAccess 始终返回 ErrUnsupportedPlatform
func (p *StubPermissions) AskForFullDiskAccess() error {
	return ErrUnsupportedPlatform
}

// AskForFolderAccess 始终返回 ErrUnsupportedPlatform
func (p *StubPermissions) AskForFolderAccess(capability Capability) (PermissionStatus, error) {
	return PermissionStatusUnsupported, ErrUnsupportedPlatform
}

// OpenSettings 始终返回 ErrUnsupportedPlatform
func (p *StubPermissions) OpenSettings(capability Capability) error {
	return ErrUnsupportedPlatform
}
