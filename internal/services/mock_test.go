package services

import (
	"context"
	"sync"

	"github.com/openmtp/permbridge/internal/infrastructure/platform"
)

// MockNativePermissions 模拟原生权限接口
//
// 记录每次调用，可以配置返回错误、panic 或阻塞。
type MockNativePermissions struct {
	// statuses 各能力的权限状态
	statuses map[platform.Capability]platform.PermissionStatus

	// err 非 nil 时所有调用返回该错误
	err error

	// panicValue 非 nil 时所有调用 panic
	panicValue interface{}

	// block 非 nil 时调用阻塞到通道关闭
	block chan struct{}

	// calls 调用记录，格式为 "方法:能力"
	calls []string

	mu sync.Mutex
}

// NewMockNativePermissions 创建模拟原生权限接口
func NewMockNativePermissions() *MockNativePermissions {
	return &MockNativePermissions{
		statuses: make(map[platform.Capability]platform.PermissionStatus),
	}
}

// SetStatus 设置权限状态
func (m *MockNativePermissions) SetStatus(capability platform.Capability, status platform.PermissionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[capability] = status
}

// SetError 设置调用错误
func (m *MockNativePermissions) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls 返回调用记录副本
func (m *MockNativePermissions) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockNativePermissions) enter(method string, capability platform.Capability) (platform.PermissionStatus, error) {
	m.mu.Lock()
	m.calls = append(m.calls, method+":"+capability.String())
	status, ok := m.statuses[capability]
	if !ok {
		status = platform.PermissionStatusNotDetermined
	}
	err, panicValue, block := m.err, m.panicValue, m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if panicValue != nil {
		panic(panicValue)
	}
	return status, err
}

func (m *MockNativePermissions) AuthStatus(capability platform.Capability) (platform.PermissionStatus, error) {
	return m.enter("AuthStatus", capability)
}

func (m *MockNativePermissions) AskForFullDiskAccess() error {
	_, err := m.enter("AskForFullDiskAccess", platform.CapabilityFullDiskAccess)
	return err
}

func (m *MockNativePermissions) AskForFolderAccess(capability platform.Capability) (platform.PermissionStatus, error) {
	return m.enter("AskForFolderAccess", capability)
}

func (m *MockNativePermissions) OpenSettings(capability platform.Capability) error {
	_, err := m.enter("OpenSettings", capability)
	return err
}

// fixedVersionDetector 返回固定版本号的检测器
type fixedVersionDetector struct {
	version string
	err     error

	calls int
	mu    sync.Mutex
}

func (d *fixedVersionDetector) DetectOSVersion(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.version, d.err
}

// MockProber 模拟权限探测器，用于工作流测试
type MockProber struct {
	status        platform.PermissionStatus
	requestStatus platform.PermissionStatus
	openErr       error

	// requestGate 非 nil 时 RequestAccess 阻塞到它关闭，模拟用户尚未响应的授权框
	requestGate chan struct{}

	checks       int
	invalidated  int
	requests     []platform.Capability
	openSettings []platform.Capability

	mu sync.Mutex
}

func (p *MockProber) SetStatus(status platform.PermissionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func (p *MockProber) IsSupported() bool { return true }

func (p *MockProber) CheckStatus(capability platform.Capability) platform.PermissionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	return p.status
}

func (p *MockProber) RequestAccess(capability platform.Capability) platform.PermissionStatus {
	p.mu.Lock()
	p.requests = append(p.requests, capability)
	gate := p.requestGate
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestStatus
}

func (p *MockProber) SetRequestStatus(status platform.PermissionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requestStatus = status
}

func (p *MockProber) OpenSettings(capability platform.Capability) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openSettings = append(p.openSettings, capability)
	return p.openErr
}

func (p *MockProber) InvalidateCache(capability platform.Capability) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidated++
}

func (p *MockProber) counts() (checks, invalidated int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checks, p.invalidated
}

func (p *MockProber) requested() []platform.Capability {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.Capability(nil), p.requests...)
}

func (p *MockProber) opened() []platform.Capability {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]platform.Capability(nil), p.openSettings...)
}
