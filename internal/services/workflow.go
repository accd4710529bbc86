package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openmtp/permbridge/internal/infrastructure/platform"
	"github.com/openmtp/permbridge/pkg/events"
	"github.com/openmtp/permbridge/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultProbeSchedule 默认的定期重新检查间隔
const DefaultProbeSchedule = "@every 30s"

// WorkflowConfig 权限工作流配置
type WorkflowConfig struct {
	// Capability 需要检查的权限
	Capability platform.Capability

	// Schedule 定期检查的 cron 表达式，为空时不定期检查
	Schedule string
}

// PermissionWorkflow 后台权限工作流
//
// 在后台上下文中运行：
//   - 启动时检查一次权限并推送 PERMISSION_STATUS
//   - 按计划定期重新检查
//   - 响应界面发来的 REQUEST_PERMISSION_CHECK 和 OPEN_PERMISSION_SETTINGS
//
// 每次推送都带有递增的 seq，界面据此丢弃过期的结果。
type PermissionWorkflow struct {
	prober    Prober
	bus       *events.EventBus
	listeners *events.ListenerGroup
	cfg       WorkflowConfig

	scheduler *cron.Cron
	seq       atomic.Uint64

	log *zap.Logger

	started bool
	stopped atomic.Bool
	mu      sync.Mutex
}

// NewPermissionWorkflow 创建权限工作流
//
// Parameters:
//   - prober: 权限探测器
//   - bus: 与界面通信的事件总线
//   - cfg: 工作流配置，Capability 为空时检查完全磁盘访问
func NewPermissionWorkflow(prober Prober, bus *events.EventBus, cfg WorkflowConfig) *PermissionWorkflow {
	if cfg.Capability == "" {
		cfg.Capability = platform.CapabilityFullDiskAccess
	}
	return &PermissionWorkflow{
		prober:    prober,
		bus:       bus,
		listeners: events.NewListenerGroup(bus),
		cfg:       cfg,
		log:       logger.With(zap.String("component", "permission_workflow")),
	}
}

// SetLogger 替换日志记录器
func (w *PermissionWorkflow) SetLogger(l *zap.Logger) {
	w.log = l
}

/**
 * Start 启动工作流
 *
 * 注册界面请求的监听器，立即检查一次，然后启动定期检查。
 * 重复调用直接返回。
 *
 * Parameters:
 *   - ctx: 取消后不再推送初始授权弹窗的结果
 *
 * Returns:
 *   - error: cron 表达式无效时返回错误
 */
func (w *PermissionWorkflow) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}
	w.stopped.Store(false)

	var scheduler *cron.Cron
	if w.cfg.Schedule != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(w.cfg.Schedule, func() { w.Probe() }); err != nil {
			return fmt.Errorf("invalid probe schedule %q: %w", w.cfg.Schedule, err)
		}
	}

	w.listeners.On(events.EventTypeRequestPermissionCheck, w.handleCheckRequest)
	w.listeners.On(events.EventTypeOpenPermissionSettings, w.handleOpenSettings)

	initial := w.Probe()
	if w.cfg.Capability.IsFolder() && initial.Status == platform.PermissionStatusNotDetermined.String() {
		go w.requestInitialAccess(ctx)
	}

	if scheduler != nil {
		scheduler.Start()
		w.scheduler = scheduler
	}

	w.started = true
	w.log.Info("权限工作流已启动",
		zap.String("capability", w.cfg.Capability.String()),
		zap.String("schedule", w.cfg.Schedule),
		zap.Bool("authorized", initial.IsAuthorized),
	)
	return nil
}

// Stop 停止定期检查并移除监听器，可重复调用
func (w *PermissionWorkflow) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped.Store(true)
	if w.scheduler != nil {
		<-w.scheduler.Stop().Done()
		w.scheduler = nil
	}
	w.listeners.Teardown()

	if w.started {
		w.started = false
		w.log.Info("权限工作流已停止")
	}
}

// Probe 检查一次权限并推送 PERMISSION_STATUS
func (w *PermissionWorkflow) Probe() events.StatusPayload {
	seq := w.seq.Add(1)
	status := w.prober.CheckStatus(w.cfg.Capability)
	payload := BuildStatusPayload(w.cfg.Capability, status, seq)
	w.publish(events.EventTypePermissionStatus, payload)
	return payload
}

// handleCheckRequest 处理界面的重新检查请求
//
// 跳过缓存重新查询，同时推送 PERMISSION_STATUS 和 PERMISSION_CHECK_RESULT。
func (w *PermissionWorkflow) handleCheckRequest(event events.Event) error {
	w.log.Debug("收到重新检查请求", zap.String("event_id", event.ID))

	w.prober.InvalidateCache(w.cfg.Capability)
	payload := w.Probe()
	w.publish(events.EventTypePermissionCheckResult, payload)
	return nil
}

// handleOpenSettings 处理界面的打开设置请求，失败只记录日志
func (w *PermissionWorkflow) handleOpenSettings(event events.Event) error {
	capability := w.cfg.Capability
	if raw, ok := event.Data["capability"].(string); ok && raw != "" {
		if parsed, err := platform.ParseCapability(raw); err == nil {
			capability = parsed
		}
	}

	if err := w.prober.OpenSettings(capability); err != nil {
		w.log.Error("打开系统设置失败",
			zap.String("capability", capability.String()),
			zap.Error(err),
		)
	}
	return nil
}

// requestInitialAccess 目录权限尚未决定时弹出系统授权框
//
// 授权框可能停留很久，期间的定期检查会先推送；seq 在用户做出选择后分配，
// 保证授权结果不会被当作过期数据丢弃。
func (w *PermissionWorkflow) requestInitialAccess(ctx context.Context) {
	status := w.prober.RequestAccess(w.cfg.Capability)

	if ctx.Err() != nil || w.stopped.Load() {
		return
	}
	seq := w.seq.Add(1)
	w.publish(events.EventTypePermissionStatus, BuildStatusPayload(w.cfg.Capability, status, seq))
}

func (w *PermissionWorkflow) publish(eventType events.EventType, payload events.StatusPayload) {
	if err := w.bus.Send(eventType, payload.ToData()); err != nil {
		w.log.Debug("推送权限状态失败",
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}
