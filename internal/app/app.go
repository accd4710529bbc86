/**
 * Package app 提供 Wails App 层的实现
 *
 * App 层职责：
 * - 组装配置、存储、事件总线和权限工作流
 * - 在事件总线和前端之间转发权限消息
 * - 向前端暴露对话框操作方法
 */

package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/openmtp/permbridge/internal/domain/dialog"
	"github.com/openmtp/permbridge/internal/infrastructure/config"
	"github.com/openmtp/permbridge/internal/infrastructure/platform"
	"github.com/openmtp/permbridge/internal/infrastructure/storage"
	"github.com/openmtp/permbridge/internal/services"
	"github.com/openmtp/permbridge/pkg/events"
	"github.com/openmtp/permbridge/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"
)

// DialogStateEvent 对话框状态变化时推送给前端的 Wails 事件名
const DialogStateEvent = "permbridge:dialogState"

// settingsExportFile 设置导出文件名，位于配置目录下
const settingsExportFile = "settings.json"

// emitFunc / onFunc 与 Wails runtime 的事件函数签名一致，测试中可替换
type (
	emitFunc func(ctx context.Context, eventName string, optionalData ...interface{})
	onFunc   func(ctx context.Context, eventName string, callback func(optionalData ...interface{})) func()
)

/**
 * App 是 Wails 应用的主结构体
 */
type App struct {
	// ctx 是 Wails 运行时上下文
	ctx context.Context

	configPath string
	config     *config.Config

	native   platform.NativePermissions
	detector platform.OSVersionDetector

	db       *sql.DB
	history  storage.HistoryRepository
	eventBus *events.EventBus

	prober   *services.PermissionService
	workflow *services.PermissionWorkflow
	dialog   *dialog.Controller

	freshInstall services.FreshInstallState

	// forwarders 转发到前端的总线订阅
	forwarders *events.ListenerGroup

	// recorders 写入权限历史的总线订阅
	recorders *events.ListenerGroup

	// cancels Wails 事件监听的取消函数
	cancels []func()

	emit emitFunc
	on   onFunc

	mu sync.Mutex
}

// Option App 选项
type Option func(*App)

// WithConfigPath 指定配置文件路径
func WithConfigPath(path string) Option {
	return func(a *App) {
		a.configPath = path
	}
}

// WithNativePermissions 替换原生权限实现
func WithNativePermissions(native platform.NativePermissions) Option {
	return func(a *App) {
		a.native = native
	}
}

// WithOSVersionDetector 替换系统版本检测器
func WithOSVersionDetector(detector platform.OSVersionDetector) Option {
	return func(a *App) {
		a.detector = detector
	}
}

/**
 * New 创建一个新的 App 实例
 *
 * Returns:
 *   - *App: 尚未启动的 App 实例
 */
func New(opts ...Option) *App {
	a := &App{
		native:   platform.NewNativePermissions(),
		detector: platform.NewOSVersionDetector(),
		emit:     runtime.EventsEmit,
		on:       runtime.EventsOn,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

/**
 * Startup 应用启动时的初始化
 *
 * 依次完成：
 * 1. 加载配置并初始化日志
 * 2. 打开数据库并执行迁移
 * 3. 判定首次安装
 * 4. 启动权限工作流和对话框控制器
 * 5. 建立前后端事件转发
 *
 * Parameters:
 *   - ctx: Wails 启动上下文
 *
 * Returns:
 *   - error: 初始化过程中的错误
 */
func (a *App) Startup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx = ctx

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.config = cfg

	if err := logger.InitWithOptions(cfg.LoggerOptions()); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	db, err := storage.NewSQLiteDB(storage.SQLiteConfig{
		Path:         cfg.Storage.Path,
		MaxOpenConns: cfg.Storage.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db

	if err := storage.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	a.resolveFreshInstall(ctx)

	a.history = storage.NewSQLiteHistoryRepository(db)
	a.pruneHistory(ctx)

	a.eventBus = events.NewEventBus(events.WithStrictEventTypes())
	a.eventBus.Use(events.RecoveryMiddleware())

	capability, err := platform.ParseCapability(cfg.Permission.Capability)
	if err != nil {
		return err
	}

	a.prober = services.NewPermissionService(a.native, a.detector, services.PermissionServiceConfig{
		MinOSVersion:  cfg.Permission.MinOSVersion,
		ProbeTimeout:  cfg.Permission.ProbeTimeout,
		PromptTimeout: cfg.Permission.PromptTimeout,
		CacheTTL:      cfg.Permission.CacheTTL,
	})

	a.dialog = dialog.NewController(a.eventBus)
	a.dialog.OnChange(func(state dialog.State) {
		a.emit(a.ctx, DialogStateEvent, state)
	})
	a.dialog.Attach()

	a.forwarders = events.NewListenerGroup(a.eventBus)
	a.forwardToFrontend(events.EventTypePermissionStatus)
	a.forwardToFrontend(events.EventTypePermissionCheckResult)
	a.recorders = events.NewListenerGroup(a.eventBus)
	a.recorders.On(events.EventTypePermissionStatus, a.recordHistory)
	a.listenFrontend(events.EventTypeRequestPermissionCheck)
	a.listenFrontend(events.EventTypeOpenPermissionSettings)

	a.workflow = services.NewPermissionWorkflow(a.prober, a.eventBus, services.WorkflowConfig{
		Capability: capability,
		Schedule:   cfg.Permission.ProbeSchedule,
	})
	if err := a.workflow.Start(ctx); err != nil {
		return fmt.Errorf("failed to start permission workflow: %w", err)
	}

	logger.Info("应用已启动",
		zap.String("name", cfg.Application.Name),
		zap.String("capability", capability.String()),
		zap.Int("fresh_install", a.freshInstall.IsFreshInstall),
	)
	return nil
}

/**
 * Shutdown 应用关闭时的清理
 *
 * 按启动的逆序释放资源，可重复调用
 */
func (a *App) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dialog != nil {
		a.dialog.Detach()
	}
	if a.workflow != nil {
		a.workflow.Stop()
	}
	for _, cancel := range a.cancels {
		cancel()
	}
	a.cancels = nil
	if a.forwarders != nil {
		a.forwarders.Teardown()
	}
	if a.recorders != nil {
		a.recorders.Teardown()
	}
	if a.eventBus != nil {
		if err := a.eventBus.Stop(5 * time.Second); err != nil {
			logger.Warn("停止事件总线超时", zap.Error(err))
		}
	}
	if a.prober != nil {
		a.prober.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("关闭数据库失败", zap.Error(err))
		}
		a.db = nil
	}

	_ = logger.Sync()
}

// ========== 导出方法（前端可调用） ==========

// GetPermissionDialogState 获取对话框当前状态
func (a *App) GetPermissionDialogState() dialog.State {
	if a.dialog == nil {
		return dialog.State{}
	}
	return a.dialog.State()
}

// PermissionCheckAgain 用户点击"重新检查"
func (a *App) PermissionCheckAgain() error {
	if a.dialog == nil {
		return fmt.Errorf("app not started")
	}
	return a.dialog.CheckAgain()
}

// PermissionOpenSettings 用户点击"打开设置"
func (a *App) PermissionOpenSettings() error {
	if a.dialog == nil {
		return fmt.Errorf("app not started")
	}
	return a.dialog.OpenSettings()
}

// PermissionDismiss 用户关闭对话框
func (a *App) PermissionDismiss() {
	if a.dialog != nil {
		a.dialog.Dismiss()
	}
}

// IsFreshInstall 本次启动是否为首次安装
func (a *App) IsFreshInstall() services.FreshInstallState {
	return a.freshInstall
}

// GetPermissionHistory 获取最近的权限状态变化
func (a *App) GetPermissionHistory(limit int) ([]storage.PermissionRecord, error) {
	if a.history == nil {
		return nil, fmt.Errorf("app not started")
	}
	return a.history.FindRecent(context.Background(), limit)
}

// ========== 私有方法 ==========

// forwardToFrontend 把总线上的后台消息推送到前端
func (a *App) forwardToFrontend(eventType events.EventType) {
	a.forwarders.On(eventType, func(event events.Event) error {
		a.emit(a.ctx, string(eventType), event.Data)
		return nil
	})
}

// listenFrontend 把前端发来的请求发布到总线
func (a *App) listenFrontend(eventType events.EventType) {
	cancel := a.on(a.ctx, string(eventType), func(optionalData ...interface{}) {
		var data map[string]interface{}
		if len(optionalData) > 0 {
			data, _ = optionalData[0].(map[string]interface{})
		}
		if err := a.eventBus.Send(eventType, data); err != nil {
			logger.Debug("转发前端请求失败",
				zap.String("event_type", string(eventType)),
				zap.Error(err),
			)
		}
	})
	a.cancels = append(a.cancels, cancel)
}

// recordHistory 记录权限状态变化，状态未变化时不写入
func (a *App) recordHistory(event events.Event) error {
	payload, err := events.ParseStatusPayload(event.Data)
	if err != nil {
		return err
	}

	ctx := context.Background()
	latest, err := a.history.Latest(ctx, payload.Capability)
	if err != nil {
		return err
	}
	if latest != nil && latest.Status == payload.Status {
		return nil
	}

	return a.history.Save(ctx, storage.PermissionRecord{
		Capability:   payload.Capability,
		Status:       payload.Status,
		IsAuthorized: payload.IsAuthorized,
		Seq:          payload.Seq,
		ObservedAt:   event.Timestamp,
	})
}

// resolveFreshInstall 判定首次安装，必要时导出设置文件；失败只记录日志
func (a *App) resolveFreshInstall(ctx context.Context) {
	service := services.NewFreshInstallService(storage.NewSQLiteSettingsRepository(a.db))

	state, err := service.Resolve(ctx)
	if err != nil {
		logger.Error("判定首次安装失败", zap.Error(err))
		return
	}
	a.freshInstall = state

	if !state.AllowWritingJSON {
		return
	}
	path, err := settingsExportPath()
	if err != nil {
		logger.Warn("导出设置失败", zap.Error(err))
		return
	}
	if err := service.ExportJSON(ctx, path); err != nil {
		logger.Warn("导出设置失败", zap.Error(err))
	}
}

// settingsExportPath 设置导出文件位于配置目录，与数据库位置无关
func settingsExportPath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, settingsExportFile), nil
}

// pruneHistory 删除超过保留期的权限记录
func (a *App) pruneHistory(ctx context.Context) {
	days := a.config.Storage.HistoryDays
	if days <= 0 {
		return
	}

	deleted, err := a.history.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		logger.Warn("清理权限记录失败", zap.Error(err))
		return
	}
	if deleted > 0 {
		logger.Debug("已清理权限记录", zap.Int64("count", deleted))
	}
}
