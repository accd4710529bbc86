// Package dialog 权限对话框的状态机
//
// 对话框只有两个状态：隐藏和可见。状态只在收到 PERMISSION_STATUS
// 或用户关闭时改变；"重新检查"和"打开设置"只发送请求，不改变状态。
package dialog

import (
	"sync"

	"github.com/openmtp/permbridge/pkg/events"
	"github.com/openmtp/permbridge/pkg/logger"
	"go.uber.org/zap"
)

// State 对话框视图状态
//
// Open 为 true 时，最近一次收到的状态一定是未授权。
type State struct {
	Open               bool   `json:"open"`
	Title              string `json:"title"`
	Message            string `json:"message"`
	ShowSettingsButton bool   `json:"showSettingsButton"`
}

// Controller 权限对话框控制器
//
// 由界面上下文持有，通过事件总线与后台工作流通信。
type Controller struct {
	bus       *events.EventBus
	listeners *events.ListenerGroup

	state State

	// lastSeq 最近一次应用的负载序号，用于丢弃过期推送
	lastSeq uint64

	onChange func(State)
	log      *zap.Logger
	mu       sync.Mutex
}

// NewController 创建对话框控制器，初始状态为隐藏
func NewController(bus *events.EventBus) *Controller {
	return &Controller{
		bus:       bus,
		listeners: events.NewListenerGroup(bus),
		log:       logger.With(zap.String("component", "permission_dialog")),
	}
}

// SetLogger 替换日志记录器
func (c *Controller) SetLogger(l *zap.Logger) {
	c.log = l
}

// OnChange 设置状态变化回调
//
// 回调在锁外调用，可以安全地读取 State。
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Attach 注册 PERMISSION_STATUS 监听器，重复调用为空操作
func (c *Controller) Attach() {
	c.listeners.On(events.EventTypePermissionStatus, func(event events.Event) error {
		payload, err := events.ParseStatusPayload(event.Data)
		if err != nil {
			c.log.Warn("忽略无法解析的权限状态", zap.String("event_id", event.ID), zap.Error(err))
			return nil
		}
		c.HandleStatus(payload)
		return nil
	})
}

// Detach 移除监听器，重复调用为空操作
func (c *Controller) Detach() {
	c.listeners.Teardown()
}

// State 返回当前状态
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

/**
 * HandleStatus 应用一次权限状态推送
 *
 * 已授权时隐藏对话框，否则显示（或就地刷新）对话框内容。
 * 带序号的负载若早于已应用的负载则被丢弃；序号为 0 的负载总是应用。
 *
 * Returns:
 *   - bool: 是否应用了该负载
 */
func (c *Controller) HandleStatus(payload events.StatusPayload) bool {
	c.mu.Lock()
	if payload.Seq != 0 {
		if payload.Seq < c.lastSeq {
			c.mu.Unlock()
			c.log.Debug("丢弃过期的权限状态",
				zap.Uint64("seq", payload.Seq),
				zap.Uint64("last_seq", c.lastSeq),
			)
			return false
		}
		c.lastSeq = payload.Seq
	}

	if payload.IsAuthorized {
		c.state = State{}
	} else {
		c.state = State{
			Open:               true,
			Title:              payload.Title,
			Message:            payload.Message,
			ShowSettingsButton: payload.ShowButton,
		}
	}
	state, onChange := c.state, c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(state)
	}
	return true
}

// Dismiss 用户关闭对话框，只改变本地状态
func (c *Controller) Dismiss() {
	c.mu.Lock()
	if !c.state.Open {
		c.mu.Unlock()
		return
	}
	c.state = State{}
	state, onChange := c.state, c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(state)
	}
}

// CheckAgain 请求后台重新检查，状态保持不变直到收到新的推送
func (c *Controller) CheckAgain() error {
	return c.bus.Send(events.EventTypeRequestPermissionCheck, nil)
}

// OpenSettings 请求后台打开系统设置，状态保持不变
func (c *Controller) OpenSettings() error {
	return c.bus.Send(events.EventTypeOpenPermissionSettings, nil)
}
