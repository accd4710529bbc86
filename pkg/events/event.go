/**
 * Package events 提供事件系统的核心类型定义
 *
 * 事件系统是后台进程与界面之间唯一的通信机制：
 * - 后台工作流推送权限状态
 * - 界面发送重新检查、打开设置等请求
 * - Wails 桥接层把事件转发到前端
 */

package events

import (
	"time"

	"github.com/google/uuid"
)

/**
 * EventType 事件类型
 *
 * 事件名是跨上下文的线协议，取值必须保持不变。
 */
type EventType string

/**
 * 所有事件类型常量
 *
 * 这是一个封闭枚举：新的消息类型只能在这里添加，不能从负载推断。
 */
const (
	// 窗口事件
	EventTypeOpenFaqsWindow                  EventType = "ipc.window.faqs"
	EventTypeOpenHelpPhoneNotConnectingWindow EventType = "ipc.window.helpPhoneNotConnecting"
	EventTypeOpenHelpPrivacyPolicyWindow     EventType = "ipc.window.privacyPolicy"
	EventTypeOpenKeyboardShortcutsWindow     EventType = "ipc.window.keyboardShortcuts"

	// 问题反馈事件
	EventTypeReportBugsDisposeMtp              EventType = "ipc.reportBugsDisposeMtp"
	EventTypeReportBugsDisposeMtpReply         EventType = "ipc.reportBugsDisposeMtpReply"
	EventTypeReportBugsDisposeMtpReplyFromMain EventType = "ipc.reportBugsDisposeMtpReply.fromMain"

	// 设备事件
	EventTypeUsbHotplug EventType = "ipc.usbHotplug"

	// 权限事件
	EventTypePermissionStatus       EventType = "ipc.permission.status"       // 后台 -> 界面，状态推送
	EventTypeRequestPermissionCheck EventType = "ipc.permission.requestCheck" // 界面 -> 后台，请求重新检查
	EventTypeOpenPermissionSettings EventType = "ipc.permission.openSettings" // 界面 -> 后台，请求打开系统设置
	EventTypePermissionCheckResult  EventType = "ipc.permission.checkResult"  // 后台 -> 界面，按需检查结果
)

// WildcardEventType 订阅所有事件时使用的事件类型
const WildcardEventType = "*"

// knownEventTypes 已注册的事件类型集合
var knownEventTypes = map[EventType]struct{}{
	EventTypeOpenFaqsWindow:                   {},
	EventTypeOpenHelpPhoneNotConnectingWindow: {},
	EventTypeOpenHelpPrivacyPolicyWindow:      {},
	EventTypeOpenKeyboardShortcutsWindow:      {},
	EventTypeReportBugsDisposeMtp:             {},
	EventTypeReportBugsDisposeMtpReply:        {},
	EventTypeReportBugsDisposeMtpReplyFromMain: {},
	EventTypeUsbHotplug:                       {},
	EventTypePermissionStatus:                 {},
	EventTypeRequestPermissionCheck:           {},
	EventTypeOpenPermissionSettings:           {},
	EventTypePermissionCheckResult:            {},
}

/**
 * IsKnownEventType 判断事件名是否在注册表中
 */
func IsKnownEventType(eventType string) bool {
	_, ok := knownEventTypes[EventType(eventType)]
	return ok
}

/**
 * PermissionEventTypes 返回权限相关的事件类型
 *
 * Wails 桥接层据此决定哪些事件需要在前后端之间转发。
 */
func PermissionEventTypes() []EventType {
	return []EventType{
		EventTypePermissionStatus,
		EventTypeRequestPermissionCheck,
		EventTypeOpenPermissionSettings,
		EventTypePermissionCheckResult,
	}
}

/**
 * Event 统一事件结构
 */
type Event struct {
	// ID 事件唯一标识符
	ID string `json:"id"`

	// Type 事件类型
	Type EventType `json:"type"`

	// Timestamp 事件发生时间
	Timestamp time.Time `json:"timestamp"`

	// Data 事件负载
	Data map[string]interface{} `json:"data"`

	// Metadata 事件元数据（可选的额外信息）
	Metadata map[string]string `json:"metadata,omitempty"`
}

/**
 * NewEvent 创建新事件
 *
 * Parameters:
 *   - eventType: 事件类型
 *   - data: 事件负载，可以为 nil
 *
 * Returns:
 *   - *Event: 新创建的事件
 */
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Event{
		ID:        generateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Metadata:  make(map[string]string),
	}
}

/**
 * WithMetadata 添加元数据
 *
 * Returns:
 *   - *Event: 返回自身，支持链式调用
 */
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

/**
 * generateEventID 生成事件唯一 ID（UUID v4）
 */
func generateEventID() string {
	return uuid.New().String()
}
