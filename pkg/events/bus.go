/**
 * Package events 提供事件总线实现
 *
 * EventBus 是后台上下文与界面上下文之间的消息通道，特性：
 * - 按事件名订阅，支持通配符
 * - 每个订阅者一个有界队列，按发送顺序投递
 * - 至多一次投递：队列满或订阅者已移除时静默丢弃，不重试
 * - 中间件链
 * - 优雅关闭
 */

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/openmtp/permbridge/pkg/logger"
	"go.uber.org/zap"
)

var (
	// ErrBusStopped 事件总线已停止
	ErrBusStopped = errors.New("event bus is stopped")

	// ErrUnknownEventType 事件名不在注册表中
	ErrUnknownEventType = errors.New("unknown event type")
)

/**
 * EventHandler 事件处理函数类型
 */
type EventHandler func(event Event) error

/**
 * EventFilter 事件过滤器函数类型
 *
 * 返回 true 表示事件应该被处理，false 表示跳过
 */
type EventFilter func(event Event) bool

/**
 * Middleware 中间件类型
 */
type Middleware func(EventHandler) EventHandler

/**
 * Subscriber 订阅者信息
 */
type Subscriber struct {
	// ID 订阅者唯一标识
	ID string

	// Handler 事件处理函数
	Handler EventHandler

	// Filter 事件过滤器（可选）
	Filter EventFilter

	// Once 是否只触发一次
	Once bool

	// Chan 订阅者专用队列
	Chan chan Event

	// closed 队列是否已关闭，受 mu 保护
	closed bool

	// mu 保护 Chan 的发送和关闭
	mu sync.RWMutex
}

// deliver 把事件放入订阅者队列
//
// 订阅者已移除或队列已满时返回 false，事件被丢弃。
func (s *Subscriber) deliver(event Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.Chan <- event:
		return true
	default:
		return false
	}
}

// isClosed 订阅者是否已移除
func (s *Subscriber) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// close 关闭订阅者队列，可重复调用
func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.Chan)
}

/**
 * EventBus 事件总线
 */
type EventBus struct {
	// subscribers 订阅者映射：事件类型 -> 订阅者列表
	subscribers map[string][]*Subscriber

	// mutex 保护 subscribers 的读写锁
	mutex sync.RWMutex

	// wg 等待组，用于优雅关闭
	wg sync.WaitGroup

	// stopChan 停止信号通道
	stopChan chan struct{}

	// middleware 中间件链
	middleware []Middleware

	// stopped 原子标志，标记总线是否已停止
	stopped atomic.Bool

	// asyncEnabled 是否启用异步投递
	asyncEnabled bool

	// asyncBufferSize 每个订阅者的队列大小
	asyncBufferSize int

	// strict 是否拒绝未注册的事件名
	strict bool

	// log 总线日志
	log *zap.Logger
}

/**
 * NewEventBus 创建新的事件总线
 *
 * Parameters:
 *   - opts: 配置选项（可选）
 *
 * Returns:
 *   - *EventBus: 新创建的事件总线
 */
func NewEventBus(opts ...Option) *EventBus {
	bus := &EventBus{
		subscribers:     make(map[string][]*Subscriber),
		stopChan:        make(chan struct{}),
		middleware:      make([]Middleware, 0),
		asyncEnabled:    true,
		asyncBufferSize: 1000,
	}

	for _, opt := range opts {
		opt(bus)
	}

	if bus.log == nil {
		bus.log = logger.With(zap.String("component", "event_bus"))
	}

	return bus
}

/**
 * Option 配置选项类型
 */
type Option func(*EventBus)

/**
 * WithAsyncBufferSize 设置每个订阅者的队列大小
 */
func WithAsyncBufferSize(size int) Option {
	return func(bus *EventBus) {
		if size > 0 {
			bus.asyncBufferSize = size
		}
	}
}

/**
 * WithAsyncDisabled 禁用异步投递
 *
 * 处理函数在发布者的 goroutine 上同步执行。
 */
func WithAsyncDisabled() Option {
	return func(bus *EventBus) {
		bus.asyncEnabled = false
	}
}

/**
 * WithStrictEventTypes 只允许发布注册表中的事件名
 */
func WithStrictEventTypes() Option {
	return func(bus *EventBus) {
		bus.strict = true
	}
}

/**
 * WithLogger 指定总线使用的 logger
 */
func WithLogger(l *zap.Logger) Option {
	return func(bus *EventBus) {
		bus.log = l
	}
}

/**
 * Subscribe 订阅事件
 *
 * Parameters:
 *   - eventType: 事件类型，使用 "*" 订阅所有事件
 *   - handler: 事件处理函数
 *
 * Returns:
 *   - string: 订阅者 ID，用于取消订阅
 */
func (bus *EventBus) Subscribe(eventType string, handler EventHandler) string {
	return bus.subscribe(eventType, handler, nil, false)
}

/**
 * SubscribeWithFilter 带过滤器订阅事件
 */
func (bus *EventBus) SubscribeWithFilter(
	eventType string,
	handler EventHandler,
	filter EventFilter,
) string {
	return bus.subscribe(eventType, handler, filter, false)
}

/**
 * SubscribeOnce 订阅一次性事件
 *
 * 事件只会被处理一次，之后自动取消订阅
 */
func (bus *EventBus) SubscribeOnce(eventType string, handler EventHandler) string {
	return bus.subscribe(eventType, handler, nil, true)
}

func (bus *EventBus) subscribe(eventType string, handler EventHandler, filter EventFilter, once bool) string {
	subscriber := &Subscriber{
		ID:      generateSubscriberID(),
		Handler: handler,
		Filter:  filter,
		Once:    once,
	}
	if bus.asyncEnabled {
		subscriber.Chan = make(chan Event, bus.asyncBufferSize)
	}

	bus.mutex.Lock()
	bus.subscribers[eventType] = append(bus.subscribers[eventType], subscriber)
	bus.mutex.Unlock()

	bus.log.Debug("订阅事件",
		zap.String("event_type", eventType),
		zap.String("subscriber_id", subscriber.ID),
	)

	if bus.asyncEnabled {
		bus.wg.Add(1)
		go bus.processSubscriber(subscriber)
	}

	return subscriber.ID
}

/**
 * Unsubscribe 取消订阅
 *
 * 订阅者不存在时什么也不做。
 *
 * Returns:
 *   - bool: 是否找到并移除了订阅者
 */
func (bus *EventBus) Unsubscribe(subscriberID string) bool {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()

	for eventType, subscribers := range bus.subscribers {
		for i, sub := range subscribers {
			if sub.ID != subscriberID {
				continue
			}

			remaining := make([]*Subscriber, 0, len(subscribers)-1)
			remaining = append(remaining, subscribers[:i]...)
			remaining = append(remaining, subscribers[i+1:]...)
			if len(remaining) == 0 {
				delete(bus.subscribers, eventType)
			} else {
				bus.subscribers[eventType] = remaining
			}

			bus.log.Debug("取消订阅",
				zap.String("event_type", eventType),
				zap.String("subscriber_id", subscriberID),
			)

			if sub.Chan != nil {
				sub.close()
			} else {
				sub.mu.Lock()
				sub.closed = true
				sub.mu.Unlock()
			}
			return true
		}
	}

	bus.log.Debug("订阅者不存在，无法取消订阅", zap.String("subscriber_id", subscriberID))
	return false
}

/**
 * SubscriberCount 返回某个事件类型的订阅者数量（不含通配符订阅者）
 */
func (bus *EventBus) SubscriberCount(eventType string) int {
	bus.mutex.RLock()
	defer bus.mutex.RUnlock()
	return len(bus.subscribers[eventType])
}

/**
 * Publish 发布事件
 *
 * 异步模式下只负责入队，不等待处理；同步模式下依次调用处理函数。
 * 单个订阅者的投递失败不会返回给发布者。
 *
 * Parameters:
 *   - eventType: 事件类型
 *   - event: 事件对象
 *
 * Returns:
 *   - error: 总线已停止或事件名未注册时返回错误
 */
func (bus *EventBus) Publish(eventType string, event Event) error {
	if bus.stopped.Load() {
		bus.log.Warn("事件总线已停止，无法发布事件",
			zap.String("event_type", eventType),
		)
		return ErrBusStopped
	}

	if bus.strict && !IsKnownEventType(eventType) {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	bus.log.Debug("发布事件",
		zap.String("event_type", eventType),
		zap.String("event_id", event.ID),
	)

	bus.mutex.RLock()
	subscribers := bus.getSubscribers(eventType)
	bus.mutex.RUnlock()

	delivered := 0
	for _, subscriber := range subscribers {
		if subscriber.Filter != nil && !subscriber.Filter(event) {
			continue
		}

		if !bus.asyncEnabled {
			if bus.handleInline(subscriber, event) {
				delivered++
			}
			continue
		}

		if subscriber.deliver(event) {
			delivered++
			continue
		}

		bus.log.Warn("订阅者不可用或队列已满，丢弃事件",
			zap.String("subscriber_id", subscriber.ID),
			zap.String("event_type", eventType),
		)
	}

	bus.log.Debug("事件已发送",
		zap.String("event_type", eventType),
		zap.Int("subscriber_count", delivered),
	)

	return nil
}

/**
 * Send 创建并发布一个事件
 *
 * Parameters:
 *   - eventType: 事件类型
 *   - data: 事件负载
 *
 * Returns:
 *   - error: 发布失败时返回错误
 */
func (bus *EventBus) Send(eventType EventType, data map[string]interface{}) error {
	return bus.Publish(string(eventType), *NewEvent(eventType, data))
}

/**
 * PublishAsync 异步发布事件
 *
 * 不保证与同一发送者的其他消息之间的顺序。
 */
func (bus *EventBus) PublishAsync(eventType string, event Event) {
	go func() {
		_ = bus.Publish(eventType, event)
	}()
}

/**
 * Use 添加中间件
 *
 * 中间件按添加顺序执行，应在订阅之前添加
 */
func (bus *EventBus) Use(middleware Middleware) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	bus.middleware = append(bus.middleware, middleware)
}

/**
 * Stop 优雅停止事件总线
 *
 * 会等待所有正在处理的事件完成，重复调用直接返回。
 *
 * Parameters:
 *   - timeout: 超时时间
 *
 * Returns:
 *   - error: 超时返回错误
 */
func (bus *EventBus) Stop(timeout time.Duration) error {
	if !bus.stopped.CompareAndSwap(false, true) {
		return nil
	}

	close(bus.stopChan)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for event bus to stop")
	}
}

/**
 * handleInline 在发布者 goroutine 上同步处理事件
 */
func (bus *EventBus) handleInline(subscriber *Subscriber, event Event) bool {
	subscriber.mu.Lock()
	if subscriber.closed {
		subscriber.mu.Unlock()
		return false
	}
	if subscriber.Once {
		subscriber.closed = true
	}
	subscriber.mu.Unlock()

	bus.invoke(subscriber, event)

	if subscriber.Once {
		bus.Unsubscribe(subscriber.ID)
	}
	return true
}

/**
 * processSubscriber 处理订阅者事件
 *
 * 在独立的 goroutine 中运行，按入队顺序处理事件。
 * 订阅者移除后，队列中剩余的事件直接丢弃。
 */
func (bus *EventBus) processSubscriber(subscriber *Subscriber) {
	defer bus.wg.Done()

	for {
		select {
		case event, ok := <-subscriber.Chan:
			if !ok {
				return
			}
			if subscriber.isClosed() {
				bus.log.Debug("订阅者已移除，丢弃排队事件",
					zap.String("subscriber_id", subscriber.ID),
					zap.String("event_type", string(event.Type)),
				)
				continue
			}

			bus.invoke(subscriber, event)

			if subscriber.Once {
				bus.Unsubscribe(subscriber.ID)
				return
			}

		case <-bus.stopChan:
			return
		}
	}
}

/**
 * invoke 经过中间件链调用处理函数
 */
func (bus *EventBus) invoke(subscriber *Subscriber, event Event) {
	bus.mutex.RLock()
	handler := bus.applyMiddleware(subscriber.Handler)
	bus.mutex.RUnlock()

	if err := handler(event); err != nil {
		bus.log.Error("事件处理错误",
			zap.String("subscriber_id", subscriber.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}

/**
 * getSubscribers 获取事件类型的所有订阅者（包括通配符订阅者）
 */
func (bus *EventBus) getSubscribers(eventType string) []*Subscriber {
	subscribers := make([]*Subscriber, 0)

	if subs, ok := bus.subscribers[eventType]; ok {
		subscribers = append(subscribers, subs...)
	}

	if eventType != WildcardEventType {
		if wildcardSubs, ok := bus.subscribers[WildcardEventType]; ok {
			subscribers = append(subscribers, wildcardSubs...)
		}
	}

	return subscribers
}

/**
 * applyMiddleware 应用中间件链（洋葱模型）
 */
func (bus *EventBus) applyMiddleware(handler EventHandler) EventHandler {
	for i := len(bus.middleware) - 1; i >= 0; i-- {
		handler = bus.middleware[i](handler)
	}
	return handler
}

/**
 * generateSubscriberID 生成订阅者 ID
 */
func generateSubscriberID() string {
	return "sub-" + uuid.New().String()
}

/**
 * RecoveryMiddleware 恢复中间件
 *
 * 防止事件处理函数中的 panic 导致程序崩溃
 */
func RecoveryMiddleware() Middleware {
	return func(next EventHandler) EventHandler {
		return func(event Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(event)
		}
	}
}

/**
 * LoggingMiddleware 日志中间件
 *
 * Parameters:
 *   - l: 记录事件的 logger
 */
func LoggingMiddleware(l *zap.Logger) Middleware {
	return func(next EventHandler) EventHandler {
		return func(event Event) error {
			l.Debug("处理事件",
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
			)
			return next(event)
		}
	}
}
