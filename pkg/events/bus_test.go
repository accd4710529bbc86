package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestBus 创建测试用事件总线（静默日志）
func newTestBus(opts ...Option) *EventBus {
	return NewEventBus(append([]Option{WithLogger(zap.NewNop())}, opts...)...)
}

// counter 并发安全的计数处理函数
type counter struct {
	mu     sync.Mutex
	events []Event
}

func (c *counter) handle(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

/**
 * TestNewEventBus 测试创建事件总线
 */
func TestNewEventBus(t *testing.T) {
	bus := newTestBus()
	defer bus.Stop(5 * time.Second)

	assert.NotNil(t, bus)
	assert.False(t, bus.stopped.Load(), "Expected bus to be running")
}

/**
 * TestSubscribe 测试订阅权限状态事件
 */
func TestSubscribe(t *testing.T) {
	bus := newTestBus()
	defer bus.Stop(5 * time.Second)

	c := &counter{}
	subscriberID := bus.Subscribe(string(EventTypePermissionStatus), c.handle)
	assert.NotEmpty(t, subscriberID)

	err := bus.Send(EventTypePermissionStatus, StatusPayload{IsAuthorized: true}.ToData())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 10*time.Millisecond)
}

/**
 * TestSubscribeWildcard 测试通配符订阅
 */
func TestSubscribeWildcard(t *testing.T) {
	bus := newTestBus()
	defer bus.Stop(5 * time.Second)

	c := &counter{}
	bus.Subscribe(WildcardEventType, c.handle)

	for _, eventType := range PermissionEventTypes() {
		require.NoError(t, bus.Send(eventType, nil))
	}

	require.Eventually(t, func() bool { return c.count() == 4 }, time.Second, 10*time.Millisecond)
}

/**
 * TestSubscribeWithFilter 测试带过滤器的订阅
 */
func TestSubscribeWithFilter(t *testing.T) {
	bus := newTestBus(WithAsyncDisabled())
	defer bus.Stop(5 * time.Second)

	c := &counter{}
	onlyDenied := func(event Event) bool {
		authorized, _ := event.Data["isAuthorized"].(bool)
		return !authorized
	}
	bus.SubscribeWithFilter(string(EventTypePermissionStatus), c.handle, onlyDenied)

	require.NoError(t, bus.Send(EventTypePermissionStatus, StatusPayload{IsAuthorized: true}.ToData()))
	require.NoError(t, bus.Send(EventTypePermissionStatus, StatusPayload{IsAuthorized: false}.ToData()))
	require.NoError(t, bus.Send(EventTypePermissionStatus, StatusPayload{IsAuthorized: false}.ToData()))

	assert.Equal(t, 2, c.count())
}

/**
 * TestSubscribeOnce 测试一次性订阅
 */
func TestSubscribeOnce(t *testing.T) {
	bus := newTestBus(WithAsyncDisabled())
	defer bus.Stop(5 * time.Second)

	c := &counter{}
	bus.SubscribeOnce(string(EventTypePermissionCheckResult), c.handle)

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Send(EventTypePermissionCheckResult, nil))
	}

	assert.Equal(t, 1, c.count())
	assert.Equal(t, 0, bus.SubscriberCount(string(EventTypePermissionCheckResult)))
}

/**
 * TestUnsubscribe 测试取消订阅
 */
func TestUnsubscribe(t *testing.T) {
	bus := newTestBus(WithAsyncDisabled())
	defer bus.Stop(5 * time.Second)

	c := &counter{}
	subscriberID := bus.Subscribe(string(EventTypeRequestPermissionCheck), c.handle)

	require.NoError(t, bus.Send(EventTypeRequestPermissionCheck, nil))
	assert.True(t, bus.Unsubscribe(subscriberID))
	assert.False(t, bus.Unsubscribe(subscriberID), "重复取消订阅应为空操作")
	require.NoError(t, bus.Send(EventTypeRequestPermissionCheck, nil))

	assert.Equal(t, 1, c.count())
	assert.Equal(t, 0, bus.SubscriberCount(string(EventTypeRequestPermissionCheck)))
}

/**
 * TestPublish_OrderedPerSender 测试同一发送者的消息按顺序投递
 */
func TestPublish_OrderedPerSender(t *testing.T) {
	bus := newTestBus()
	defer bus.Stop(5 * time.Second)

	c := &counter{}
	bus.Subscribe(string(EventTypePermissionStatus), c.handle)

	const n = 200
	for i := 1; i <= n; i++ {
		require.NoError(t, bus.Send(EventTypePermissionStatus, StatusPayload{Seq: uint64(i)}.ToData()))
	}

	require.Eventually(t, func() bool { return c.count() == n }, 2*time.Second, 10*time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, event := range c.events {
		payload, err := ParseStatusPayload(event.Data)
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), payload.Seq)
	}
}

/**
 * TestPublish_DropsWhenQueueFull 测试队列满时丢弃消息且不返回错误
 */
func TestPublish_DropsWhenQueueFull(t *testing.T) {
	bus := newTestBus(WithAsyncBufferSize(1))

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	c := &counter{}
	bus.Subscribe(string(EventTypePermissionStatus), func(event Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return c.handle(event)
	})

	// 第一条被处理函数取走并阻塞，第二条占满队列，其余被丢弃
	require.NoError(t, bus.Send(EventTypePermissionStatus, nil))
	<-started
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Send(EventTypePermissionStatus, nil))
	}

	close(release)
	require.Eventually(t, func() bool { return c.count() == 2 }, time.Second, 10*time.Millisecond)
	require.NoError(t, bus.Stop(time.Second))
	assert.Equal(t, 2, c.count())
}

/**
 * TestPublish_ConcurrentUnsubscribe 测试发布与取消订阅并发时不会 panic
 */
func TestPublish_ConcurrentUnsubscribe(t *testing.T) {
	bus := newTestBus()
	defer bus.Stop(5 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := bus.Subscribe(string(EventTypePermissionStatus), func(Event) error { return nil })
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = bus.Send(EventTypePermissionStatus, nil)
		}()
		go func() {
			defer wg.Done()
			bus.Unsubscribe(id)
		}()
	}

	assert.NotPanics(t, wg.Wait)
}

/**
 * TestStrictEventTypes 测试封闭事件名注册表
 */
func TestStrictEventTypes(t *testing.T) {
	bus := newTestBus(WithStrictEventTypes())
	defer bus.Stop(5 * time.Second)

	err := bus.Publish("ipc.permission.unknown", *NewEvent("ipc.permission.unknown", nil))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	assert.NoError(t, bus.Send(EventTypePermissionStatus, nil))
	assert.True(t, IsKnownEventType("ipc.usbHotplug"))
	assert.False(t, IsKnownEventType("*"))
}

/**
 * TestRecoveryMiddleware 测试恢复中间件
 */
func TestRecoveryMiddleware(t *testing.T) {
	bus := newTestBus(WithAsyncDisabled())
	bus.Use(RecoveryMiddleware())
	defer bus.Stop(5 * time.Second)

	calls := 0
	bus.Subscribe(string(EventTypePermissionStatus), func(event Event) error {
		calls++
		panic("test panic")
	})

	assert.NotPanics(t, func() {
		_ = bus.Send(EventTypePermissionStatus, nil)
		_ = bus.Send(EventTypePermissionStatus, nil)
	})
	assert.Equal(t, 2, calls)
}

/**
 * TestPublishAsync 测试异步发布
 */
func TestPublishAsync(t *testing.T) {
	bus := newTestBus()
	defer bus.Stop(5 * time.Second)

	c := &counter{}
	bus.Subscribe(string(EventTypeUsbHotplug), c.handle)

	bus.PublishAsync(string(EventTypeUsbHotplug), *NewEvent(EventTypeUsbHotplug, nil))

	require.Eventually(t, func() bool { return c.count() == 1 }, time.Second, 10*time.Millisecond)
}

/**
 * TestStop 测试停止事件总线
 */
func TestStop(t *testing.T) {
	bus := newTestBus()

	for i := 0; i < 5; i++ {
		bus.Subscribe(string(EventTypePermissionStatus), func(event Event) error {
			return nil
		})
	}

	require.NoError(t, bus.Stop(10*time.Second))
	assert.True(t, bus.stopped.Load())
	assert.NoError(t, bus.Stop(time.Second), "重复停止应直接返回")

	err := bus.Send(EventTypePermissionStatus, nil)
	assert.ErrorIs(t, err, ErrBusStopped)
}

/**
 * TestConcurrentPublish 测试并发发布
 */
func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()
	defer bus.Stop(5 * time.Second)

	c := &counter{}
	bus.Subscribe(WildcardEventType, c.handle)

	var wg sync.WaitGroup
	numEvents := 100

	for i := 0; i < numEvents; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := bus.Send(EventTypePermissionStatus, map[string]interface{}{"id": id})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	require.Eventually(t, func() bool { return c.count() == numEvents }, 2*time.Second, 10*time.Millisecond)
}

/**
 * TestEventMetadata 测试事件元数据
 */
func TestEventMetadata(t *testing.T) {
	event := NewEvent(EventTypePermissionStatus, nil)
	event.WithMetadata("source", "permission_workflow")

	assert.NotNil(t, event.Data)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "permission_workflow", event.Metadata["source"])
}

/**
 * BenchmarkEventBusPublish 基准测试：同步发布性能
 */
func BenchmarkEventBusPublish(b *testing.B) {
	bus := newTestBus(WithAsyncDisabled())
	defer bus.Stop(5 * time.Second)

	bus.Subscribe(string(EventTypePermissionStatus), func(event Event) error {
		return nil
	})

	event := *NewEvent(EventTypePermissionStatus, StatusPayload{IsAuthorized: true}.ToData())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := bus.Publish(string(EventTypePermissionStatus), event); err != nil {
			b.Fatalf("Failed to publish: %v", err)
		}
	}
}
