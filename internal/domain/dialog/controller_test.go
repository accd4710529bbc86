package dialog

import (
	"sync"
	"testing"
	"time"

	"github.com/openmtp/permbridge/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestController(t *testing.T) (*Controller, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus(events.WithAsyncDisabled(), events.WithLogger(zap.NewNop()))
	c := NewController(bus)
	c.SetLogger(zap.NewNop())
	t.Cleanup(func() {
		c.Detach()
		bus.Stop(time.Second)
	})
	return c, bus
}

func denied(title, message string) map[string]interface{} {
	return events.StatusPayload{IsAuthorized: false, Title: title, Message: message, ShowButton: true}.ToData()
}

// TestController_InitialState 测试初始状态为隐藏
func TestController_InitialState(t *testing.T) {
	c, _ := newTestController(t)
	assert.Equal(t, State{}, c.State())
}

// TestController_ShowThenHide 测试未授权时显示、授权后隐藏
func TestController_ShowThenHide(t *testing.T) {
	c, bus := newTestController(t)
	c.Attach()

	require.NoError(t, bus.Send(events.EventTypePermissionStatus, denied("T", "M")))
	assert.Equal(t, State{Open: true, Title: "T", Message: "M", ShowSettingsButton: true}, c.State())

	require.NoError(t, bus.Send(events.EventTypePermissionStatus, events.StatusPayload{IsAuthorized: true}.ToData()))
	assert.Equal(t, State{}, c.State())
}

// TestController_RefreshInPlace 测试可见时刷新内容
func TestController_RefreshInPlace(t *testing.T) {
	c, _ := newTestController(t)

	c.HandleStatus(events.StatusPayload{Title: "A", Message: "a", ShowButton: true})
	c.HandleStatus(events.StatusPayload{Title: "Access Restricted", Message: "b", ShowButton: false})

	assert.Equal(t, State{Open: true, Title: "Access Restricted", Message: "b"}, c.State())
}

// TestController_Dismiss 测试用户关闭只改变本地状态
func TestController_Dismiss(t *testing.T) {
	c, bus := newTestController(t)

	var sent int
	bus.Subscribe(events.WildcardEventType, func(events.Event) error {
		sent++
		return nil
	})

	c.HandleStatus(events.StatusPayload{Title: "T", Message: "M"})
	c.Dismiss()
	c.Dismiss()

	assert.False(t, c.State().Open)
	assert.Equal(t, 0, sent, "关闭不发送任何消息")

	// 下一次未授权推送重新显示
	c.HandleStatus(events.StatusPayload{Title: "T2", Message: "M2"})
	assert.True(t, c.State().Open)
}

// TestController_CheckAgain 测试重新检查只发送一次请求，收到授权后隐藏
func TestController_CheckAgain(t *testing.T) {
	c, bus := newTestController(t)
	c.Attach()

	var requests int
	bus.Subscribe(string(events.EventTypeRequestPermissionCheck), func(events.Event) error {
		requests++
		return nil
	})

	require.NoError(t, bus.Send(events.EventTypePermissionStatus, denied("Full Disk Access Required", "needs access")))
	before := c.State()

	require.NoError(t, c.CheckAgain())
	assert.Equal(t, 1, requests)
	assert.Equal(t, before, c.State(), "收到新推送前状态不变")

	require.NoError(t, bus.Send(events.EventTypePermissionStatus, events.StatusPayload{IsAuthorized: true}.ToData()))
	assert.False(t, c.State().Open)
}

// TestController_OpenSettings 测试打开设置请求
func TestController_OpenSettings(t *testing.T) {
	c, bus := newTestController(t)

	var requests int
	bus.Subscribe(string(events.EventTypeOpenPermissionSettings), func(events.Event) error {
		requests++
		return nil
	})

	c.HandleStatus(events.StatusPayload{Title: "T", Message: "M", ShowButton: true})
	require.NoError(t, c.OpenSettings())

	assert.Equal(t, 1, requests)
	assert.True(t, c.State().Open)
}

// TestController_StaleSeq 测试丢弃过期推送
func TestController_StaleSeq(t *testing.T) {
	c, _ := newTestController(t)

	assert.True(t, c.HandleStatus(events.StatusPayload{IsAuthorized: true, Seq: 5}))
	assert.False(t, c.HandleStatus(events.StatusPayload{Title: "old", Seq: 4}))
	assert.False(t, c.State().Open)

	// 未编号的负载总是应用
	assert.True(t, c.HandleStatus(events.StatusPayload{Title: "manual"}))
	assert.True(t, c.State().Open)

	assert.True(t, c.HandleStatus(events.StatusPayload{IsAuthorized: true, Seq: 6}))
	assert.False(t, c.State().Open)
}

// TestController_AttachDetachTwice 测试两轮注册和拆除后没有重复处理
func TestController_AttachDetachTwice(t *testing.T) {
	c, bus := newTestController(t)

	var mu sync.Mutex
	changes := 0
	c.OnChange(func(State) {
		mu.Lock()
		defer mu.Unlock()
		changes++
	})

	for i := 0; i < 2; i++ {
		c.Attach()
		c.Attach()
		c.Detach()
		c.Detach()
	}
	assert.Equal(t, 0, bus.SubscriberCount(string(events.EventTypePermissionStatus)))

	require.NoError(t, bus.Send(events.EventTypePermissionStatus, denied("T", "M")))
	assert.Equal(t, 0, changes)

	c.Attach()
	require.NoError(t, bus.Send(events.EventTypePermissionStatus, denied("T", "M")))
	assert.Equal(t, 1, changes)
}
