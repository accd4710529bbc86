package events

import (
	"sync"
)

// ListenerGroup 一个上下文持有的监听器集合
//
// 上下文创建时通过 On 注册，销毁时通过 Teardown 全部移除。
// 同一事件类型只会注册一次，重复的注册和拆除都是空操作，
// 因此页面重载不会导致同一条消息被处理多次。
type ListenerGroup struct {
	bus *EventBus

	// ids 事件类型 -> 订阅者 ID
	ids map[EventType]string

	mu sync.Mutex
}

// NewListenerGroup 创建监听器集合
func NewListenerGroup(bus *EventBus) *ListenerGroup {
	return &ListenerGroup{
		bus: bus,
		ids: make(map[EventType]string),
	}
}

// On 注册监听器
//
// Returns: bool - 本次是否新注册；已注册时返回 false
func (g *ListenerGroup) On(eventType EventType, handler EventHandler) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.ids[eventType]; ok {
		return false
	}
	g.ids[eventType] = g.bus.Subscribe(string(eventType), handler)
	return true
}

// Off 移除某个事件类型的监听器
func (g *ListenerGroup) Off(eventType EventType) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.ids[eventType]; ok {
		g.bus.Unsubscribe(id)
		delete(g.ids, eventType)
	}
}

// Teardown 移除全部监听器
func (g *ListenerGroup) Teardown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for eventType, id := range g.ids {
		g.bus.Unsubscribe(id)
		delete(g.ids, eventType)
	}
}

// Len 当前注册的监听器数量
func (g *ListenerGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ids)
}
