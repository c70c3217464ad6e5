// Package eventbus 进程内事件广播：同步完成、信誉变化、路线图失效。
package eventbus

import (
	"context"
	"sync"
	"time"
)

// 事件类型
const (
	TypeSyncCompleted      = "sync.completed"
	TypeReputationUpdated  = "reputation.updated"
	TypeRoadmapInvalidated = "roadmap.invalidated"
)

// Event 广播的事件
type Event struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Hub 非阻塞扇出；订阅者缓冲满时丢弃该订阅者的事件
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]subscription
}

type subscription struct {
	types map[string]struct{} // 为空表示订阅全部
}

func (s subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]subscription)}
}

// Publish 广播事件；nil Hub 直接忽略
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch, sub := range h.subs {
		if !sub.wants(evt.Type) {
			continue
		}
		select {
		case ch <- evt:
		default:
			// 慢消费者丢弃，同步链路不等待
		}
	}
}

// Subscribe 订阅事件，ctx 结束时自动退订并关闭通道；types 为空订阅全部
func (h *Hub) Subscribe(ctx context.Context, buffer int, types ...string) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	sub := subscription{}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	h.mu.Lock()
	h.subs[ch] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Subscribers 当前订阅数
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
