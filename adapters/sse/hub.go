package sse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gavel/adapters/stream"
)

// Hub 管理多個SSE頻道的訂閱與廣播。
// 訊息透過Redis Stream跨節點傳遞，讓多個服務實例能夠協同運作：
// 任一節點Publish的訊息會經由stream回到每個節點的reader，
// 再廣播給該節點上的本地訂閱者。
type Hub[T any] struct {
	logger *slog.Logger

	mu     sync.RWMutex   // 保護active和channels的讀寫
	wg     sync.WaitGroup // 用於等待廣播goroutine完成
	active bool

	publisher stream.IPublisher[Envelope[T]]
	reader    stream.IReader[Envelope[T]]
	channels  map[string]*Channel[T]
}

type HubOption[T any] func(*Hub[T])

func WithHubLogger[T any](logger *slog.Logger) HubOption[T] {
	return func(h *Hub[T]) {
		h.logger = logger
	}
}

// NewHub 建立一個新的連線管理器。
// publisher與reader必須綁定同一條stream，否則訊息不會回流。
func NewHub[T any](publisher stream.IPublisher[Envelope[T]], reader stream.IReader[Envelope[T]], opts ...HubOption[T]) (*Hub[T], error) {
	const op = "NewHub"
	if publisher == nil {
		return nil, fmt.Errorf("[%s] publisher cannot be nil", op)
	}
	if reader == nil {
		return nil, fmt.Errorf("[%s] reader cannot be nil", op)
	}

	hub := &Hub[T]{
		logger:    slog.Default(),
		publisher: publisher,
		reader:    reader,
		channels:  make(map[string]*Channel[T]),
		active:    true,
	}
	for _, opt := range opts {
		opt(hub)
	}
	hub.logger = hub.logger.With(slog.String("caller", "Hub"))
	return hub, nil
}

// Start 啟動連線管理器，開始處理訊息的接收與廣播。
// 應在呼叫其他方法前先呼叫此方法。
func (h *Hub[T]) Start() {
	h.publisher.Start()
	h.reader.Start()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for envelope := range h.reader.Subscribe() {
			h.mu.RLock()
			if channel, ok := h.channels[envelope.Channel]; ok {
				channel.Broadcast(envelope.Message)
			}
			h.mu.RUnlock()
		}
	}()
}

// Done 停止連線管理器的運作。
func (h *Hub[T]) Done() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active {
		return
	}

	h.active = false
	h.publisher.Close()
	h.reader.Close()
	h.wg.Wait()
	for _, channel := range h.channels {
		channel.UnsubscribeAll()
	}
	clear(h.channels)
}

// Subscribe 訂閱指定的頻道，頻道不存在時會自動建立。
func (h *Hub[T]) Subscribe(channelName string) (<-chan T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active {
		return nil, context.Canceled
	}

	c, ok := h.channels[channelName]
	if !ok {
		c = NewChannel[T]()
		h.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Publish 發布訊息到指定的頻道。
func (h *Hub[T]) Publish(channelName string, data T) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.active {
		return context.Canceled
	}

	return h.publisher.Publish(Envelope[T]{
		Channel: channelName,
		Message: data,
	})
}

// Unsubscribe 取消訂閱指定的頻道，最後一個訂閱者離開時回收頻道。
func (h *Hub[T]) Unsubscribe(channelName string, ch <-chan T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.channels[channelName]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(h.channels, channelName)
	}
}
