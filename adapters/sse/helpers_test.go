package sse_test

import (
	"io"
	"log"
	"log/slog"
	"sync"

	"gavel/adapters/sse"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Message 表示一則測試用的SSE訊息。
type Message struct {
	Data string `json:"data"`
}

// loopback 同時實作IPublisher與IReader，
// 讓Publish的訊息直接回流到Subscribe，模擬stream的行為
type loopback struct {
	ch   chan sse.Envelope[Message]
	once sync.Once
}

func newLoopback() *loopback {
	return &loopback{ch: make(chan sse.Envelope[Message], 16)}
}

func (l *loopback) Start() {}

func (l *loopback) Publish(e sse.Envelope[Message]) error {
	l.ch <- e
	return nil
}

func (l *loopback) Subscribe() <-chan sse.Envelope[Message] {
	return l.ch
}

func (l *loopback) Close() {
	l.once.Do(func() { close(l.ch) })
}
