//go:generate mockgen -package=stream -destination=mock.go -source=interfaces.go

package stream

import (
	"context"
	"errors"
)

var (
	// ErrClosed 在發布者或消費者已關閉時回傳
	ErrClosed = errors.New("stream endpoint is closed")
)

// IPublisher 定義了事件發布者的操作介面
type IPublisher[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IReader 定義了追蹤式消費者的操作介面，從stream尾端開始讀取新訊息
type IReader[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// IGroupReader 定義了consumer group消費者的操作介面，
// 每條訊息都需要透過 Ack/Reject 明確確認
type IGroupReader[T any] interface {
	Start() error
	Subscribe() <-chan *Message[T]
	Close() error
}

// ILease 定義了自動續期分散式鎖的操作介面
type ILease interface {
	Acquire(ctx context.Context) (context.Context, error)
	Release() (bool, error)
	Held() bool
}
