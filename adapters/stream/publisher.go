package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
)

type publisherOptions[T any] struct {
	logger     *slog.Logger
	bufferSize int
	encodeFunc func(T) (map[string]any, error)
}

type PublisherOption[T any] func(*publisherOptions[T])

// WithPublisherLogger 設置日誌記錄器
func WithPublisherLogger[T any](logger *slog.Logger) PublisherOption[T] {
	return func(o *publisherOptions[T]) {
		o.logger = logger
	}
}

// WithPublisherBufferSize 設置內部佇列的初始容量
func WithPublisherBufferSize[T any](size int) PublisherOption[T] {
	return func(o *publisherOptions[T]) {
		o.bufferSize = size
	}
}

// WithPublisherEncodeFunc 設置事件序列化函數
func WithPublisherEncodeFunc[T any](fn func(T) (map[string]any, error)) PublisherOption[T] {
	return func(o *publisherOptions[T]) {
		o.encodeFunc = fn
	}
}

// Publisher 將事件寫入Redis Stream
// Publish 只把事件放進無上限的內部佇列就返回，XADD由背景goroutine慢慢送出，
// 因此可以安全地在引擎的序列化鎖內呼叫而不會阻塞狀態轉移
type Publisher[T any] struct {
	client     *redis.Client
	stream     string
	queue      *chanx.UnboundedChan[map[string]any]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    publisherOptions[T]
}

func NewPublisher[T any](client *redis.Client, stream string, opts ...PublisherOption[T]) (*Publisher[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := publisherOptions[T]{
		logger:     slog.Default(),
		bufferSize: 100,
		encodeFunc: EncodeEntry[T],
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Publisher[T]{
		client:  client,
		stream:  stream,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Publisher"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (p *Publisher[T]) Start() {
	if !p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.queue = chanx.NewUnboundedChan[map[string]any](ctx, p.options.bufferSize)
	p.cancelFunc = cancel
	p.closed = false
	p.logger.Info("starting stream publisher")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.logger.Info("publisher goroutine stopped")

		for {
			select {
			case <-ctx.Done():
				return
			case entry := <-p.queue.Out:
				id, err := p.client.XAdd(ctx, &redis.XAddArgs{
					Stream: p.stream,
					Values: entry,
				}).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					p.logger.Error("publish entry error", slog.Any("error", err))
					continue
				}
				p.logger.Debug("entry published", slog.String("entryId", id))
			}
		}
	}()
}

// Publish 將事件放進發布佇列，立即返回
func (p *Publisher[T]) Publish(data T) error {
	if p.closed {
		return ErrClosed
	}

	entry, err := p.options.encodeFunc(data)
	if err != nil {
		return fmt.Errorf("encode entry error: %w", err)
	}

	p.queue.In <- entry
	return nil
}

func (p *Publisher[T]) Close() {
	if p.closed {
		return
	}
	p.logger.Info("closing stream publisher")
	p.closed = true
	p.cancelFunc()
	p.wg.Wait()
	p.logger.Info("stream publisher closed")
}
