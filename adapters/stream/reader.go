package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type readerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
	decodeFunc   func(map[string]any) (T, error)
}

type ReaderOption[T any] func(*readerOptions[T])

// WithReaderLogger 設置日誌記錄器
func WithReaderLogger[T any](logger *slog.Logger) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.logger = logger
	}
}

// WithReaderBufferSize 設置下游channel的緩衝大小
func WithReaderBufferSize[T any](size int) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.bufferSize = size
	}
}

// WithReaderBlockTimeout 設置阻塞讀取的超時時間
func WithReaderBlockTimeout[T any](d time.Duration) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithReaderDecodeFunc 設置自定義解碼函數
func WithReaderDecodeFunc[T any](fn func(map[string]any) (T, error)) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.decodeFunc = fn
	}
}

// Reader 從Redis Stream的尾端開始追蹤新訊息並送進下游channel
// 解碼失敗的訊息會被記錄後跳過，不會中斷整個消費流程
type Reader[T any] struct {
	client     *redis.Client
	stream     string
	lastID     string
	downstream chan T
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    readerOptions[T]
}

func NewReader[T any](client *redis.Client, stream string, opts ...ReaderOption[T]) (*Reader[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := readerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		blockTimeout: time.Second,
		decodeFunc:   DecodeEntry[T],
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Reader[T]{
		client:  client,
		stream:  stream,
		lastID:  "$",
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Reader"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (r *Reader[T]) Start() {
	if !r.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.downstream = make(chan T, r.options.bufferSize)
	r.cancelFunc = cancel
	r.closed = false
	r.logger.Info("starting stream reader")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.logger.Info("reader goroutine stopped")
		defer close(r.downstream)

		for {
			select {
			case <-ctx.Done():
				return
			default:
				entry, err := r.fetchNext(ctx)
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if errors.Is(err, context.Canceled) {
						return
					}
					r.logger.Error("fetch entry error", slog.Any("error", err))
					continue
				}

				data, err := r.options.decodeFunc(entry.Values)
				if err != nil {
					r.logger.Error("failed to decode entry",
						slog.String("entryId", entry.ID),
						slog.Any("error", err))
					continue
				}

				select {
				case <-ctx.Done():
					return
				case r.downstream <- data:
					r.logger.Debug("entry sent to downstream", slog.String("entryId", entry.ID))
				}
			}
		}
	}()
}

func (r *Reader[T]) fetchNext(ctx context.Context) (redis.XMessage, error) {
	streams, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{r.stream, r.lastID},
		Count:   1,
		Block:   r.options.blockTimeout,
	}).Result()
	if err != nil {
		return redis.XMessage{}, err
	}

	if len(streams) > 0 && len(streams[0].Messages) > 0 {
		entry := streams[0].Messages[0]
		r.lastID = entry.ID
		r.logger.Debug("received entry", slog.String("entryId", entry.ID))
		return entry, nil
	}

	return redis.XMessage{}, redis.Nil
}

// Subscribe 訂閱解碼後的訊息流
func (r *Reader[T]) Subscribe() <-chan T {
	return r.downstream
}

// Close 關閉消費者
func (r *Reader[T]) Close() {
	if r.closed {
		return
	}
	r.logger.Info("closing stream reader")
	r.closed = true
	r.cancelFunc()
	r.wg.Wait()
	r.logger.Info("stream reader closed")
}
