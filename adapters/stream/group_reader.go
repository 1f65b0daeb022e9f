package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message 封裝一條需要明確確認的訊息
// Ack 確認處理完成；Reject 把訊息搬進dead-letter stream後再確認，
// 兩者都是冪等的
type Message[T any] struct {
	Data T

	client  *redis.Client
	acked   bool
	entryID string
	stream  string
	group   string

	raw map[string]any
}

// EntryID 回傳訊息在stream中的條目ID
// 每次重送的都是同一個ID，下游可以拿它當成寫入的冪等鍵
func (m *Message[T]) EntryID() string {
	return m.entryID
}

// Ack 確認訊息已處理完成
func (m *Message[T]) Ack(ctx context.Context) error {
	const op = "Message.Ack"
	if m.acked {
		return nil
	}
	if err := m.client.XAck(ctx, m.stream, m.group, m.entryID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack message: %w", op, err)
	}
	m.acked = true
	return nil
}

// Reject 宣告訊息處理失敗，附上失敗原因後搬進dead-letter stream
func (m *Message[T]) Reject(ctx context.Context, cause error) error {
	const op = "Message.Reject"
	if m.acked {
		return nil
	}

	m.raw["error"] = cause.Error()
	if err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream + ":dead-letter",
		Values: m.raw,
	}).Err(); err != nil {
		return fmt.Errorf("[%s] failed to move message to dead letter stream: %w", op, err)
	}

	if err := m.client.XAck(ctx, m.stream, m.group, m.entryID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack rejected message: %w", op, err)
	}
	m.acked = true
	return nil
}

type groupReaderOptions[T any] struct {
	logger         *slog.Logger
	decodeFunc     func(map[string]any) (T, error)
	bufferSize     int
	blockTimeout   time.Duration
	lease          ILease
	strictOrdering bool
}

type GroupReaderOption[T any] func(*groupReaderOptions[T])

// WithGroupReaderLogger 設置日誌記錄器
func WithGroupReaderLogger[T any](logger *slog.Logger) GroupReaderOption[T] {
	return func(o *groupReaderOptions[T]) {
		o.logger = logger
	}
}

// WithGroupReaderDecodeFunc 設置訊息解碼函數
func WithGroupReaderDecodeFunc[T any](fn func(map[string]any) (T, error)) GroupReaderOption[T] {
	return func(o *groupReaderOptions[T]) {
		o.decodeFunc = fn
	}
}

// WithGroupReaderBufferSize 設置下游channel的緩衝大小
func WithGroupReaderBufferSize[T any](size int) GroupReaderOption[T] {
	return func(o *groupReaderOptions[T]) {
		o.bufferSize = size
	}
}

// WithGroupReaderBlockTimeout 設置阻塞讀取的超時時間
func WithGroupReaderBlockTimeout[T any](d time.Duration) GroupReaderOption[T] {
	return func(o *groupReaderOptions[T]) {
		o.blockTimeout = d
	}
}

// WithGroupReaderLease 注入lease (主要用於測試)
func WithGroupReaderLease[T any](lease ILease) GroupReaderOption[T] {
	return func(o *groupReaderOptions[T]) {
		o.lease = lease
	}
}

// WithGroupReaderStrictOrdering 設置是否使用嚴格順序模式
// 嚴格順序模式下整個group同時只有一個消費者在工作(由分散式鎖保證)，
// 並且每一輪開始時會優先處理pending的舊訊息
func WithGroupReaderStrictOrdering[T any](strict bool) GroupReaderOption[T] {
	return func(o *groupReaderOptions[T]) {
		o.strictOrdering = strict
	}
}

// GroupReader 以consumer group的方式消費Redis Stream
// 與 Reader 不同，每條訊息都要由下游明確 Ack/Reject，
// 沒被確認的訊息會留在pending清單中等待重新處理
type GroupReader[T any] struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	downstream chan *Message[T]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	lease      ILease
	pendingIDs []string
	options    groupReaderOptions[T]
}

func NewGroupReader[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...GroupReaderOption[T],
) (IGroupReader[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	options := groupReaderOptions[T]{
		logger:         slog.Default(),
		decodeFunc:     DecodeEntry[T],
		bufferSize:     1,
		blockTimeout:   time.Second,
		strictOrdering: false,
	}
	for _, opt := range opts {
		opt(&options)
	}

	gr := &GroupReader[T]{
		logger:   options.logger.With(slog.String("caller", "GroupReader"), slog.String("stream", stream), slog.String("group", group), slog.String("consumer", consumer)),
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		options:  options,
	}

	// 只有嚴格順序模式需要鎖
	if options.strictOrdering {
		if options.lease != nil {
			gr.lease = options.lease
		} else {
			gr.lease = NewLease(client, fmt.Sprintf("lease:%s:%s", stream, group), WithLeaseRetryOnError(true))
		}
	}

	return gr, nil
}

func (g *GroupReader[T]) Start() error {
	if !g.closed {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.downstream = make(chan *Message[T], g.options.bufferSize)
	g.cancelFunc = cancel
	g.closed = false
	g.logger.Info("starting group reader")

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.logger.Info("group reader goroutine stopped")
		defer close(g.downstream)
		defer func() {
			if g.options.strictOrdering {
				g.lease.Release()
			}
		}()

		for {
			workCtx := ctx

			// 嚴格順序模式下先拿鎖再開始消費；
			// workCtx會變成綁定鎖生命週期的child context，鎖掉了就會收到取消信號
			if g.options.strictOrdering {
				var err error
				workCtx, err = g.lease.Acquire(ctx)
				if err != nil {
					g.logger.Error("failed to acquire lease", slog.Any("error", err))
					if errors.Is(err, context.Canceled) {
						break
					}
					continue
				}
			}
			if err := g.consumeLoop(workCtx); err != nil {
				// 外部context取消代表Close被呼叫，結束工作
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					break
				}
				if g.options.strictOrdering && errors.Is(err, context.Canceled) && ctx.Err() == nil {
					// 鎖的context被取消: 停止目前的處理並重新搶鎖
					g.logger.Error("lease context cancelled, restarting group reader")
				} else {
					g.logger.Error("error consuming messages, restarting group reader", slog.Any("error", err))
				}
				continue
			}
		}
	}()

	return nil
}

// Subscribe 訂閱訊息流，每條訊息需要明確確認
func (g *GroupReader[T]) Subscribe() <-chan *Message[T] {
	return g.downstream
}

func (g *GroupReader[T]) Close() error {
	if g.closed {
		return nil
	}
	g.logger.Info("closing group reader")
	g.closed = true
	g.cancelFunc()

	g.wg.Wait()
	g.logger.Info("group reader closed gracefully")
	return nil
}

func (g *GroupReader[T]) consumeLoop(ctx context.Context) error {
	if g.options.strictOrdering {
		if err := g.fetchPendingIDs(ctx); err != nil {
			g.logger.Error("initial pending messages fetch failed", slog.Any("error", err))
			return err
		}
	}
	for {
		entry, err := g.fetchNext(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			// 其他錯誤通常是與Redis之間的通訊異常，重試即可
			g.logger.Error("fetch entry error", slog.Any("error", err))
			continue
		}
		data, err := g.options.decodeFunc(entry.Values)
		if err != nil {
			// 解碼失敗不會因為重試而成功，直接搬進dead-letter讓系統繼續前進
			g.logger.Error("failed to decode entry",
				slog.String("entryId", entry.ID),
				slog.Any("error", err),
			)
			if dlErr := g.moveToDeadLetter(ctx, entry); dlErr != nil {
				g.logger.Error("error moving entry to dead letter",
					slog.String("entryId", entry.ID),
					slog.Any("error", dlErr),
				)
				// 搬移失敗時訊息會以pending的形式留在stream中，
				// 嚴格順序模式下會在下一輪開始時優先處理
				return dlErr
			}
			continue
		}
		msg := &Message[T]{
			Data:    data,
			entryID: entry.ID,
			stream:  g.stream,
			group:   g.group,
			client:  g.client,
			raw:     entry.Values,
		}
		if err := g.sendDownstream(ctx, msg); err != nil {
			g.logger.Error("error sending entry to downstream",
				slog.String("entryId", entry.ID),
				slog.Any("error", err),
			)
			return err
		}
	}
}

func (g *GroupReader[T]) fetchPendingIDs(ctx context.Context) error {
	g.pendingIDs = make([]string, 0, 1000)
	lastID := "-"

	for {
		pending, err := g.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: g.stream,
			Group:  g.group,
			Start:  lastID,
			End:    "+",
			Count:  100,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return fmt.Errorf("error getting pending messages: %w", err)
		}

		if len(pending) == 0 {
			break
		}

		for _, p := range pending {
			g.pendingIDs = append(g.pendingIDs, p.ID)
		}
		lastID = pending[len(pending)-1].ID

		if len(pending) < 100 {
			break
		}
	}

	g.logger.Info("fetched all pending message IDs", slog.Int("count", len(g.pendingIDs)))
	return nil
}

func (g *GroupReader[T]) fetchNext(ctx context.Context) (redis.XMessage, error) {
	var entry redis.XMessage
	var err error

	if len(g.pendingIDs) > 0 {
		// 優先處理pending的舊訊息
		var entries []redis.XMessage
		entries, err = g.client.XRangeN(ctx, g.stream, g.pendingIDs[0], g.pendingIDs[0], 1).Result()
		g.pendingIDs = g.pendingIDs[1:]
		if len(entries) > 0 {
			entry = entries[0]
		}
	} else {
		var streams []redis.XStream
		streams, err = g.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    g.group,
			Consumer: g.consumer,
			Streams:  []string{g.stream, ">"},
			Count:    1,
			Block:    g.options.blockTimeout,
		}).Result()
		if len(streams) > 0 && len(streams[0].Messages) > 0 {
			entry = streams[0].Messages[0]
		}
	}

	return entry, err
}

func (g *GroupReader[T]) moveToDeadLetter(ctx context.Context, entry redis.XMessage) error {
	if err := g.client.XAdd(ctx, &redis.XAddArgs{
		Stream: g.stream + ":dead-letter",
		Values: entry.Values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to move entry to dead letter stream: %w", err)
	}

	return g.client.XAck(ctx, g.stream, g.group, entry.ID).Err()
}

func (g *GroupReader[T]) sendDownstream(ctx context.Context, msg *Message[T]) error {
	if ctx.Err() != nil {
		return context.Canceled
	}
	select {
	case <-ctx.Done():
		return context.Canceled
	case g.downstream <- msg:
		return nil
	}
}
