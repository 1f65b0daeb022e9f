package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

type leaseOptions struct {
	renewInterval time.Duration
	retryDelay    time.Duration
	expiry        time.Duration
	retryOnError  bool
}

type LeaseOption func(*leaseOptions)

// WithLeaseRenewInterval 設置自動續期的間隔
func WithLeaseRenewInterval(d time.Duration) LeaseOption {
	return func(o *leaseOptions) {
		o.renewInterval = d
	}
}

// WithLeaseRetryDelay 設置搶鎖失敗後的重試延遲
func WithLeaseRetryDelay(d time.Duration) LeaseOption {
	return func(o *leaseOptions) {
		o.retryDelay = d
	}
}

// WithLeaseExpiry 設置鎖的過期時間
func WithLeaseExpiry(d time.Duration) LeaseOption {
	return func(o *leaseOptions) {
		o.expiry = d
	}
}

// WithLeaseRetryOnError 設置遇到Redis通訊錯誤時是否繼續重試而不是直接放棄
func WithLeaseRetryOnError(retry bool) LeaseOption {
	return func(o *leaseOptions) {
		o.retryOnError = retry
	}
}

// Lease 是帶自動續期的分散式鎖
// Acquire 成功後會啟動續期goroutine，並回傳一個綁定鎖生命週期的context：
// 一旦續期失敗(鎖被別人拿走或Redis斷線)，該context會被取消，
// 持有者要用它來中止正在進行的工作
type Lease struct {
	*redsync.Mutex
	cancel  context.CancelFunc
	held    bool
	mu      sync.Mutex
	wg      sync.WaitGroup
	options leaseOptions
}

// NewLease 建立一個自動續期的分散式鎖
func NewLease(client *redis.Client, key string, opts ...LeaseOption) ILease {
	options := leaseOptions{
		expiry:        8 * time.Second,
		retryDelay:    500 * time.Millisecond,
		renewInterval: 0, // 未設置時以expiry的1/3推算
		retryOnError:  false,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.renewInterval <= 0 {
		options.renewInterval = options.expiry / 3
	}

	pool := goredis.NewPool(client)
	rs := redsync.New(pool)
	mutex := rs.NewMutex(
		key,
		redsync.WithExpiry(options.expiry),
		redsync.WithTries(1),
		redsync.WithRetryDelay(options.retryDelay),
	)

	return &Lease{
		Mutex:   mutex,
		options: options,
	}
}

// Acquire 取得鎖並啟動自動續期，可以透過傳入的context取消等待
func (l *Lease) Acquire(ctx context.Context) (context.Context, error) {
	timer := time.NewTimer(1)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			err := l.Mutex.LockContext(ctx)
			if err == nil {
				leaseCtx, cancel := context.WithCancel(ctx)
				l.cancel = cancel
				l.startRenewal(leaseCtx)
				return leaseCtx, nil
			}
			// 鎖被別人持有時重試；Redis通訊錯誤依設定決定是否放棄
			var commErr *redsync.RedisError
			if !l.options.retryOnError && errors.As(err, &commErr) {
				return nil, fmt.Errorf("failed to acquire lease: %w", err)
			}
			timer.Reset(l.options.retryDelay)
		}
	}
}

// Release 停止自動續期並釋放鎖
func (l *Lease) Release() (bool, error) {
	l.stopRenewal()
	l.wg.Wait()
	return l.Mutex.Unlock()
}

// Held 檢查鎖是否仍然有效
func (l *Lease) Held() bool {
	return time.Now().Before(l.Mutex.Until()) && l.held
}

func (l *Lease) startRenewal(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return
	}

	l.held = true
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.options.renewInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				success, err := l.Mutex.Extend()
				if err != nil || !success {
					l.stopRenewal()
					return
				}
			}
		}
	}()
}

func (l *Lease) stopRenewal() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}

	l.held = false
	if l.cancel != nil {
		l.cancel()
	}
}
