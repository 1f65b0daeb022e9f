package stream

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewLease(t *testing.T) {
	tests := []struct {
		name string
		key  string
		opts []LeaseOption
	}{
		{
			name: "default options",
			key:  "test-lease",
		},
		{
			name: "custom options",
			key:  "test-lease",
			opts: []LeaseOption{
				WithLeaseExpiry(5 * time.Second),
				WithLeaseRenewInterval(time.Second),
				WithLeaseRetryDelay(100 * time.Millisecond),
				WithLeaseRetryOnError(true),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			client, _, cleanup := setupTest(t)
			defer cleanup()

			lease := NewLease(client, tt.key, tt.opts...)
			require.NotNil(t, lease)
		})
	}
}

func TestLease_Acquire(t *testing.T) {
	t.Run("successful acquire and release", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.Regexp().ExpectSetNX("test-lease", ".*", 8*time.Second).SetVal(true)
		mock.Regexp().ExpectEvalSha(".*", []string{"test-lease"}, []string{".*"}).SetVal(int64(1))

		lease := NewLease(client, "test-lease")
		leaseCtx, err := lease.Acquire(context.Background())
		assert.NoError(t, err)
		assert.NotNil(t, leaseCtx)
		assert.True(t, lease.Held())

		ok, err := lease.Release()
		assert.NoError(t, err)
		assert.True(t, ok)

		// 釋放後綁定的context必須被取消
		select {
		case <-leaseCtx.Done():
		case <-time.After(100 * time.Millisecond):
			t.Error("lease context was not cancelled after release")
		}
	})

	t.Run("acquire with cancelled context", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		lease := NewLease(client, "test-lease")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		leaseCtx, err := lease.Acquire(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, leaseCtx)
	})

	t.Run("redis error with retry enabled keeps retrying until deadline", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.Regexp().ExpectSetNX("test-lease", ".*", 8*time.Second).SetErr(redis.ErrClosed)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		lease := NewLease(client, "test-lease", WithLeaseRetryOnError(true))
		leaseCtx, err := lease.Acquire(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Nil(t, leaseCtx)
	})

	t.Run("redis error without retry fails immediately", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.Regexp().ExpectSetNX("test-lease", ".*", 8*time.Second).SetErr(redis.ErrClosed)

		lease := NewLease(client, "test-lease")
		leaseCtx, err := lease.Acquire(context.Background())
		assert.Error(t, err)
		assert.NotErrorIs(t, err, context.DeadlineExceeded)
		assert.Nil(t, leaseCtx)
	})
}
