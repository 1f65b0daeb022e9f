package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeLease 測試用的lease，不經過Redis
type fakeLease struct {
	cancel context.CancelFunc
}

func (f *fakeLease) Acquire(ctx context.Context) (context.Context, error) {
	leaseCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	return leaseCtx, nil
}

func (f *fakeLease) Release() (bool, error) {
	if f.cancel != nil {
		f.cancel()
	}
	return true, nil
}

func (f *fakeLease) Held() bool {
	return f.cancel != nil
}

func TestNewGroupReader(t *testing.T) {
	client, _, cleanup := setupTest(t)
	defer cleanup()

	tests := []struct {
		name     string
		client   *redis.Client
		stream   string
		group    string
		consumer string
		wantErr  bool
	}{
		{
			name:     "valid configuration",
			client:   client,
			stream:   "auction-events",
			group:    "archive",
			consumer: "node-1",
		},
		{
			name:     "nil client",
			client:   nil,
			stream:   "auction-events",
			group:    "archive",
			consumer: "node-1",
			wantErr:  true,
		},
		{
			name:     "empty stream",
			client:   client,
			stream:   "",
			group:    "archive",
			consumer: "node-1",
			wantErr:  true,
		},
		{
			name:     "empty group",
			client:   client,
			stream:   "auction-events",
			group:    "",
			consumer: "node-1",
			wantErr:  true,
		},
		{
			name:     "empty consumer",
			client:   client,
			stream:   "auction-events",
			group:    "archive",
			consumer: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			reader, err := NewGroupReader[testEvent](tt.client, tt.stream, tt.group, tt.consumer)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, reader)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, reader)
				reader.Close()
			}
		})
	}
}

func TestGroupReader_AckFlow(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, mock, cleanup := setupTest(t)
	defer cleanup()

	event := testEvent{AuctionID: 9, Amount: 750}
	entry, err := EncodeEntry(event)
	require.NoError(t, err)

	mock.ExpectXReadGroup(&redis.XReadGroupArgs{
		Group:    "archive",
		Consumer: "node-1",
		Streams:  []string{"auction-events", ">"},
		Count:    1,
		Block:    time.Second,
	}).SetVal([]redis.XStream{
		{
			Stream: "auction-events",
			Messages: []redis.XMessage{
				{ID: "1-0", Values: entry},
			},
		},
	})
	mock.ExpectXAck("auction-events", "archive", "1-0").SetVal(1)

	reader, err := NewGroupReader[testEvent](client, "auction-events", "archive", "node-1")
	require.NoError(t, err)

	require.NoError(t, reader.Start())
	defer reader.Close()

	select {
	case msg := <-reader.Subscribe():
		assert.Equal(t, event, msg.Data)
		assert.Equal(t, "1-0", msg.EntryID())
		assert.NoError(t, msg.Ack(context.Background()))
		// Ack是冪等的
		assert.NoError(t, msg.Ack(context.Background()))
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}
}

// 沒被Ack的訊息重送時帶著同一個條目ID，下游才能拿它去重
func TestGroupReader_PendingReplayKeepsEntryID(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, mock, cleanup := setupTest(t)
	defer cleanup()

	event := testEvent{AuctionID: 5, Amount: 120}
	entry, err := EncodeEntry(event)
	require.NoError(t, err)

	mock.ExpectXPendingExt(&redis.XPendingExtArgs{
		Stream: "auction-events",
		Group:  "archive",
		Start:  "-",
		End:    "+",
		Count:  100,
	}).SetVal([]redis.XPendingExt{
		{ID: "7-0", Consumer: "node-1"},
	})
	mock.ExpectXRangeN("auction-events", "7-0", "7-0", 1).SetVal([]redis.XMessage{
		{ID: "7-0", Values: entry},
	})

	reader, err := NewGroupReader[testEvent](
		client,
		"auction-events", "archive", "node-1",
		WithGroupReaderStrictOrdering[testEvent](true),
		WithGroupReaderLease[testEvent](&fakeLease{}),
	)
	require.NoError(t, err)

	require.NoError(t, reader.Start())
	defer reader.Close()

	select {
	case msg := <-reader.Subscribe():
		assert.Equal(t, event, msg.Data)
		assert.Equal(t, "7-0", msg.EntryID())
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}
}

func TestGroupReader_RejectFlow(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, mock, cleanup := setupTest(t)
	defer cleanup()

	event := testEvent{AuctionID: 9, Amount: 750}
	entry, err := EncodeEntry(event)
	require.NoError(t, err)

	rejected := map[string]any{}
	for k, v := range entry {
		rejected[k] = v
	}
	rejected["error"] = "archive failed"

	mock.ExpectXReadGroup(&redis.XReadGroupArgs{
		Group:    "archive",
		Consumer: "node-1",
		Streams:  []string{"auction-events", ">"},
		Count:    1,
		Block:    time.Second,
	}).SetVal([]redis.XStream{
		{
			Stream: "auction-events",
			Messages: []redis.XMessage{
				{ID: "1-0", Values: entry},
			},
		},
	})
	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "auction-events:dead-letter",
		Values: rejected,
	}).SetVal("1-0")
	mock.ExpectXAck("auction-events", "archive", "1-0").SetVal(1)

	reader, err := NewGroupReader[testEvent](client, "auction-events", "archive", "node-1")
	require.NoError(t, err)

	require.NoError(t, reader.Start())
	defer reader.Close()

	select {
	case msg := <-reader.Subscribe():
		assert.NoError(t, msg.Reject(context.Background(), errors.New("archive failed")))
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}
}

func TestGroupReader_StrictOrdering(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, mock, cleanup := setupTest(t)
	defer cleanup()

	event := testEvent{AuctionID: 2, Amount: 40}
	entry, err := EncodeEntry(event)
	require.NoError(t, err)

	// 嚴格順序模式會先掃pending清單再讀新訊息
	mock.ExpectXPendingExt(&redis.XPendingExtArgs{
		Stream: "auction-events",
		Group:  "archive",
		Start:  "-",
		End:    "+",
		Count:  100,
	}).SetVal([]redis.XPendingExt{})
	mock.ExpectXReadGroup(&redis.XReadGroupArgs{
		Group:    "archive",
		Consumer: "node-1",
		Streams:  []string{"auction-events", ">"},
		Count:    1,
		Block:    time.Second,
	}).SetVal([]redis.XStream{
		{
			Stream: "auction-events",
			Messages: []redis.XMessage{
				{ID: "1-0", Values: entry},
			},
		},
	})

	reader, err := NewGroupReader[testEvent](
		client,
		"auction-events", "archive", "node-1",
		WithGroupReaderStrictOrdering[testEvent](true),
		WithGroupReaderLease[testEvent](&fakeLease{}),
	)
	require.NoError(t, err)

	require.NoError(t, reader.Start())
	defer reader.Close()

	select {
	case msg := <-reader.Subscribe():
		assert.Equal(t, event, msg.Data)
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}
}
