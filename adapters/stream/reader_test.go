package stream

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewReader(t *testing.T) {
	client, _, cleanup := setupTest(t)
	defer cleanup()

	tests := []struct {
		name    string
		client  *redis.Client
		stream  string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid configuration",
			client:  client,
			stream:  "auction-events",
			wantErr: false,
		},
		{
			name:    "nil client",
			client:  nil,
			stream:  "auction-events",
			wantErr: true,
			errMsg:  "redis client cannot be nil",
		},
		{
			name:    "empty stream",
			client:  client,
			stream:  "",
			wantErr: true,
			errMsg:  "stream cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			reader, err := NewReader[testEvent](tt.client, tt.stream)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, reader)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, reader)
				reader.Close()
			}
		})
	}
}

func TestReader_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, mock, cleanup := setupTest(t)
	defer cleanup()

	mock.ExpectXRead(&redis.XReadArgs{
		Streams: []string{"auction-events", "$"},
		Count:   1,
		Block:   time.Second,
	}).SetErr(redis.Nil)

	reader, err := NewReader[testEvent](client, "auction-events")
	require.NoError(t, err)

	reader.Start()
	reader.Start() // no-op
	time.Sleep(100 * time.Millisecond)
	reader.Close()
	reader.Close() // no-op
}

func TestReader_Consumption(t *testing.T) {
	t.Run("successful consumption", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		event := testEvent{AuctionID: 3, Amount: 250}
		entry, err := EncodeEntry(event)
		require.NoError(t, err)

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"auction-events", "$"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "auction-events",
				Messages: []redis.XMessage{
					{ID: "1-0", Values: entry},
				},
			},
		})

		reader, err := NewReader[testEvent](client, "auction-events")
		require.NoError(t, err)

		reader.Start()
		defer reader.Close()

		select {
		case received := <-reader.Subscribe():
			assert.Equal(t, event, received)
		case <-time.After(time.Second):
			t.Fatal("did not receive event in time")
		}
	})

	t.Run("undecodable entry is skipped", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		event := testEvent{AuctionID: 4, Amount: 300}
		goodEntry, err := EncodeEntry(event)
		require.NoError(t, err)

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"auction-events", "$"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "auction-events",
				Messages: []redis.XMessage{
					{ID: "1-0", Values: map[string]any{"payload": "%%%"}},
				},
			},
		})
		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"auction-events", "1-0"},
			Count:   1,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "auction-events",
				Messages: []redis.XMessage{
					{ID: "2-0", Values: goodEntry},
				},
			},
		})

		reader, err := NewReader[testEvent](client, "auction-events")
		require.NoError(t, err)

		reader.Start()
		defer reader.Close()

		select {
		case received := <-reader.Subscribe():
			assert.Equal(t, event, received)
		case <-time.After(time.Second):
			t.Fatal("did not receive event in time")
		}
	})
}
