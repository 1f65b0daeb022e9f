package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gavel/adapters/sse"
)

func TestNewHub(t *testing.T) {
	transport := newLoopback()

	tests := []struct {
		name      string
		publisher *loopback
		reader    *loopback
		wantErr   bool
	}{
		{
			name:      "valid configuration",
			publisher: transport,
			reader:    transport,
		},
		{
			name:    "nil publisher",
			reader:  transport,
			wantErr: true,
		},
		{
			name:      "nil reader",
			publisher: transport,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hub *sse.Hub[Message]
			var err error
			// typed nil不能直接傳入，否則介面值不為nil
			switch {
			case tt.publisher == nil:
				hub, err = sse.NewHub[Message](nil, tt.reader)
			case tt.reader == nil:
				hub, err = sse.NewHub[Message](tt.publisher, nil)
			default:
				hub, err = sse.NewHub[Message](tt.publisher, tt.reader)
			}
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, hub)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, hub)
			}
		})
	}
}

func TestHub_PublishSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newLoopback()
	hub, err := sse.NewHub[Message](transport, transport)
	require.NoError(t, err)

	hub.Start()
	defer hub.Done()

	// 測試訂閱
	ch, err := hub.Subscribe("auction:1")
	require.NoError(t, err)
	require.NotNil(t, ch)

	// 測試發布訊息
	msg := Message{Data: "price dropped"}
	require.NoError(t, hub.Publish("auction:1", msg))

	select {
	case received := <-ch:
		assert.Equal(t, msg, received)
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}

	// 測試取消訂閱
	hub.Unsubscribe("auction:1", ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
}

func TestHub_ChannelIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newLoopback()
	hub, err := sse.NewHub[Message](transport, transport)
	require.NoError(t, err)

	hub.Start()
	defer hub.Done()

	first, err := hub.Subscribe("auction:1")
	require.NoError(t, err)
	second, err := hub.Subscribe("auction:2")
	require.NoError(t, err)

	require.NoError(t, hub.Publish("auction:2", Message{Data: "sold"}))

	select {
	case received := <-second:
		assert.Equal(t, "sold", received.Data)
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}

	select {
	case received := <-first:
		t.Fatalf("unexpected message on other channel: %+v", received)
	case <-time.After(100 * time.Millisecond):
	}

	hub.Unsubscribe("auction:1", first)
	hub.Unsubscribe("auction:2", second)
}

func TestHub_Done(t *testing.T) {
	defer goleak.VerifyNone(t)

	transport := newLoopback()
	hub, err := sse.NewHub[Message](transport, transport)
	require.NoError(t, err)

	hub.Start()

	ch, err := hub.Subscribe("auction:1")
	require.NoError(t, err)

	hub.Done()
	hub.Done() // no-op

	// 停止後所有訂閱者的通道都要被關閉
	_, ok := <-ch
	assert.False(t, ok)

	// 停止後的操作回傳context.Canceled
	_, err = hub.Subscribe("auction:1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, hub.Publish("auction:1", Message{}), context.Canceled)
}
