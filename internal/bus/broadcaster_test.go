// ABOUTME: Tests for Broadcaster fan-out pub/sub and envelope encoding
// ABOUTME: Covers subscribe, publish, isolation, slow subscribers, cancellation and close

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEnvelope(t *testing.T, channel string) *Envelope {
	t.Helper()
	env, err := NewEnvelope(channel, TypeAdbKeysUpdated, AdbKeysUpdatedMessage{})
	require.NoError(t, err)
	return env
}

func receive(t *testing.T, ch <-chan []byte) *Envelope {
	t.Helper()
	select {
	case frame, ok := <-ch:
		require.True(t, ok, "channel closed")
		env, err := Decode(frame)
		require.NoError(t, err)
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestBroadcaster_SingleSubscriberReceivesEnvelope(t *testing.T) {
	b := NewBroadcaster(0, nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "grp-1")

	env := mustEnvelope(t, "grp-1")
	require.NoError(t, b.Publish(t.Context(), env))

	got := receive(t, ch)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, TypeAdbKeysUpdated, got.Type)
	assert.Equal(t, "grp-1", got.Channel)
}

func TestBroadcaster_MultipleSubscribersReceiveSameEnvelope(t *testing.T) {
	b := NewBroadcaster(0, nil)
	defer b.Close()

	ctx := t.Context()
	ch1, _ := b.Subscribe(ctx, "grp-1")
	ch2, _ := b.Subscribe(ctx, "grp-1")

	env := mustEnvelope(t, "grp-1")
	require.NoError(t, b.Publish(ctx, env))

	assert.Equal(t, env.ID, receive(t, ch1).ID)
	assert.Equal(t, env.ID, receive(t, ch2).ID)
}

func TestBroadcaster_ChannelsAreIsolated(t *testing.T) {
	b := NewBroadcaster(0, nil)
	defer b.Close()

	ctx := t.Context()
	ch1, _ := b.Subscribe(ctx, "grp-1")
	ch2, _ := b.Subscribe(ctx, "grp-2")

	require.NoError(t, b.Publish(ctx, mustEnvelope(t, "grp-1")))

	receive(t, ch1)
	select {
	case <-ch2:
		t.Fatal("grp-2 should not receive grp-1 frames")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SlowSubscriberDropsFrames(t *testing.T) {
	b := NewBroadcaster(2, nil)
	defer b.Close()

	ctx := t.Context()
	ch, _ := b.Subscribe(ctx, "grp-1")

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(ctx, mustEnvelope(t, "grp-1")))
	}
	assert.Len(t, ch, 2)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(0, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "grp-1")
	assert.Equal(t, 1, b.SubscriberCount("grp-1"))

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("subscription not cleaned up")
	}
	assert.Equal(t, 0, b.SubscriberCount("grp-1"))
}

func TestBroadcaster_UnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewBroadcaster(0, nil)
	defer b.Close()

	_, subID := b.Subscribe(t.Context(), "grp-1")
	b.Unsubscribe("grp-1", subID)
	b.Unsubscribe("grp-1", subID)
	b.Unsubscribe("unknown", subID)
}

func TestBroadcaster_PublishAfterClose(t *testing.T) {
	b := NewBroadcaster(0, nil)
	ch, _ := b.Subscribe(t.Context(), "grp-1")
	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.ErrorIs(t, b.Publish(t.Context(), mustEnvelope(t, "grp-1")), ErrClosed)

	late, _ := b.Subscribe(t.Context(), "grp-1")
	_, ok = <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestBroadcaster_PublishCancelledContext(t *testing.T) {
	b := NewBroadcaster(0, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Publish(ctx, mustEnvelope(t, "grp-1")), context.Canceled)
}

func TestBroadcaster_ConcurrentPublish(t *testing.T) {
	b := NewBroadcaster(100, nil)
	defer b.Close()

	ctx := t.Context()
	ch, _ := b.Subscribe(ctx, "grp-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Publish(ctx, mustEnvelope(t, "grp-1"))
		}()
	}
	wg.Wait()
	assert.Len(t, ch, 20)
}

func TestEnvelope_Deterministic(t *testing.T) {
	env := &Envelope{ID: "x", Type: TypeAdbKeysUpdated, Channel: "g", CreatedAt: 1}
	a, err := Encode(env)
	require.NoError(t, err)
	b, err := Encode(env)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEnvelope_Payload(t *testing.T) {
	type payload struct {
		Serial string `cbor:"serial"`
	}
	env, err := NewEnvelope("g", "DeviceChanged", payload{Serial: "emulator-5554"})
	require.NoError(t, err)

	frame, err := Encode(env)
	require.NoError(t, err)
	got, err := Decode(frame)
	require.NoError(t, err)

	var p payload
	require.NoError(t, got.DecodePayload(&p))
	assert.Equal(t, "emulator-5554", p.Serial)

	var generic map[string]any
	require.NoError(t, got.DecodePayload(&generic))
	assert.Equal(t, "emulator-5554", generic["serial"])
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00})
	assert.Error(t, err)
}
