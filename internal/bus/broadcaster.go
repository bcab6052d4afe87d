// ABOUTME: In-memory fan-out broadcaster delivering encoded envelopes per channel
// ABOUTME: Device providers subscribe to a user's group to hear about key changes

package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize is the channel buffer for each subscriber.
const DefaultBufferSize = 64

// ErrClosed is returned when publishing to a closed broadcaster.
var ErrClosed = errors.New("bus closed")

// Publisher sends an envelope to every subscriber of a channel.
type Publisher interface {
	Publish(ctx context.Context, env *Envelope) error
}

// Broadcaster provides in-memory pub/sub for envelopes. Subscribers register
// for a channel and receive encoded frames as they are published.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan []byte // channel -> subID -> ch
	bufferSize  int
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default and a
// non-positive bufferSize for DefaultBufferSize.
func NewBroadcaster(bufferSize int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan []byte),
		bufferSize:  bufferSize,
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber for frames on channel. Returns a channel
// that receives frames and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, channel string) (<-chan []byte, string) {
	subID := uuid.New().String()
	ch := make(chan []byte, b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[channel]; !ok {
		b.subscribers[channel] = make(map[string]chan []byte)
	}
	b.subscribers[channel][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "channel", channel, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(channel, subID)
	}()

	return ch, subID
}

// Publish encodes env and sends it to all subscribers of env.Channel.
// Non-blocking: frames are dropped for subscribers whose buffers are full.
func (b *Broadcaster) Publish(ctx context.Context, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := Encode(env)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for subID, ch := range b.subscribers[env.Channel] {
		select {
		case ch <- frame:
		default:
			b.logger.Warn("dropped frame for slow subscriber",
				"channel", env.Channel,
				"sub_id", subID,
				"envelope_id", env.ID)
		}
	}
	return nil
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(channel, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[channel]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, channel)
	}

	b.logger.Debug("subscriber removed", "channel", channel, "sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions on channel.
func (b *Broadcaster) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for channel, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, channel)
	}

	b.logger.Debug("broadcaster closed")
}
