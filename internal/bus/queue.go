package bus

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrTimeout is returned when a message receive operation times out.
var ErrTimeout = errors.New("timeout waiting for message")

// ErrClosed is returned by receive operations after Close.
var ErrClosed = errors.New("message bus closed")

// MessageBus carries user turns from channels to the conversation loop and
// replies back to the channels that subscribed for them.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	subscribers map[string][]func(OutboundMessage)
	mu          sync.RWMutex

	closed    chan struct{}
	closeOnce sync.Once
}

// NewMessageBus creates a new MessageBus with the specified buffer size
// for both inbound and outbound channels.
func NewMessageBus(bufferSize int) *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundMessage, bufferSize),
		outbound:    make(chan OutboundMessage, bufferSize),
		subscribers: make(map[string][]func(OutboundMessage)),
		closed:      make(chan struct{}),
	}
}

// PublishInbound queues a user turn. It is dropped once the bus is closed.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case <-b.closed:
		return
	case b.inbound <- msg:
	}
}

// ConsumeInbound waits for an inbound message, giving up after timeout.
func (b *MessageBus) ConsumeInbound(ctx context.Context, timeout time.Duration) (InboundMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-timer.C:
		return InboundMessage{}, ErrTimeout
	case <-b.closed:
		return InboundMessage{}, ErrClosed
	case <-ctx.Done():
		return InboundMessage{}, ctx.Err()
	}
}

// PublishOutbound queues a reply. It is dropped once the bus is closed.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case <-b.closed:
		return
	case b.outbound <- msg:
	}
}

// SubscribeOutbound registers callback for replies addressed to channel.
func (b *MessageBus) SubscribeOutbound(channel string, callback func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], callback)
}

// DispatchOutbound delivers replies to subscribers until ctx is cancelled
// or the bus is closed. Replies for a channel nobody subscribed to are
// logged and dropped.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closed:
			return
		case msg := <-b.outbound:
			b.mu.RLock()
			callbacks := b.subscribers[msg.Channel]
			b.mu.RUnlock()

			if len(callbacks) == 0 {
				log.Printf("Warning: no subscriber for channel %s, reply to %s dropped", msg.Channel, msg.ChatID)
				continue
			}

			for _, cb := range callbacks {
				go deliver(cb, msg)
			}
		}
	}
}

func deliver(callback func(OutboundMessage), msg OutboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Error: outbound subscriber for %s panicked: %v", msg.Channel, r)
		}
	}()
	callback(msg)
}

// InboundSize returns the current number of messages in the inbound channel.
func (b *MessageBus) InboundSize() int {
	return len(b.inbound)
}

// OutboundSize returns the current number of messages in the outbound channel.
func (b *MessageBus) OutboundSize() int {
	return len(b.outbound)
}

// Close stops all dispatch operations. It is safe to call more than once.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}
