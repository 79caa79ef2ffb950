package bus

import (
	"context"
	"log"
	"sync"
)

// MessageBus decouples the webhook ingress from pipeline execution and
// pipeline execution from delivery. Publishing never blocks the caller.
type MessageBus struct {
	Inbound  chan InboundEvent
	Outbound chan OutboundReply

	mu       sync.RWMutex
	handlers map[string]func(OutboundReply)
}

func NewMessageBus(bufSize int) *MessageBus {
	if bufSize <= 0 {
		bufSize = 1
	}
	return &MessageBus{
		Inbound:  make(chan InboundEvent, bufSize),
		Outbound: make(chan OutboundReply, bufSize),
		handlers: make(map[string]func(OutboundReply)),
	}
}

// PublishInbound enqueues an event without blocking. It returns false when
// the queue is full; the caller acknowledges the webhook either way.
func (b *MessageBus) PublishInbound(ev InboundEvent) bool {
	select {
	case b.Inbound <- ev:
		return true
	default:
		return false
	}
}

// SubscribeOutbound registers the delivery handler for a channel name.
func (b *MessageBus) SubscribeOutbound(channel string, fn func(OutboundReply)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = fn
}

// DispatchOutbound consumes outbound replies and hands each to its channel's
// delivery handler. Runs until ctx is cancelled.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case out := <-b.Outbound:
			b.mu.RLock()
			fn := b.handlers[out.Channel]
			b.mu.RUnlock()
			if fn == nil {
				log.Printf("[bus] no outbound handler for channel %q, dropping reply", out.Channel)
				continue
			}
			fn(out)
		case <-ctx.Done():
			return
		}
	}
}
