// Package channels connects chat platforms to the message bus.
package channels

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hkuds/prompthandler/internal/bus"
)

// Channel is the interface all channels must implement.
type Channel interface {
	// Name returns the unique identifier for this channel.
	Name() string

	// Start begins listening for messages on this channel.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop() error

	// Send delivers an outbound message through this channel.
	Send(msg bus.OutboundMessage) error

	// IsRunning returns true if the channel is currently active.
	IsRunning() bool
}

// BaseChannel holds the state shared by channel implementations.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowList []string
	running   bool
	mu        sync.RWMutex
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) BaseChannel {
	return BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
	}
}

// Name returns the channel's unique identifier.
func (c *BaseChannel) Name() string {
	return c.name
}

// IsRunning returns true if the channel is currently active.
func (c *BaseChannel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *BaseChannel) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = running
}

// IsAllowed checks if a sender may talk to the bot. Compound IDs of the
// form "123456|username" match on either part. An empty allow list denies
// everyone, since each conversation spends tokens on the owner's key.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		log.Printf("[security] channel=%s action=denied reason=no_allowed_users sender=%s", c.name, senderID)
		return false
	}

	for _, part := range strings.Split(senderID, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		for _, allowed := range c.allowList {
			if part == allowed || senderID == allowed {
				return true
			}
		}
	}

	return false
}

func (c *BaseChannel) publishInbound(senderID, chatID, messageID, content string) {
	c.bus.PublishInbound(bus.InboundMessage{
		Channel:   c.name,
		SenderID:  senderID,
		ChatID:    chatID,
		MessageID: messageID,
		Content:   content,
		Timestamp: time.Now(),
	})
}
