// Package agent runs chat-channel conversations: each inbound message is
// routed to its conversation, calibrated, completed and persisted.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/hkuds/prompthandler/internal/bus"
	"github.com/hkuds/prompthandler/internal/calibrate"
	"github.com/hkuds/prompthandler/internal/handler"
	"github.com/hkuds/prompthandler/internal/session"
)

const helpText = `Send any message to continue the conversation.
/reset - forget the conversation (the system prompt is kept)
/tokens - show token usage against the budget
/help - show this message`

// Loop consumes inbound messages and answers each in its own conversation.
type Loop struct {
	bus       *bus.MessageBus
	sessions  session.SnapshotStore
	handler   handler.Config
	counter   calibrate.TokenCounter
	completer calibrate.Completer
	logger    *slog.Logger

	// locks serializes work on one conversation; handlers do no locking.
	// An entry lives only while some goroutine holds or waits for it.
	locks   map[string]*keyLock
	locksMu sync.Mutex

	running bool
	mu      sync.RWMutex
	stopCh  chan struct{}
}

// LoopConfig contains the configuration for creating a new Loop.
type LoopConfig struct {
	Bus       *bus.MessageBus
	Sessions  session.SnapshotStore
	Handler   handler.Config
	Counter   calibrate.TokenCounter
	Completer calibrate.Completer
	Logger    *slog.Logger
}

// NewLoop creates a new agent loop with the given configuration.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("message bus is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Counter == nil {
		return nil, fmt.Errorf("token counter is required")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Handler.Logger == nil {
		cfg.Handler.Logger = cfg.Logger
	}

	// Fail at startup rather than on the first message.
	if _, err := handler.New(cfg.Handler, cfg.Counter, cfg.Completer); err != nil {
		return nil, fmt.Errorf("invalid conversation settings: %w", err)
	}

	return &Loop{
		bus:       cfg.Bus,
		sessions:  cfg.Sessions,
		handler:   cfg.Handler,
		counter:   cfg.Counter,
		completer: cfg.Completer,
		logger:    cfg.Logger,
		locks:     make(map[string]*keyLock),
		stopCh:    make(chan struct{}),
	}, nil
}

// Run processes messages until the context is cancelled or Stop is called.
// Conversations are handled concurrently; messages within one conversation
// are handled one at a time.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("loop is already running")
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	go l.bus.DispatchOutbound(ctx)

	log.Println("Agent loop started")

	for {
		select {
		case <-ctx.Done():
			log.Println("Agent loop stopped: context cancelled")
			return ctx.Err()
		case <-l.stopCh:
			log.Println("Agent loop stopped: stop signal received")
			return nil
		default:
		}

		msg, err := l.bus.ConsumeInbound(ctx, time.Second)
		if errors.Is(err, bus.ErrTimeout) {
			continue
		}
		if errors.Is(err, bus.ErrClosed) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Error consuming message: %v", err)
			continue
		}

		wg.Add(1)
		go func(msg bus.InboundMessage) {
			defer wg.Done()
			key := msg.SessionKey()
			l.acquire(key)
			defer l.release(key)
			l.respond(ctx, msg)
		}(msg)
	}
}

// Stop signals the loop to stop processing.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		select {
		case <-l.stopCh:
		default:
			close(l.stopCh)
		}
	}
}

// IsRunning returns whether the loop is currently running.
func (l *Loop) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// keyLock is a per-conversation mutex with a count of its users.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// acquire blocks until the caller holds the lock for key.
func (l *Loop) acquire(key string) {
	l.locksMu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.locksMu.Unlock()

	lock.mu.Lock()
}

// release unlocks key and forgets it once nobody else is waiting.
func (l *Loop) release(key string) {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	lock := l.locks[key]
	lock.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

// lockedKeys returns how many conversations currently have a lock entry.
func (l *Loop) lockedKeys() int {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	return len(l.locks)
}

// respond processes msg and publishes the reply or the error.
func (l *Loop) respond(ctx context.Context, msg bus.InboundMessage) {
	reply, err := l.ProcessMessage(ctx, msg)
	if err != nil {
		log.Printf("Error processing message for %s: %v", msg.SessionKey(), err)
		reply = &bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			ReplyTo: msg.MessageID,
			Content: userError(err),
		}
	}
	if reply != nil && reply.Content != "" {
		l.bus.PublishOutbound(*reply)
	}
}

// ProcessMessage answers one inbound message in its conversation and
// persists the conversation. The caller must hold the conversation lock
// when messages for the same session can arrive concurrently.
func (l *Loop) ProcessMessage(ctx context.Context, msg bus.InboundMessage) (*bus.OutboundMessage, error) {
	key := msg.SessionKey()

	h, err := l.open(key)
	if err != nil {
		return nil, err
	}

	var content string
	if msg.IsCommand() {
		content, err = l.command(h, msg.Content)
	} else {
		content, err = h.Send(ctx, msg.Content, nil)
	}
	if err != nil {
		return nil, err
	}

	if err := l.sessions.Save(key, h.Dump()); err != nil {
		log.Printf("Warning: failed to save session %s: %v", key, err)
	}

	return &bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		ReplyTo: msg.MessageID,
		Content: content,
	}, nil
}

// open builds a handler for key from its stored snapshot, if any.
func (l *Loop) open(key string) (*handler.Handler, error) {
	h, err := handler.New(l.handler, l.counter, l.completer)
	if err != nil {
		return nil, err
	}

	snap, ok, err := l.sessions.Load(key)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}
	if ok {
		h.Load(snap)
	}
	return h, nil
}

func (l *Loop) command(h *handler.Handler, content string) (string, error) {
	switch content {
	case "/reset":
		h.Reset()
		return "Conversation cleared.", nil
	case "/tokens":
		u, err := h.Usage()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Tokens: head %d, body %d, total %d of %d (%s)",
			u.Head, u.Body, u.Total, h.Budget(), h.Policy()), nil
	case "/start", "/help":
		return helpText, nil
	default:
		return "Unknown command. " + helpText, nil
	}
}

// userError turns a processing error into a message fit for the chat.
func userError(err error) string {
	switch {
	case errors.Is(err, calibrate.ErrHeadBudgetExceeded):
		return "The system prompt alone exceeds the token budget. Ask the operator to shorten it or raise maxTokens."
	case errors.Is(err, calibrate.ErrDidNotConverge):
		return "Could not fit the conversation into the token budget. Send /reset to start over."
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
