package channels

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/hkuds/prompthandler/internal/bus"
	"github.com/hkuds/prompthandler/internal/config"
)

// Manager owns the lifecycle of the enabled channels.
type Manager struct {
	config   *config.Config
	bus      *bus.MessageBus
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewManager creates a new channel manager.
func NewManager(cfg *config.Config, msgBus *bus.MessageBus) *Manager {
	return &Manager{
		config:   cfg,
		bus:      msgBus,
		channels: make(map[string]Channel),
	}
}

// Initialize creates the channels enabled in the configuration.
// This must be called before StartAll.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Channels.Telegram.Enabled {
		if m.config.Channels.Telegram.Token == "" {
			return fmt.Errorf("telegram channel enabled but token not configured")
		}
		m.channels["telegram"] = NewTelegramChannel(m.config.Channels.Telegram, m.bus)
		log.Println("Telegram channel initialized")
	}

	if len(m.channels) == 0 {
		return fmt.Errorf("no channels are enabled")
	}
	return nil
}

// Register adds a channel that is not driven by the configuration.
func (m *Manager) Register(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("cannot register nil channel")
	}
	if _, exists := m.channels[ch.Name()]; exists {
		return fmt.Errorf("channel %s already registered", ch.Name())
	}
	m.channels[ch.Name()] = ch
	return nil
}

// StartAll starts all initialized channels.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to start channel %s: %w", name, err))
			continue
		}
		log.Printf("Channel %s started", name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors starting channels: %v", errs)
	}
	return nil
}

// StopAll gracefully stops all running channels.
func (m *Manager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for name, ch := range m.channels {
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop channel %s: %w", name, err))
			continue
		}
		log.Printf("Channel %s stopped", name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors stopping channels: %v", errs)
	}
	return nil
}

// ListChannels returns a sorted list of all channel names.
func (m *Manager) ListChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
