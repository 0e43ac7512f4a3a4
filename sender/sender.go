package sender

import (
	"context"
	"fmt"
	"sync"

	"github.com/web3tea/cdc-relay/engine"
)

// ChannelID names the downstream destination a batch is delivered to. It
// is opaque to the relay and fixed for the lifetime of one pump.
type ChannelID string

// Sender delivers one batch to a downstream channel. Delivery may fail;
// the failure is recoverable at the call site and is never retried by the
// sender itself.
type Sender interface {
	Send(ctx context.Context, channel ChannelID, batch *engine.Batch) error
	Close() error
	Type() string
}

// Mux routes channel ids to senders so one process can serve several
// downstream channels.
type Mux struct {
	mu       sync.RWMutex
	routes   map[ChannelID]Sender
	fallback Sender
}

func NewMux() *Mux {
	return &Mux{routes: map[ChannelID]Sender{}}
}

// Route binds a channel id to a sender.
func (m *Mux) Route(channel ChannelID, s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[channel] = s
}

// Fallback sets the sender used for channel ids without an explicit route.
func (m *Mux) Fallback(s Sender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = s
}

func (m *Mux) Send(ctx context.Context, channel ChannelID, batch *engine.Batch) error {
	m.mu.RLock()
	s, ok := m.routes[channel]
	if !ok {
		s = m.fallback
	}
	m.mu.RUnlock()

	if s == nil {
		return fmt.Errorf("no sender routed for channel %q", channel)
	}
	return s.Send(ctx, channel, batch)
}

func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, s := range m.routes {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.fallback != nil {
		if err := m.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close senders: %v", errs)
	}
	return nil
}

func (m *Mux) Type() string {
	return "mux"
}

var _ Sender = (*Mux)(nil)
