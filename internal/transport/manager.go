// internal/transport/manager.go
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

const (
	DefaultAttempts   = 5
	DefaultRetryDelay = 2 * time.Second
)

// ManagerConfig bounds the reconnect sequence.
type ManagerConfig struct {
	Attempts   int
	RetryDelay time.Duration
}

// Manager owns the single RTU link of a bus.
//
// open tracks whether requests may be issued. reconnecting guards against two
// reconnect sequences running at once: a second caller gets false right away.
type Manager struct {
	link       Link
	clock      clock.Clock
	log        zerolog.Logger
	attempts   int
	retryDelay time.Duration

	mu           sync.Mutex
	open         bool
	reconnecting bool
}

// NewManager wraps link. The link starts closed.
func NewManager(link Link, cfg ManagerConfig, clk clock.Clock, logger zerolog.Logger) *Manager {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Manager{
		link:       link,
		clock:      clk,
		log:        logger.With().Str("component", "transport").Logger(),
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
	}
}

// IsOpen reports whether the link is believed usable.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Connect makes one attempt to open the link.
func (m *Manager) Connect() error {
	if err := m.link.Open(); err != nil {
		m.log.Error().Err(err).Msg("serial connect failed")
		return &Error{Kind: KindOpen, Op: "open", Err: err}
	}

	m.mu.Lock()
	m.open = true
	m.mu.Unlock()

	m.log.Info().Msg("serial link connected")
	return nil
}

// EnsureConnected returns true when the link is open, reconnecting if needed.
// The reconnecting flag is released on every exit path.
func (m *Manager) EnsureConnected(ctx context.Context) bool {
	m.mu.Lock()
	if m.open {
		m.mu.Unlock()
		return true
	}
	if m.reconnecting {
		m.mu.Unlock()
		return false
	}
	m.reconnecting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.reconnecting = false
		m.mu.Unlock()
	}()

	m.log.Info().Int("attempts", m.attempts).Msg("reconnecting serial link")

	for i := 1; i <= m.attempts; i++ {
		if err := m.Connect(); err == nil {
			return true
		}
		if i == m.attempts {
			break
		}

		m.log.Warn().Int("attempt", i).Dur("wait", m.retryDelay).Msg("reconnect attempt failed")
		if !sleep(ctx, m.clock, m.retryDelay) {
			return false
		}
	}

	m.log.Error().Int("attempts", m.attempts).Msg("reconnect failed")
	return false
}

// Close is best-effort. The port may already be gone.
func (m *Manager) Close() {
	m.mu.Lock()
	m.open = false
	m.mu.Unlock()

	if err := m.link.Close(); err != nil {
		m.log.Debug().Err(err).Msg("serial close")
	}
}

// Read issues one holding-register read to slave.
// Every failure comes back as *Error with its Kind set.
func (m *Manager) Read(slave byte, address, quantity uint16) ([]byte, error) {
	if !m.IsOpen() {
		return nil, &Error{Kind: KindPort, Op: "read", Slave: slave, Err: ErrNotOpen}
	}

	b, err := m.link.ReadHoldingRegisters(slave, address, quantity)
	if err != nil {
		return nil, &Error{Kind: classify(err), Op: "read", Slave: slave, Err: err}
	}
	if len(b) < int(quantity)*2 {
		return nil, &Error{
			Kind:  KindDevice,
			Op:    "read",
			Slave: slave,
			Err:   fmt.Errorf("short response: %d bytes for %d registers", len(b), quantity),
		}
	}

	return b, nil
}

func sleep(ctx context.Context, clk clock.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := clk.Timer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
