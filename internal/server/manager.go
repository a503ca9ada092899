package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/winmon/winmon-core/internal/device"
	"github.com/winmon/winmon-core/internal/infrastructure/config"
	"github.com/winmon/winmon-core/internal/infrastructure/logging"
	"github.com/winmon/winmon-core/internal/protocol"
)

// StateSource supplies the frames pushed to a viewer at login.
// Implemented by the device manager.
type StateSource interface {
	ConfigMessages() []protocol.Message
	StateMessages() []protocol.Message
}

// HostReporter supplies the host health frame pushed at login.
type HostReporter interface {
	Message(ctx context.Context) protocol.Message
}

// Manager accepts viewer connections and fans broadcasts out to the
// live sessions.
type Manager struct {
	cfg       config.ServerConfig
	states    StateSource
	host      HostReporter
	bootstrap *protocol.Cipher
	logger    *logging.Logger

	listener net.Listener
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[uint64]*Session
}

// NewManager creates a manager. host may be nil, in which case no
// host health frame is sent at login.
func NewManager(cfg config.ServerConfig, states StateSource, host HostReporter, logger *logging.Logger) (*Manager, error) {
	bootstrap, err := protocol.NewCipher(protocol.BootstrapKey)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:       cfg,
		states:    states,
		host:      host,
		bootstrap: bootstrap,
		logger:    logger.With("component", "server"),
		sessions:  make(map[uint64]*Session),
	}, nil
}

// Listen binds the configured address. Split from Serve so callers
// can learn the bound address before accepting.
func (m *Manager) Listen() error {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	m.listener = listener
	m.logger.Info("listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address. Valid after Listen.
func (m *Manager) Addr() net.Addr {
	return m.listener.Addr()
}

// Serve accepts connections until ctx is cancelled. Each accepted
// connection gets its own session worker.
func (m *Manager) Serve(ctx context.Context) error {
	if m.listener == nil {
		if err := m.Listen(); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { m.listener.Close() })
	defer stop()

	var wg sync.WaitGroup
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			m.logger.Warn("accept failed", "error", err)
			continue
		}

		session := newSession(m.nextID.Add(1), conn, sessionConfig{
			password:     m.cfg.Password,
			loginTimeout: m.cfg.GetLoginTimeout(),
			keepAlive:    m.cfg.GetKeepAliveInterval(),
			bootstrap:    m.bootstrap,
			onLogin:      m.pushInitialState,
			onClose:      m.unregister,
		}, m.logger)
		m.register(session)

		wg.Add(1)
		go func() {
			defer wg.Done()
			session.run(ctx)
		}()
	}

	m.closeAll()
	wg.Wait()
	return nil
}

// BroadcastState fans one device's new state out to every live
// session. Sessions registered when the broadcast starts are
// guaranteed delivery; a concurrently registering session may or may
// not see it, and picks the state up from its login push instead.
func (m *Manager) BroadcastState(snap device.Snapshot) {
	m.Broadcast(snap.Message())
}

// Broadcast enqueues a message on every live session.
func (m *Manager) Broadcast(msg protocol.Message) {
	for _, session := range m.snapshotSessions() {
		session.Enqueue(msg)
	}
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) register(s *Session) {
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
}

// pushInitialState queues the device inventory, current device
// states and host health for a freshly authenticated session. Runs on
// the session's own worker, with no registry lock held.
func (m *Manager) pushInitialState(s *Session) {
	for _, msg := range m.states.ConfigMessages() {
		s.Enqueue(msg)
	}
	for _, msg := range m.states.StateMessages() {
		s.Enqueue(msg)
	}
	if m.host != nil {
		s.Enqueue(m.host.Message(context.Background()))
	}
}

func (m *Manager) snapshotSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

func (m *Manager) closeAll() {
	for _, s := range m.snapshotSessions() {
		s.Close()
	}
}
