package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/winmon/winmon-core/internal/infrastructure/logging"
	"github.com/winmon/winmon-core/internal/protocol"
)

const (
	// outboundQueueSize bounds the per-session outbound queue. A
	// viewer that stops draining loses broadcasts rather than
	// stalling the rest of the server.
	outboundQueueSize = 64

	// readSlice is how long a session worker blocks on the socket
	// before servicing its outbound queue again.
	readSlice = 50 * time.Millisecond
)

// Session is one connected viewer client.
type Session struct {
	id   uint64
	conn net.Conn

	password     string
	loginTimeout time.Duration
	keepAlive    time.Duration

	cipher *protocol.Cipher
	framer protocol.Framer
	out    chan protocol.Message

	onLogin func(*Session)
	onClose func(*Session)

	authed    bool
	closeOnce sync.Once
	closed    chan struct{}

	logger *logging.Logger
}

func newSession(id uint64, conn net.Conn, cfg sessionConfig, logger *logging.Logger) *Session {
	return &Session{
		id:           id,
		conn:         conn,
		password:     cfg.password,
		loginTimeout: cfg.loginTimeout,
		keepAlive:    cfg.keepAlive,
		cipher:       cfg.bootstrap,
		out:          make(chan protocol.Message, outboundQueueSize),
		onLogin:      cfg.onLogin,
		onClose:      cfg.onClose,
		closed:       make(chan struct{}),
		logger:       logger.With("session", id, "remote", conn.RemoteAddr().String()),
	}
}

type sessionConfig struct {
	password     string
	loginTimeout time.Duration
	keepAlive    time.Duration
	bootstrap    *protocol.Cipher
	onLogin      func(*Session)
	onClose      func(*Session)
}

// ID returns the session's registry id.
func (s *Session) ID() uint64 { return s.id }

// Enqueue appends a message to the outbound queue. A full queue drops
// the message and reports ErrQueueFull; the session stays up.
func (s *Session) Enqueue(msg protocol.Message) error {
	select {
	case s.out <- msg:
		return nil
	case <-s.closed:
		return net.ErrClosed
	default:
		s.logger.Warn("outbound queue full, dropping message", "type", string(msg.Type))
		return ErrQueueFull
	}
}

// run services the session until the connection drops, the login
// deadline expires unauthenticated, or ctx is cancelled. One worker
// alternates between draining the outbound queue and a short blocking
// read, so neither side can starve the other.
func (s *Session) run(ctx context.Context) {
	defer s.Close()

	s.logger.Info("session opened")
	loginDeadline := time.Now().Add(s.loginTimeout)
	keepalive := time.NewTicker(s.keepAlive)
	defer keepalive.Stop()

	buf := make([]byte, protocol.SocketBuffer)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
		}

		if !s.authed && time.Now().After(loginDeadline) {
			s.logger.Warn("login deadline expired")
			return
		}

		// Nothing is written before authentication. Queued broadcasts
		// wait in the outbound queue: sending them under the bootstrap
		// cipher would hand device state to anyone who connects.
		if s.authed {
			if !s.drainOutbound() {
				return
			}

			select {
			case <-keepalive.C:
				// Heartbeats yield to pending traffic; any write
				// keeps the link alive.
				if len(s.out) == 0 {
					s.Enqueue(protocol.New(protocol.TypeHeartbeat))
				}
			default:
			}
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(readSlice)); err != nil {
			return
		}
		n, err := s.conn.Read(buf)
		if n > 0 {
			for _, payload := range s.framer.Push(buf[:n]) {
				s.handlePayload(payload)
			}
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if ctx.Err() == nil {
				s.logger.Info("connection closed", "error", err)
			}
			return
		}
	}
}

// drainOutbound writes every queued message. It reports false when
// the connection has failed.
func (s *Session) drainOutbound() bool {
	for {
		select {
		case msg := <-s.out:
			if err := s.writeMessage(msg); err != nil {
				s.logger.Info("write failed", "error", err)
				return false
			}
		default:
			return true
		}
	}
}

// writeMessage frames and sends one message. Heartbeats travel in
// plaintext; everything else is encrypted with the session's current
// cipher.
func (s *Session) writeMessage(msg protocol.Message) error {
	payload := msg.Encode()
	if msg.Type != protocol.TypeHeartbeat {
		sealed, err := s.cipher.Encrypt(payload)
		if err != nil {
			return err
		}
		payload = sealed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte(protocol.StartTag + payload + protocol.EndTag))
	return err
}

// handlePayload processes one framed payload. Plaintext frames carry
// only heartbeats; anything else must decrypt under the current
// cipher or it is dropped.
func (s *Session) handlePayload(payload string) {
	if strings.HasPrefix(payload, protocol.StartName) {
		msg, err := protocol.Decode(payload)
		if err != nil {
			s.logger.Warn("undecodable plaintext frame", "error", err)
			return
		}
		if msg.Type != protocol.TypeHeartbeat {
			s.logger.Warn("unexpected plaintext message", "type", string(msg.Type))
		}
		return
	}

	plain, err := s.cipher.Decrypt(payload)
	if err != nil {
		s.logger.Warn("undecryptable frame", "error", err)
		return
	}
	msg, err := protocol.Decode(plain)
	if err != nil {
		s.logger.Warn("undecodable frame", "error", err)
		return
	}
	s.handleMessage(msg)
}

func (s *Session) handleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeClientLogin:
		if s.authed {
			return
		}
		if err := s.login(msg); err != nil {
			s.logger.Warn("login rejected", "error", err)
		}
	case protocol.TypeHeartbeat:
	default:
		s.logger.Warn("ignoring inbound message", "type", string(msg.Type))
	}
}

// login validates CLIENT_LOGIN and switches to the client's session
// key. A wrong password leaves the session unauthenticated until the
// login deadline closes it.
func (s *Session) login(msg protocol.Message) error {
	if msg.Param(1) != s.password {
		return ErrAuth
	}
	sessionCipher, err := protocol.NewCipher(msg.Param(2))
	if err != nil {
		return err
	}
	s.cipher = sessionCipher
	s.authed = true
	s.logger.Info("client logged in", "model", msg.Param(0))
	if s.onLogin != nil {
		s.onLogin(s)
	}
	return nil
}

// Close tears the session down. Safe to call from any goroutine and
// on every exit path; only the first call does work.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
		s.logger.Info("session closed")
	})
}
