package server

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/winmon/winmon-core/internal/device"
	"github.com/winmon/winmon-core/internal/infrastructure/config"
	"github.com/winmon/winmon-core/internal/infrastructure/logging"
	"github.com/winmon/winmon-core/internal/protocol"
)

const testPassword = "letmein"

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

type fakeHost struct{}

func (fakeHost) Message(ctx context.Context) protocol.Message {
	params := make([]string, 12)
	for i := range params {
		params[i] = "x"
	}
	return protocol.New(protocol.TypeServerState, params...)
}

// startServer runs a manager on a loopback port with one configured
// device and returns its address.
func startServer(t *testing.T, loginTimeoutSecs int) (*Manager, *device.Manager, string) {
	t.Helper()

	devices := device.NewManager(nil, testLogger(), 2.5)
	if err := devices.Load([]string{"1|window|X100|1|kitchen|left"}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := config.ServerConfig{
		Host:              "127.0.0.1",
		Port:              0,
		Password:          testPassword,
		LoginTimeout:      loginTimeoutSecs,
		KeepAliveInterval: 100,
	}
	m, err := NewManager(cfg, devices, fakeHost{}, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return m, devices, m.Addr().String()
}

// testClient drives the wire protocol against a live server.
type testClient struct {
	t       *testing.T
	conn    net.Conn
	cipher  *protocol.Cipher
	framer  protocol.Framer
	pending []protocol.Message
}

func dialClient(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })

	cipher, err := protocol.NewCipher(protocol.BootstrapKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return &testClient{t: t, conn: conn, cipher: cipher}
}

func (c *testClient) send(msg protocol.Message) {
	c.t.Helper()
	sealed, err := c.cipher.Encrypt(msg.Encode())
	if err != nil {
		c.t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c.conn.Write([]byte(protocol.StartTag + sealed + protocol.EndTag)); err != nil {
		c.t.Fatalf("Write: %v", err)
	}
}

// login authenticates and switches to the session key.
func (c *testClient) login(password, sessionKey string) {
	c.t.Helper()
	c.send(protocol.New(protocol.TypeClientLogin, "test-viewer", password, sessionKey))

	cipher, err := protocol.NewCipher(sessionKey)
	if err != nil {
		c.t.Fatalf("NewCipher: %v", err)
	}
	c.cipher = cipher
}

// next returns the next non-heartbeat message, waiting up to timeout.
// A single read may carry several frames; messages beyond the first
// are held in the pending queue so none are lost between calls.
func (c *testClient) next(timeout time.Duration) (protocol.Message, bool) {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	buf := make([]byte, protocol.SocketBuffer)
	for {
		if len(c.pending) > 0 {
			msg := c.pending[0]
			c.pending = c.pending[1:]
			return msg, true
		}
		if !time.Now().Before(deadline) {
			return protocol.Message{}, false
		}
		c.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, payload := range c.framer.Push(buf[:n]) {
				if msg, ok := c.decodePayload(payload); ok {
					c.pending = append(c.pending, msg)
				}
			}
		}
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			return protocol.Message{}, false
		}
	}
}

func (c *testClient) decodePayload(payload string) (protocol.Message, bool) {
	c.t.Helper()
	if strings.HasPrefix(payload, protocol.StartName) {
		msg, err := protocol.Decode(payload)
		if err != nil {
			c.t.Fatalf("Decode plaintext: %v", err)
		}
		if msg.Type == protocol.TypeHeartbeat {
			return protocol.Message{}, false
		}
		return msg, true
	}
	plain, err := c.cipher.Decrypt(payload)
	if err != nil {
		c.t.Fatalf("Decrypt: %v", err)
	}
	msg, err := protocol.Decode(plain)
	if err != nil {
		c.t.Fatalf("Decode: %v", err)
	}
	return msg, true
}

// expectTypes asserts the next messages arrive in the given order.
func (c *testClient) expectTypes(types ...protocol.Type) []protocol.Message {
	c.t.Helper()
	msgs := make([]protocol.Message, 0, len(types))
	for _, want := range types {
		msg, ok := c.next(2 * time.Second)
		if !ok {
			c.t.Fatalf("timed out waiting for %s", want)
		}
		if msg.Type != want {
			c.t.Fatalf("got %s, want %s", msg.Type, want)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestLoginPushesInitialState(t *testing.T) {
	_, _, addr := startServer(t, 5)

	client := dialClient(t, addr)
	client.login(testPassword, "session-key-1")

	msgs := client.expectTypes(
		protocol.TypeDeviceNumber,
		protocol.TypeDeviceConfig,
		protocol.TypeDeviceState,
		protocol.TypeServerState,
	)
	if msgs[0].Param(0) != "1" {
		t.Errorf("device count = %q, want %q", msgs[0].Param(0), "1")
	}
	if msgs[1].Param(4) != "kitchen" {
		t.Errorf("room = %q, want %q", msgs[1].Param(4), "kitchen")
	}
}

func TestHeartbeatOnIdleLink(t *testing.T) {
	_, _, addr := startServer(t, 5)

	client := dialClient(t, addr)
	client.login(testPassword, "session-key-1")
	client.expectTypes(
		protocol.TypeDeviceNumber,
		protocol.TypeDeviceConfig,
		protocol.TypeDeviceState,
		protocol.TypeServerState,
	)

	// On an idle link the next traffic is a plaintext heartbeat.
	deadline := time.Now().Add(2 * time.Second)
	buf := make([]byte, protocol.SocketBuffer)
	for time.Now().Before(deadline) {
		client.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, err := client.conn.Read(buf)
		if n > 0 {
			for _, payload := range client.framer.Push(buf[:n]) {
				if !strings.HasPrefix(payload, protocol.StartName) {
					t.Fatalf("expected plaintext heartbeat, got %q", payload)
				}
				msg, derr := protocol.Decode(payload)
				if derr != nil {
					t.Fatalf("Decode: %v", derr)
				}
				if msg.Type != protocol.TypeHeartbeat {
					t.Fatalf("got %s, want HEARTBEAT", msg.Type)
				}
				return
			}
		}
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			t.Fatalf("Read: %v", err)
		}
	}
	t.Fatal("no heartbeat within deadline")
}

func TestLoginTimeoutClosesSession(t *testing.T) {
	m, _, addr := startServer(t, 1)

	client := dialClient(t, addr)

	// Never log in; the server must close the connection shortly
	// after the deadline.
	deadline := time.Now().Add(3 * time.Second)
	buf := make([]byte, 64)
	for time.Now().Before(deadline) {
		client.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if _, err := client.conn.Read(buf); err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			// Connection torn down as expected.
			waitFor(t, func() bool { return m.SessionCount() == 0 })
			return
		}
	}
	t.Fatal("session survived past the login deadline")
}

func TestWrongPasswordGetsNoState(t *testing.T) {
	_, _, addr := startServer(t, 2)

	client := dialClient(t, addr)
	client.login("wrong-password", "session-key-1")

	if msg, ok := client.next(time.Second); ok {
		t.Fatalf("unauthenticated client received %s", msg)
	}
}

func TestUnauthenticatedClientReceivesNoTraffic(t *testing.T) {
	m, _, addr := startServer(t, 2)

	client := dialClient(t, addr)
	waitFor(t, func() bool { return m.SessionCount() == 1 })

	// State broadcast while the client has never logged in. The only
	// cipher this client holds is the well-known bootstrap key, so no
	// frame at all may reach it.
	m.BroadcastState(device.Snapshot{
		ID:        1,
		Alarm:     true,
		AlarmTime: "09:15",
		Battery:   "3.3 V",
	})

	deadline := time.Now().Add(700 * time.Millisecond)
	buf := make([]byte, protocol.SocketBuffer)
	for time.Now().Before(deadline) {
		client.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, err := client.conn.Read(buf)
		if n > 0 {
			if frames := client.framer.Push(buf[:n]); len(frames) > 0 {
				t.Fatalf("unauthenticated client received a frame: %q", frames[0])
			}
		}
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			return
		}
	}
}

func TestBroadcastReachesRegisteredSessions(t *testing.T) {
	m, _, addr := startServer(t, 5)

	first := dialClient(t, addr)
	first.login(testPassword, "key-one")
	first.expectTypes(
		protocol.TypeDeviceNumber,
		protocol.TypeDeviceConfig,
		protocol.TypeDeviceState,
		protocol.TypeServerState,
	)
	second := dialClient(t, addr)
	second.login(testPassword, "key-two")
	second.expectTypes(
		protocol.TypeDeviceNumber,
		protocol.TypeDeviceConfig,
		protocol.TypeDeviceState,
		protocol.TypeServerState,
	)

	m.BroadcastState(device.Snapshot{
		ID:        1,
		Alarm:     true,
		AlarmTime: "09:15",
		Battery:   "3.3 V",
	})

	for _, client := range []*testClient{first, second} {
		msg, ok := client.next(2 * time.Second)
		if !ok {
			t.Fatal("registered session missed the broadcast")
		}
		if msg.Type != protocol.TypeDeviceState || msg.Param(1) != "true" {
			t.Errorf("broadcast = %s, want DEVICE_STATE alarm=true", msg)
		}
	}
}

// TestSensorEventReachesViewer drives the full path: a sensor event
// mutates device state, which is broadcast to every logged-in viewer
// exactly once.
func TestSensorEventReachesViewer(t *testing.T) {
	devices := device.NewManager(nil, testLogger(), 2.5)
	if err := devices.Load([]string{"1|window|X100|1|kitchen|left"}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := config.ServerConfig{
		Host:              "127.0.0.1",
		Port:              0,
		Password:          testPassword,
		LoginTimeout:      5,
		KeepAliveInterval: 100,
	}
	m, err := NewManager(cfg, devices, nil, testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := m.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	devices.SetBroadcaster(m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client := dialClient(t, m.Addr().String())
	client.login(testPassword, "key-one")
	client.expectTypes(
		protocol.TypeDeviceNumber,
		protocol.TypeDeviceConfig,
		protocol.TypeDeviceState,
	)

	// Window 1 opens with a 3.3 V battery reading.
	if err := devices.ApplySensorEvent(1, 0, 33); err != nil {
		t.Fatalf("ApplySensorEvent: %v", err)
	}

	msg, ok := client.next(2 * time.Second)
	if !ok {
		t.Fatal("viewer did not receive the state broadcast")
	}
	if msg.Type != protocol.TypeDeviceState {
		t.Fatalf("got %s, want DEVICE_STATE", msg.Type)
	}
	if msg.Param(0) != "1" || msg.Param(1) != "true" {
		t.Errorf("params = %v, want id 1 alarm true", msg.Params)
	}
	if msg.Param(2) == "" {
		t.Error("alarm time is empty")
	}
	if msg.Param(3) != "3.3 V" {
		t.Errorf("battery = %q, want %q", msg.Param(3), "3.3 V")
	}

	// The identical event must not be rebroadcast.
	if err := devices.ApplySensorEvent(1, 0, 33); err != nil {
		t.Fatalf("ApplySensorEvent: %v", err)
	}
	if extra, ok := client.next(500 * time.Millisecond); ok {
		t.Fatalf("duplicate broadcast received: %s", extra)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
