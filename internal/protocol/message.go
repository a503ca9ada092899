package protocol

import (
	"fmt"
	"strings"
)

// Wire delimiters. StartTag and EndTag frame one encoded (and usually
// encrypted) message on the stream; the name and parameter tags delimit
// fields inside a decrypted payload.
const (
	StartTag = "<message>"
	EndTag   = "</message>"

	StartName  = "<name>"
	EndName    = "</name>"
	startParam = "<p>"
	endParam   = "</p>"
)

// SocketBuffer is the read buffer size used by stream consumers.
const SocketBuffer = 4 * 1024

// Type identifies a message kind. The wire representation is the
// constant's string value inside the <name> tags.
type Type string

// Message types and their fixed parameter counts.
const (
	// TypeHeartbeat is the keep-alive. No parameters; sent unencrypted.
	TypeHeartbeat Type = "HEARTBEAT"

	// TypeDeviceNumber announces the number of configured devices.
	// Parameters: count.
	TypeDeviceNumber Type = "DEVICE_NUMBER"

	// TypeBoardState carries a sensor-board status pair.
	// Parameters: label, value.
	TypeBoardState Type = "BOARD_STATE"

	// TypeClientLogin is the first message of a session.
	// Parameters: deviceModel, password, sessionKeyHex.
	TypeClientLogin Type = "CLIENT_LOGIN"

	// TypeDeviceState carries one device's run-time state.
	// Parameters: id, alarm, alarmTime, batteryState+warnings.
	TypeDeviceState Type = "DEVICE_STATE"

	// TypeDeviceConfig describes one configured device.
	// Parameters: id, type, model, floor, room, position.
	TypeDeviceConfig Type = "DEVICE_CONFIG"

	// TypeServerState carries host sensor readings and disk usage as
	// alternating label/value pairs.
	TypeServerState Type = "SERVER_STATE"
)

// arities maps each known type to its required parameter count.
var arities = map[Type]int{
	TypeHeartbeat:    0,
	TypeDeviceNumber: 1,
	TypeBoardState:   2,
	TypeClientLogin:  3,
	TypeDeviceState:  4,
	TypeDeviceConfig: 6,
	TypeServerState:  12,
}

// Known reports whether t is a recognised message type.
func (t Type) Known() bool {
	_, ok := arities[t]
	return ok
}

// Arity returns the fixed parameter count declared for t.
// Unknown types have arity -1.
func (t Type) Arity() int {
	n, ok := arities[t]
	if !ok {
		return -1
	}
	return n
}

// Message is one unit of the wire protocol: a type plus its ordered
// parameter list. Messages are immutable once built for transmission.
type Message struct {
	Type   Type
	Params []string
}

// New builds a message of the given type with the given parameters.
// The caller is responsible for supplying the type's declared arity;
// Decode enforces it on the receiving side.
func New(t Type, params ...string) Message {
	return Message{Type: t, Params: params}
}

// Param returns parameter i, or the empty string if out of range.
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Encode renders the message payload in wire form, ready for encryption
// and framing. The frame tags themselves are added by the transport.
func (m Message) Encode() string {
	var b strings.Builder
	b.WriteString(StartName)
	b.WriteString(string(m.Type))
	b.WriteString(EndName)
	for _, p := range m.Params {
		b.WriteString(startParam)
		b.WriteString(p)
		b.WriteString(endParam)
	}
	return b.String()
}

// String returns a compact human-readable form for logging.
func (m Message) String() string {
	if len(m.Params) == 0 {
		return string(m.Type)
	}
	return fmt.Sprintf("%s[%s]", m.Type, strings.Join(m.Params, ", "))
}

// Decode parses a wire payload into a Message.
//
// It fails with an ErrDecode-wrapped error if the name tags are missing,
// the name is not a known type, or the parameter count differs from the
// type's declared arity. A message that fails to decode must never be
// handed to business logic.
func Decode(data string) (Message, error) {
	startIdx := strings.Index(data, StartName)
	endIdx := strings.Index(data, EndName)
	if startIdx < 0 || endIdx < 0 || endIdx < startIdx {
		return Message{}, fmt.Errorf("%w: name tag not found", ErrDecode)
	}

	t := Type(strings.TrimSpace(data[startIdx+len(StartName) : endIdx]))
	if !t.Known() {
		return Message{}, fmt.Errorf("%w: unknown message name %q", ErrDecode, string(t))
	}

	var params []string
	rest := data[endIdx+len(EndName):]
	for {
		pStart := strings.Index(rest, startParam)
		pEnd := strings.Index(rest, endParam)
		if pStart < 0 || pEnd < 0 || pEnd < pStart {
			break
		}
		params = append(params, strings.TrimSpace(rest[pStart+len(startParam):pEnd]))
		rest = rest[pEnd+len(endParam):]
	}

	if len(params) != t.Arity() {
		return Message{}, fmt.Errorf("%w: %s carries %d parameters, want %d",
			ErrDecode, t, len(params), t.Arity())
	}

	return Message{Type: t, Params: params}, nil
}
