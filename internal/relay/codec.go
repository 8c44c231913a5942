package relay

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FrameKind classifies an Engine.IO v4 / Socket.IO v5 text frame.
type FrameKind int

const (
	FrameUnknown      FrameKind = iota
	FrameOpen                   // 0{handshake}
	FrameClose                  // 1
	FramePing                   // 2
	FramePong                   // 3
	FrameNoop                   // 6
	FrameConnect                // 40
	FrameDisconnect             // 41
	FrameEvent                  // 42[event, data]
	FrameConnectError           // 44{message}
)

func (k FrameKind) String() string {
	switch k {
	case FrameOpen:
		return "open"
	case FrameClose:
		return "close"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameNoop:
		return "noop"
	case FrameConnect:
		return "connect"
	case FrameDisconnect:
		return "disconnect"
	case FrameEvent:
		return "event"
	case FrameConnectError:
		return "connect_error"
	}
	return "unknown"
}

// Wire frames the client sends.
var (
	frameConnect    = []byte("40")
	frameDisconnect = []byte("41")
	framePong       = []byte("3")
)

// Handshake is the Engine.IO open payload.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // ms
	PingTimeout  int      `json:"pingTimeout"`  // ms
	MaxPayload   int      `json:"maxPayload"`
}

// Deadline returns how long the connection may stay silent before it is
// considered dead.
func (h Handshake) Deadline() time.Duration {
	if h.PingInterval <= 0 || h.PingTimeout <= 0 {
		return 0
	}
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

// Frame is a decoded frame.
type Frame struct {
	Kind      FrameKind
	Event     string
	Data      json.RawMessage
	Handshake *Handshake
	Message   string
}

// EncodeEvent frames a Socket.IO event: 42["event",data].
func EncodeEvent(event string, data any) ([]byte, error) {
	args := []any{event}
	if data != nil {
		args = append(args, data)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return append([]byte("42"), payload...), nil
}

// DecodeFrame parses one text frame.
func DecodeFrame(frame []byte) (Frame, error) {
	if len(frame) == 0 {
		return Frame{}, fmt.Errorf("empty frame")
	}

	switch frame[0] {
	case '0':
		var h Handshake
		if err := json.Unmarshal(frame[1:], &h); err != nil {
			return Frame{}, fmt.Errorf("decode handshake: %w", err)
		}
		return Frame{Kind: FrameOpen, Handshake: &h}, nil
	case '1':
		return Frame{Kind: FrameClose}, nil
	case '2':
		return Frame{Kind: FramePing}, nil
	case '3':
		return Frame{Kind: FramePong}, nil
	case '6':
		return Frame{Kind: FrameNoop}, nil
	case '4':
		return decodeMessage(frame[1:])
	}
	return Frame{Kind: FrameUnknown}, fmt.Errorf("unknown frame type %q", frame[0])
}

func decodeMessage(msg []byte) (Frame, error) {
	if len(msg) == 0 {
		return Frame{}, fmt.Errorf("empty message")
	}
	body := skipNamespace(msg[1:])

	switch msg[0] {
	case '0':
		return Frame{Kind: FrameConnect, Data: json.RawMessage(body)}, nil
	case '1':
		return Frame{Kind: FrameDisconnect}, nil
	case '2':
		return decodeEvent(body)
	case '4':
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &e)
		return Frame{Kind: FrameConnectError, Message: e.Message}, nil
	}
	return Frame{Kind: FrameUnknown}, fmt.Errorf("unknown message type %q", msg[0])
}

// skipNamespace drops a leading "/ns," and an ack id, neither of which the
// console uses.
func skipNamespace(b []byte) []byte {
	if len(b) > 0 && b[0] == '/' {
		if i := strings.IndexByte(string(b), ','); i >= 0 {
			b = b[i+1:]
		} else {
			return nil
		}
	}
	for len(b) > 0 && b[0] >= '0' && b[0] <= '9' {
		b = b[1:]
	}
	return b
}

func decodeEvent(body []byte) (Frame, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(body, &args); err != nil {
		return Frame{}, fmt.Errorf("decode event: %w", err)
	}
	if len(args) == 0 {
		return Frame{}, fmt.Errorf("event without name")
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return Frame{}, fmt.Errorf("decode event name: %w", err)
	}
	f := Frame{Kind: FrameEvent, Event: name}
	if len(args) > 1 {
		f.Data = args[1]
	}
	return f, nil
}

// EndpointURL converts the relay base URL (http, https, ws or wss) into
// the Socket.IO websocket endpoint.
func EndpointURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url %q has no host", base)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
