// Package relay is the Socket.IO client for the backend's price relay.
//
// It keeps the set of subscribed instrument keys across reconnects and
// dispatches each price tick to the callback registered for its key and to
// a broadcast publisher.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/logging"
	"autotrade-console/internal/models"
)

// State is the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Conn is a websocket connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens websocket connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(2 << 20)
	return conn, nil
}

// Callback receives ticks for one instrument key.
type Callback func(models.PriceTick)

// Publisher receives every tick. *stream.Hub satisfies it.
type Publisher interface {
	Publish(tick models.PriceTick)
}

// Config holds relay client configuration.
type Config struct {
	URL                  string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	// HandshakeTimeout bounds the Engine.IO and namespace handshake.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the default configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       3 * time.Second,
		HandshakeTimeout:     10 * time.Second,
	}
}

// Status is a snapshot of the client.
type Status struct {
	State       State
	Keys        []string
	Reconnects  int
	ConnectedAt time.Time
	LastError   string
	Server      *ServerStatus
	LastAck     *SubscriptionResponse
	Ticks       uint64
}

// Client is a Socket.IO relay client. It is safe for concurrent use.
type Client struct {
	cfg       Config
	endpoint  string
	dialer    Dialer
	publisher Publisher
	logger    zerolog.Logger

	mu          sync.Mutex
	state       State
	conn        Conn
	keys        map[string]struct{}
	callbacks   map[string]Callback
	reconnects  int
	connectedAt time.Time
	lastErr     error
	server      *ServerStatus
	lastAck     *SubscriptionResponse
	ticks       uint64
	closed      bool
	done        chan struct{}
	onState     func(State)

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// New creates a relay client. dialer may be nil to use gorilla/websocket;
// publisher may be nil.
func New(cfg Config, dialer Dialer, publisher Publisher, logger zerolog.Logger) (*Client, error) {
	endpoint, err := EndpointURL(cfg.URL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, err.Error())
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if dialer == nil {
		dialer = WebsocketDialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}
	return &Client{
		cfg:       cfg,
		endpoint:  endpoint,
		dialer:    dialer,
		publisher: publisher,
		logger:    logging.WithComponent(logger, "relay"),
		state:     StateDisconnected,
		keys:      make(map[string]struct{}),
		callbacks: make(map[string]Callback),
		done:      make(chan struct{}),
	}, nil
}

// OnStateChange registers fn to receive every state transition.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// Connect dials the relay, completes the handshake and subscribes to any
// keys registered while disconnected. Drops after a successful Connect are
// reconnected automatically.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.Wrap(apperrors.ErrConnectionFailed, "relay client closed")
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, handshake, err := c.open(ctx)
	if err != nil {
		c.fail(err)
		return err
	}
	if !c.attach(conn, handshake) {
		return apperrors.Wrap(apperrors.ErrConnectionFailed, "relay client closed")
	}
	return nil
}

// open dials and performs the Engine.IO open and Socket.IO connect
// handshake.
func (c *Client) open(ctx context.Context) (Conn, *Handshake, error) {
	conn, err := c.dialer.Dial(ctx, c.endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrConnectionFailed, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	frame, err := readFrame(conn)
	if err != nil || frame.Kind != FrameOpen {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: expected open frame: %v", apperrors.ErrConnectionFailed, err)
	}
	if err := c.write(conn, frameConnect); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrConnectionFailed, err)
	}

	for {
		f, err := readFrame(conn)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrConnectionFailed, err)
		}
		switch f.Kind {
		case FrameConnect:
			_ = conn.SetReadDeadline(deadline(frame.Handshake))
			return conn, frame.Handshake, nil
		case FrameConnectError:
			conn.Close()
			return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrConnectionFailed, f.Message)
		case FramePing:
			_ = c.write(conn, framePong)
		}
	}
}

func deadline(h *Handshake) time.Time {
	if h == nil || h.Deadline() == 0 {
		return time.Time{}
	}
	return time.Now().Add(h.Deadline())
}

// attach makes conn current, re-sends the full subscription set and starts
// reading. The state flips to connected in the same critical section that
// snapshots the keys, so a concurrent Subscribe either lands in the snapshot
// or sends its own request. attach reports false, closing conn, when the
// client was closed meanwhile.
func (c *Client) attach(conn Conn, handshake *Handshake) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.connectedAt = time.Now()
	c.lastErr = nil
	changed := c.state != StateConnected
	c.state = StateConnected
	onState := c.onState
	keys := c.sortedKeysLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	if changed && onState != nil {
		onState(StateConnected)
	}
	c.logger.Info().Int("keys", len(keys)).Msg("Relay connected")

	if len(keys) > 0 {
		if err := c.emit(conn, EventSubscribe, subscriptionRequest{InstrumentKeys: keys}); err != nil {
			c.logger.Warn().Err(err).Msg("Resubscribe failed")
		}
	}

	go c.readLoop(conn, handshake)
	return true
}

func (c *Client) readLoop(conn Conn, handshake *Handshake) {
	defer c.wg.Done()

	for {
		frame, err := readFrame(conn)
		if err != nil {
			c.dropped(conn, err)
			return
		}
		_ = conn.SetReadDeadline(deadline(handshake))

		switch frame.Kind {
		case FramePing:
			if err := c.write(conn, framePong); err != nil {
				c.dropped(conn, err)
				return
			}
		case FrameEvent:
			c.dispatch(frame)
		case FrameDisconnect, FrameClose:
			c.dropped(conn, errors.New("server closed the connection"))
			return
		}
	}
}

// dropped handles a lost connection. Unless the client was closed it
// starts reconnecting.
func (c *Client) dropped(conn Conn, err error) {
	conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closed := c.closed
	if !closed {
		c.lastErr = err
	}
	c.mu.Unlock()

	c.setState(StateDisconnected)
	if closed {
		return
	}
	c.logger.Warn().Err(err).Msg("Relay connection lost")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.reconnect()
	}()
}

// reconnect tries up to MaxReconnectAttempts times, ReconnectDelay apart.
func (c *Client) reconnect() {
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}

		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		c.setState(StateConnecting)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		conn, handshake, err := c.open(ctx)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Int("max", c.cfg.MaxReconnectAttempts).Msg("Relay reconnect failed")
			c.fail(err)
			continue
		}

		c.attach(conn, handshake)
		return
	}

	c.fail(apperrors.ErrReconnectExhausted)
	c.logger.Error().Int("attempts", c.cfg.MaxReconnectAttempts).Msg("Relay reconnection gave up")
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.setState(StateDisconnected)
}

func (c *Client) dispatch(frame Frame) {
	switch frame.Event {
	case EventPriceUpdate:
		for _, tick := range DecodeTicks(frame.Data) {
			c.mu.Lock()
			cb := c.callbacks[tick.InstrumentKey]
			c.ticks++
			c.mu.Unlock()

			if cb != nil {
				cb(tick)
			}
			if c.publisher != nil {
				c.publisher.Publish(tick)
			}
		}
	case EventSubscriptionResponse:
		var ack SubscriptionResponse
		if err := json.Unmarshal(frame.Data, &ack); err != nil {
			c.logger.Debug().Err(err).Msg("Bad subscription_response")
			return
		}
		c.mu.Lock()
		c.lastAck = &ack
		c.mu.Unlock()
		if !ack.Success {
			c.logger.Warn().Str("message", ack.Message+ack.Error).Msg("Relay rejected subscription")
		}
	case EventWSStatus:
		status := decodeServerStatus(frame.Data)
		c.mu.Lock()
		c.server = &status
		c.mu.Unlock()
	default:
		c.logger.Debug().Str("event", frame.Event).Msg("Ignoring relay event")
	}
}

// Subscribe registers cb for keys and subscribes to the keys not already
// held. While disconnected the keys are remembered and sent on connect.
func (c *Client) Subscribe(keys []string, cb Callback) error {
	c.mu.Lock()
	var added []string
	for _, key := range normalizeKeys(keys) {
		if _, ok := c.keys[key]; !ok {
			added = append(added, key)
			c.keys[key] = struct{}{}
		}
		if cb != nil {
			c.callbacks[key] = cb
		}
	}
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if len(added) == 0 || !connected || conn == nil {
		return nil
	}
	return c.emit(conn, EventSubscribe, subscriptionRequest{InstrumentKeys: added})
}

// Unsubscribe drops keys and their callbacks.
func (c *Client) Unsubscribe(keys []string) error {
	c.mu.Lock()
	var removed []string
	for _, key := range normalizeKeys(keys) {
		if _, ok := c.keys[key]; ok {
			removed = append(removed, key)
			delete(c.keys, key)
		}
		delete(c.callbacks, key)
	}
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if len(removed) == 0 || !connected || conn == nil {
		return nil
	}
	return c.emit(conn, EventUnsubscribe, subscriptionRequest{InstrumentKeys: removed})
}

// RequestStatus asks the relay for a ws_status event.
func (c *Client) RequestStatus() error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return apperrors.ErrRelayNotConnected
	}
	return c.emit(conn, EventGetStatus, nil)
}

// Status returns a snapshot of the client.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:       c.state,
		Keys:        c.sortedKeysLocked(),
		Reconnects:  c.reconnects,
		ConnectedAt: c.connectedAt,
		Server:      c.server,
		LastAck:     c.lastAck,
		Ticks:       c.ticks,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Keys returns the subscribed instrument keys, sorted.
func (c *Client) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedKeysLocked()
}

// Close disconnects and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = c.write(conn, frameDisconnect)
		conn.Close()
	}
	c.wg.Wait()
	c.setState(StateDisconnected)
	c.logger.Debug().Msg("Relay closed")
	return nil
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	onState := c.onState
	c.mu.Unlock()

	if changed && onState != nil {
		onState(state)
	}
}

func (c *Client) sortedKeysLocked() []string {
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Client) emit(conn Conn, event string, data any) error {
	frame, err := EncodeEvent(event, data)
	if err != nil {
		return err
	}
	return c.write(conn, frame)
}

func (c *Client) write(conn Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func readFrame(conn Conn) (Frame, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			// Skip frames we cannot parse rather than dropping the link.
			continue
		}
		return frame, nil
	}
}

// normalizeKeys trims and de-duplicates keys, keeping the first
// occurrence order.
func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
