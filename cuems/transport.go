package cuems

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"nhooyr.io/websocket"
)

var (
	// ErrNotConnected is returned by Send while the transport is not open.
	// The message is dropped, never queued.
	ErrNotConnected = errors.New("transport not connected")
	// ErrTransportClosed is returned once Close has been called
	ErrTransportClosed = errors.New("transport closed")
)

// ConnState is the connection state of a Transport
type ConnState int

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Sender is what commanders and services need from a transport
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Transport owns one persistent websocket connection to the engine. Text
// frames carry Structured messages and binary frames carry Events. After an
// unexpected drop it schedules exactly one reconnect attempt at a time,
// forever, until Close is called.
type Transport struct {
	url         string
	name        string
	reconnect   RetryPolicy
	dialTimeout time.Duration
	readLimit   int64
	dialOptions *websocket.DialOptions

	lifetime context.Context
	stop     context.CancelFunc

	mu      sync.Mutex
	state   ConnState
	conn    *websocket.Conn
	timer   *time.Timer
	attempt int
	closed  bool

	subsMu    sync.RWMutex
	nextSubID int
	msgSubs   map[int]func(Message)
	stateSubs map[int]func(ConnState)
}

// TransportOption configures a Transport
type TransportOption func(*Transport)

// WithName labels the transport in logs
func WithName(name string) TransportOption {
	return func(t *Transport) { t.name = name }
}

// WithReconnectDelay sets the fixed delay between reconnect attempts
func WithReconnectDelay(d time.Duration) TransportOption {
	return func(t *Transport) { t.reconnect = RetryPolicy{Delay: Fixed(d)} }
}

// WithDialTimeout bounds each reconnect dial
func WithDialTimeout(d time.Duration) TransportOption {
	return func(t *Transport) { t.dialTimeout = d }
}

// WithReadLimit sets the maximum inbound frame size in bytes
func WithReadLimit(n int64) TransportOption {
	return func(t *Transport) { t.readLimit = n }
}

// WithDialOptions passes options through to the websocket dialer
func WithDialOptions(opts *websocket.DialOptions) TransportOption {
	return func(t *Transport) { t.dialOptions = opts }
}

// NewTransport creates a transport for url. It does not connect.
func NewTransport(url string, opts ...TransportOption) *Transport {
	lifetime, stop := context.WithCancel(context.Background())
	t := &Transport{
		url:         url,
		name:        "engine",
		reconnect:   RetryPolicy{Delay: Fixed(time.Second)},
		dialTimeout: 5 * time.Second,
		readLimit:   16 << 20,
		lifetime:    lifetime,
		stop:        stop,
		msgSubs:     make(map[int]func(Message)),
		stateSubs:   make(map[int]func(ConnState)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// URL returns the endpoint the transport dials
func (t *Transport) URL() string { return t.url }

// State returns the current connection state
func (t *Transport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsConnected reports whether the connection is open
func (t *Transport) IsConnected() bool { return t.State() == StateOpen }

// Connect dials the engine. If the first dial fails a reconnect is still
// scheduled and the dial error is returned.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.state != StateClosed || t.timer != nil {
		t.mu.Unlock()
		return nil
	}
	t.state = StateConnecting
	t.mu.Unlock()

	t.notifyState(StateConnecting)
	return t.dial(ctx)
}

// dial opens the connection. The caller has already moved the state to
// StateConnecting under t.mu, so at most one dial runs at a time.
func (t *Transport) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, t.url, t.dialOptions)
	if err != nil {
		log.Warn("Connection failed", "transport", t.name, "url", t.url, "error", err)
		t.setState(StateClosed)
		t.scheduleReconnect()
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	conn.SetReadLimit(t.readLimit)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return ErrTransportClosed
	}
	t.conn = conn
	t.attempt = 0
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	log.Info("Connected", "transport", t.name, "url", t.url)
	t.setState(StateOpen)
	go t.readLoop(conn)
	return nil
}

// scheduleReconnect arms the single reconnect timer unless one is pending
func (t *Transport) scheduleReconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.timer != nil {
		return
	}

	t.attempt++
	delay, ok := t.reconnect.NextDelay(t.attempt)
	if !ok {
		log.Warn("Giving up reconnecting", "transport", t.name, "attempts", t.attempt)
		return
	}

	log.Debugf("Reconnecting %s in %v (attempt %d)", t.name, delay, t.attempt)
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		t.timer = nil
		if t.closed || t.state != StateClosed {
			t.mu.Unlock()
			return
		}
		t.state = StateConnecting
		t.mu.Unlock()

		t.notifyState(StateConnecting)
		ctx, cancel := context.WithTimeout(t.lifetime, t.dialTimeout)
		defer cancel()
		_ = t.dial(ctx)
	})
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(t.lifetime)
		if err != nil {
			t.handleDrop(conn, err)
			return
		}

		msg, err := decodeFrame(typ, data)
		if err != nil {
			log.Warn("Dropping undecodable frame", "transport", t.name, "bytes", len(data), "error", err)
			continue
		}
		log.Debugf("Received %s message on %s", msg.Kind(), t.name)
		t.dispatch(msg)
	}
}

func (t *Transport) handleDrop(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return
	}

	log.Warn("Connection lost", "transport", t.name, "status", websocket.CloseStatus(err), "error", err)
	t.setState(StateClosed)
	t.scheduleReconnect()
}

// Send serializes msg onto the connection: Structured as a text frame,
// Event as a binary frame. While disconnected the message is dropped with
// a warning and ErrNotConnected is returned.
func (t *Transport) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	conn := t.conn
	state := t.state
	t.mu.Unlock()

	if conn == nil || state != StateOpen {
		log.Warn("Dropping message while disconnected", "transport", t.name, "kind", msg.Kind(), "message", describe(msg))
		return ErrNotConnected
	}

	typ, data, err := encodeFrame(msg)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, typ, data); err != nil {
		return fmt.Errorf("failed to send %s message: %w", msg.Kind(), err)
	}
	log.Debugf("Sent %s on %s", describe(msg), t.name)
	return nil
}

// Close stops reconnecting and closes the connection
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "")
	}
	t.stop()
	t.setState(StateClosed)
	return err
}

// Subscribe registers fn for every decoded inbound message and returns a
// function that removes it. Subscribers run in subscription order.
func (t *Transport) Subscribe(fn func(Message)) func() {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	id := t.nextSubID
	t.nextSubID++
	t.msgSubs[id] = fn
	return func() {
		t.subsMu.Lock()
		delete(t.msgSubs, id)
		t.subsMu.Unlock()
	}
}

// OnStateChange registers fn for connection state transitions
func (t *Transport) OnStateChange(fn func(ConnState)) func() {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	id := t.nextSubID
	t.nextSubID++
	t.stateSubs[id] = fn
	return func() {
		t.subsMu.Lock()
		delete(t.stateSubs, id)
		t.subsMu.Unlock()
	}
}

func (t *Transport) setState(s ConnState) {
	t.mu.Lock()
	if t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	t.mu.Unlock()
	t.notifyState(s)
}

func (t *Transport) notifyState(s ConnState) {
	t.subsMu.RLock()
	subs := inOrder(t.stateSubs)
	t.subsMu.RUnlock()

	for _, fn := range subs {
		fn(s)
	}
}

// dispatch delivers msg to subscribers in the order they subscribed
func (t *Transport) dispatch(msg Message) {
	t.subsMu.RLock()
	subs := inOrder(t.msgSubs)
	t.subsMu.RUnlock()

	for _, fn := range subs {
		fn(msg)
	}
}

func inOrder[F any](subs map[int]F) []F {
	out := make([]F, 0, len(subs))
	for _, id := range slices.Sorted(maps.Keys(subs)) {
		out = append(out, subs[id])
	}
	return out
}

func encodeFrame(msg Message) (websocket.MessageType, []byte, error) {
	switch m := msg.(type) {
	case Structured:
		data, err := json.Marshal(m)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode structured message: %w", err)
		}
		return websocket.MessageText, data, nil
	case Event:
		data, err := Pack(m.Address, m.Args...)
		if err != nil {
			return 0, nil, err
		}
		return websocket.MessageBinary, data, nil
	default:
		return 0, nil, fmt.Errorf("unsupported message type %T", msg)
	}
}

func decodeFrame(typ websocket.MessageType, data []byte) (Message, error) {
	if typ == websocket.MessageBinary {
		return Unpack(data)
	}

	var s Structured
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid structured message: %w", err)
	}
	return s, nil
}

func describe(msg Message) string {
	switch m := msg.(type) {
	case Structured:
		if m.Action != "" {
			return m.Action
		}
		return m.Type
	case Event:
		return m.Address
	default:
		return fmt.Sprintf("%T", msg)
	}
}
