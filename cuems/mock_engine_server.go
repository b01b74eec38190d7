package cuems

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"nhooyr.io/websocket"
)

// ReceivedFrame captures one frame the mock engine received
type ReceivedFrame struct {
	Message   Message
	Timestamp time.Time
}

// ResponderFunc answers a structured request. Returning nil sends nothing.
type ResponderFunc func(req Structured) []Message

// MockEngineServer simulates the engine's websocket endpoints for testing.
// It records every decoded frame, answers structured requests through
// registered responders and can push events or drop all connections.
type MockEngineServer struct {
	server *httptest.Server

	mu         sync.Mutex
	clients    map[*websocket.Conn]struct{}
	received   []ReceivedFrame
	responders map[string]ResponderFunc
	accepted   int
	connected  chan struct{}
}

// NewMockEngineServer starts a mock engine on a random local port
func NewMockEngineServer() *MockEngineServer {
	m := &MockEngineServer{
		clients:    make(map[*websocket.Conn]struct{}),
		responders: make(map[string]ResponderFunc),
		connected:  make(chan struct{}, 64),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the websocket URL of the mock for path (e.g. "/ws")
func (m *MockEngineServer) URL(path string) string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http") + path
}

// Close disconnects every client and stops the server
func (m *MockEngineServer) Close() {
	m.DropClients()
	m.server.Close()
}

// Respond registers a responder for a structured action
func (m *MockEngineServer) Respond(action string, fn ResponderFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responders[action] = fn
}

// Push sends msg to every connected client
func (m *MockEngineServer) Push(ctx context.Context, msg Message) error {
	typ, data, err := encodeFrame(msg)
	if err != nil {
		return err
	}
	for _, c := range m.snapshotClients() {
		if err := c.Write(ctx, typ, data); err != nil {
			return err
		}
	}
	return nil
}

// PushRaw sends an arbitrary frame to every connected client
func (m *MockEngineServer) PushRaw(ctx context.Context, typ websocket.MessageType, data []byte) error {
	for _, c := range m.snapshotClients() {
		if err := c.Write(ctx, typ, data); err != nil {
			return err
		}
	}
	return nil
}

// DropClients closes every open connection as the engine going away would
func (m *MockEngineServer) DropClients() {
	for _, c := range m.snapshotClients() {
		_ = c.Close(websocket.StatusGoingAway, "engine restarting")
	}
}

// Received returns a copy of every frame received so far
func (m *MockEngineServer) Received() []ReceivedFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReceivedFrame, len(m.received))
	copy(out, m.received)
	return out
}

// ReceivedEvents returns only the event frames received so far
func (m *MockEngineServer) ReceivedEvents() []Event {
	var events []Event
	for _, f := range m.Received() {
		if ev, ok := f.Message.(Event); ok {
			events = append(events, ev)
		}
	}
	return events
}

// ReceivedRequests returns only the structured frames received so far
func (m *MockEngineServer) ReceivedRequests() []Structured {
	var reqs []Structured
	for _, f := range m.Received() {
		if s, ok := f.Message.(Structured); ok {
			reqs = append(reqs, s)
		}
	}
	return reqs
}

// Accepted returns how many connections the mock has accepted
func (m *MockEngineServer) Accepted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepted
}

// WaitForConnection blocks until a new client connects or timeout elapses
func (m *MockEngineServer) WaitForConnection(timeout time.Duration) bool {
	select {
	case <-m.connected:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (m *MockEngineServer) snapshotClients() []*websocket.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*websocket.Conn, 0, len(m.clients))
	for c := range m.clients {
		out = append(out, c)
	}
	return out
}

func (m *MockEngineServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debugf("Mock engine: accept failed: %v", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = struct{}{}
	m.accepted++
	m.mu.Unlock()

	select {
	case m.connected <- struct{}{}:
	default:
	}

	defer func() {
		m.mu.Lock()
		delete(m.clients, conn)
		m.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		msg, err := decodeFrame(typ, data)
		if err != nil {
			log.Debugf("Mock engine: ignoring bad frame: %v", err)
			continue
		}

		m.mu.Lock()
		m.received = append(m.received, ReceivedFrame{Message: msg, Timestamp: time.Now()})
		var responder ResponderFunc
		if s, ok := msg.(Structured); ok {
			responder = m.responders[s.Action]
		}
		m.mu.Unlock()

		if responder == nil {
			continue
		}
		for _, reply := range responder(msg.(Structured)) {
			rt, rd, err := encodeFrame(reply)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, rt, rd); err != nil {
				return
			}
		}
	}
}
