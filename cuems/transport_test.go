package cuems

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

const defaultWait = 2 * time.Second

// setupTransport starts a mock engine and a connected transport
func setupTransport(t *testing.T, opts ...TransportOption) (*MockEngineServer, *Transport) {
	t.Helper()

	mock := NewMockEngineServer()
	t.Cleanup(mock.Close)

	opts = append([]TransportOption{WithReconnectDelay(50 * time.Millisecond), WithName("test")}, opts...)
	tr := NewTransport(mock.URL("/realtime"), opts...)
	t.Cleanup(func() { _ = tr.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !mock.WaitForConnection(2 * time.Second) {
		t.Fatal("mock engine never saw a connection")
	}
	return mock, tr
}

// waitFor polls cond until it holds or the timeout elapses
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// collector gathers messages delivered to a subscriber
type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) add(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) all() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func TestTransportSendsBothKinds(t *testing.T) {
	mock, tr := setupTransport(t)
	ctx := context.Background()

	req, err := NewRequest("project_list", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(ctx, req); err != nil {
		t.Fatalf("Send structured failed: %v", err)
	}
	if err := tr.Send(ctx, Event{Address: "/engine/command/go"}); err != nil {
		t.Fatalf("Send event failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(mock.Received()) == 2 })

	frames := mock.Received()
	if s, ok := frames[0].Message.(Structured); !ok || s.Action != "project_list" {
		t.Errorf("first frame = %#v, want project_list request", frames[0].Message)
	}
	if ev, ok := frames[1].Message.(Event); !ok || ev.Address != "/engine/command/go" {
		t.Errorf("second frame = %#v, want go event", frames[1].Message)
	}
}

func TestTransportDeliversInbound(t *testing.T) {
	mock, tr := setupTransport(t)

	got := &collector{}
	unsubscribe := tr.Subscribe(got.add)
	defer unsubscribe()

	ctx := context.Background()
	if err := mock.Push(ctx, Event{Address: "/engine/status/running", Args: []any{"yes"}}); err != nil {
		t.Fatal(err)
	}
	if err := mock.Push(ctx, Structured{Type: "project_list", Value: []byte(`[]`)}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(got.all()) == 2 })

	msgs := got.all()
	if msgs[0].Kind() != KindEvent || msgs[1].Kind() != KindStructured {
		t.Errorf("unexpected kinds: %s, %s", msgs[0].Kind(), msgs[1].Kind())
	}
}

func TestTransportSurvivesMalformedFrame(t *testing.T) {
	mock, tr := setupTransport(t)

	got := &collector{}
	tr.Subscribe(got.add)

	ctx := context.Background()
	if err := mock.PushRaw(ctx, websocket.MessageBinary, []byte{0x2f, 0x00, 0xff}); err != nil {
		t.Fatal(err)
	}
	if err := mock.PushRaw(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if err := mock.Push(ctx, Event{Address: "/engine/status/armed", Args: []any{"yes"}}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(got.all()) == 1 })

	if !tr.IsConnected() {
		t.Error("a bad frame must not close the connection")
	}
	if mock.Accepted() != 1 {
		t.Errorf("expected a single connection, got %d", mock.Accepted())
	}
}

func TestTransportDropsSendWhileDisconnected(t *testing.T) {
	tr := NewTransport("ws://127.0.0.1:1/ws")
	defer tr.Close()

	err := tr.Send(context.Background(), Event{Address: "/engine/command/stop"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestTransportReconnects(t *testing.T) {
	mock, tr := setupTransport(t)

	var mu sync.Mutex
	var states []ConnState
	tr.OnStateChange(func(s ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	mock.DropClients()

	if !mock.WaitForConnection(2 * time.Second) {
		t.Fatal("transport did not reconnect")
	}
	waitFor(t, 2*time.Second, tr.IsConnected)

	// Messages sent after the reconnect reach the engine; nothing from the
	// disconnected window is replayed.
	if err := tr.Send(context.Background(), Event{Address: "/engine/command/pause"}); err != nil {
		t.Fatalf("Send after reconnect failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(mock.ReceivedEvents()) == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 3 || states[0] != StateClosed || states[len(states)-1] != StateOpen {
		t.Errorf("unexpected state sequence: %v", states)
	}
	if mock.Accepted() != 2 {
		t.Errorf("expected 2 accepted connections, got %d", mock.Accepted())
	}
}

func TestTransportConcurrentConnectDialsOnce(t *testing.T) {
	mock := NewMockEngineServer()
	defer mock.Close()

	tr := NewTransport(mock.URL("/realtime"), WithReconnectDelay(20*time.Millisecond))
	defer tr.Close()

	// Keep calling Connect through the first dial, a drop and the
	// reconnect timer firing.
	ctx, cancel := context.WithTimeout(context.Background(), defaultWait)
	defer cancel()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = tr.Connect(ctx)
				time.Sleep(time.Millisecond)
			}
		}()
	}

	waitFor(t, defaultWait, tr.IsConnected)
	mock.DropClients()
	waitFor(t, defaultWait, func() bool { return mock.Accepted() >= 2 && tr.IsConnected() })
	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()

	if got := mock.Accepted(); got != 2 {
		t.Errorf("expected one dial per connection, mock accepted %d", got)
	}
	if !tr.IsConnected() {
		t.Errorf("state = %s, want open", tr.State())
	}
}

func TestTransportFirstDialFailureSchedulesReconnect(t *testing.T) {
	mock := NewMockEngineServer()
	url := mock.URL("/ws")
	mock.Close()

	tr := NewTransport(url, WithReconnectDelay(20*time.Millisecond))
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err == nil {
		t.Fatal("expected dial error against a stopped server")
	}

	tr.mu.Lock()
	pending := tr.timer != nil
	tr.mu.Unlock()
	if !pending {
		t.Error("expected a pending reconnect timer")
	}
}

func TestTransportCloseStopsReconnecting(t *testing.T) {
	mock, tr := setupTransport(t)

	if err := tr.Close(); err != nil {
		t.Logf("close returned %v", err)
	}
	if tr.State() != StateClosed {
		t.Errorf("state = %s, want closed", tr.State())
	}
	if err := tr.Connect(context.Background()); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if mock.Accepted() != 1 {
		t.Errorf("closed transport reconnected: %d connections", mock.Accepted())
	}
}
