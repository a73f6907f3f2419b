package console

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer starts a test game server. serve runs with the upgraded
// connection; the default just holds the connection open until the client
// goes away.
func newWSServer(t *testing.T, serve func(*websocket.Conn)) (wsURL string, upgrades *atomic.Int64) {
	t.Helper()

	if serve == nil {
		serve = func(c *websocket.Conn) {
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}
	}

	upgrades = &atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrades.Add(1)
		c, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		serve(c)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), upgrades
}

func testConnConfig(url string) ConnConfig {
	cfg := DefaultConnConfig()
	cfg.URL = url
	cfg.ConnectTimeout = 2 * time.Second
	cfg.WriteTimeout = time.Second
	return cfg
}

func waitForState(t *testing.T, c *Conn, want ConnectionState, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v after %v", c.State(), want, within)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnsureConnectedIsIdempotentWhenConnected(t *testing.T) {
	wsURL, upgrades := newWSServer(t, nil)

	c := NewConn(testConnConfig(wsURL), clockwork.NewRealClock(), nil, nil)
	defer c.Close()

	ctx := context.Background()
	if !c.EnsureConnected(ctx) {
		t.Fatal("first EnsureConnected = false, want true")
	}
	if !c.EnsureConnected(ctx) {
		t.Fatal("second EnsureConnected = false, want true")
	}
	if got := upgrades.Load(); got != 1 {
		t.Fatalf("server saw %d connection attempts, want 1", got)
	}
	if c.State() != StateConnected {
		t.Fatalf("state = %v, want %v", c.State(), StateConnected)
	}
}

func TestEnsureConnectedSingleFlight(t *testing.T) {
	wsURL, upgrades := newWSServer(t, nil)

	var notices atomic.Int64
	c := NewConn(testConnConfig(wsURL), clockwork.NewRealClock(), nil, func(string) {
		notices.Add(1)
	})
	defer c.Close()

	const callers = 8
	results := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.EnsureConnected(context.Background())
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		if !ok {
			t.Errorf("caller %d got false, want true", i)
		}
	}
	if got := upgrades.Load(); got != 1 {
		t.Fatalf("server saw %d connection attempts, want 1", got)
	}
	if got := notices.Load(); got != 1 {
		t.Fatalf("connecting notice fired %d times, want 1", got)
	}
}

func TestEnsureConnectedTimesOut(t *testing.T) {
	// Server accepts TCP but never completes the websocket handshake.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(srv.Close)

	cfg := testConnConfig("ws" + strings.TrimPrefix(srv.URL, "http"))
	cfg.ConnectTimeout = 100 * time.Millisecond

	c := NewConn(cfg, clockwork.NewRealClock(), nil, nil)
	defer c.Close()

	if c.EnsureConnected(context.Background()) {
		t.Fatal("EnsureConnected = true, want false on timeout")
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state = %v, want %v after timeout", c.State(), StateDisconnected)
	}
}

func TestEnsureConnectedRefused(t *testing.T) {
	// Grab a free port and close it so the dial is refused.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	c := NewConn(testConnConfig("ws://"+addr), clockwork.NewRealClock(), nil, nil)
	defer c.Close()

	if c.EnsureConnected(context.Background()) {
		t.Fatal("EnsureConnected = true, want false on refused dial")
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state = %v, want %v", c.State(), StateDisconnected)
	}
}

func TestInboundEventsDeliveredInOrder(t *testing.T) {
	first, _ := json.Marshal(Event{Type: EventTypeRoundStarted, Data: json.RawMessage(`{"endsAt": 1}`)})
	second, _ := json.Marshal(Event{Type: EventTypeQueueUpdate, Data: json.RawMessage(`{"waiting": ["alice"]}`)})

	wsURL, _ := newWSServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, first)
		c.WriteMessage(websocket.TextMessage, second)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})

	received := make(chan Event, 4)
	c := NewConn(testConnConfig(wsURL), clockwork.NewRealClock(), func(ev Event) {
		received <- ev
	}, nil)
	defer c.Close()

	if !c.EnsureConnected(context.Background()) {
		t.Fatal("EnsureConnected = false, want true")
	}

	for _, want := range []EventType{EventTypeRoundStarted, EventTypeQueueUpdate} {
		select {
		case ev := <-received:
			if ev.Type != want {
				t.Fatalf("event type = %q, want %q", ev.Type, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestTransportLossFlipsStateToDisconnected(t *testing.T) {
	wsURL, _ := newWSServer(t, func(c *websocket.Conn) {
		c.Close()
	})

	c := NewConn(testConnConfig(wsURL), clockwork.NewRealClock(), nil, nil)
	defer c.Close()

	if !c.EnsureConnected(context.Background()) {
		t.Fatal("EnsureConnected = false, want true")
	}
	waitForState(t, c, StateDisconnected, 2*time.Second)
}

func TestSendWhileDisconnectedIsRejected(t *testing.T) {
	c := NewConn(testConnConfig("ws://127.0.0.1:1"), clockwork.NewRealClock(), nil, nil)

	err := c.Send(context.Background(), Command{Type: CommandTypeStartRound})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send error = %v, want ErrNotConnected", err)
	}
}

func TestSendDeliversCommand(t *testing.T) {
	frames := make(chan []byte, 1)
	wsURL, _ := newWSServer(t, func(c *websocket.Conn) {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		frames <- data
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := NewConn(testConnConfig(wsURL), clockwork.NewRealClock(), nil, nil)
	defer c.Close()

	ctx := context.Background()
	if !c.EnsureConnected(ctx) {
		t.Fatal("EnsureConnected = false, want true")
	}
	if err := c.Send(ctx, Command{ID: "cmd-1", Type: CommandTypeStartRound, Data: json.RawMessage(`{"startNow":true}`)}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-frames:
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			t.Fatalf("server received undecodable frame: %v", err)
		}
		if cmd.Type != CommandTypeStartRound || cmd.ID != "cmd-1" {
			t.Fatalf("server received %+v, want startRound cmd-1", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command frame")
	}
}
