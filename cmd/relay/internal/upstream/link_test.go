package upstream_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/upstream"
	"github.com/Jasmitsingh01/Trading-sub001/pkg/models"
)

// feedServer is a scriptable stand-in for the market-data provider.
type feedServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu         sync.Mutex
	conns      []*websocket.Conn
	closeFirst bool // drop the first connection after its first command

	commands chan models.FeedCommand
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	fs := &feedServer{commands: make(chan models.FeedCommand, 32)}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := fs.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		index := len(fs.conns)
		dropAfterFirst := fs.closeFirst && index == 1
		fs.mu.Unlock()

		for {
			var cmd models.FeedCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			fs.commands <- cmd
			if dropAfterFirst {
				conn.Close()
				return
			}
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *feedServer) connCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.conns)
}

// push writes a raw frame on the most recent connection.
func (fs *feedServer) push(t *testing.T, frame string) {
	t.Helper()
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("push frame: %v", err)
	}
}

func (fs *feedServer) waitCommand(t *testing.T) models.FeedCommand {
	t.Helper()
	select {
	case cmd := <-fs.commands:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upstream command")
		return models.FeedCommand{}
	}
}

type linkEvents struct {
	trades       chan models.Trade
	connected    chan struct{}
	disconnected chan struct{}
	feedErrors   chan string
	exhausted    chan struct{}
}

func newLinkEvents() *linkEvents {
	return &linkEvents{
		trades:       make(chan models.Trade, 32),
		connected:    make(chan struct{}, 8),
		disconnected: make(chan struct{}, 8),
		feedErrors:   make(chan string, 8),
		exhausted:    make(chan struct{}, 1),
	}
}

func (e *linkEvents) HandleUpstreamTrade(t models.Trade) { e.trades <- t }
func (e *linkEvents) HandleUpstreamConnected() {
	select {
	case e.connected <- struct{}{}:
	default:
	}
}
func (e *linkEvents) HandleUpstreamDisconnected(code int, reason string) {
	select {
	case e.disconnected <- struct{}{}:
	default:
	}
}
func (e *linkEvents) HandleUpstreamError(message string) {
	select {
	case e.feedErrors <- message:
	default:
	}
}
func (e *linkEvents) HandleReconnectsExhausted() {
	select {
	case e.exhausted <- struct{}{}:
	default:
	}
}

type staticSymbols struct {
	symbols []string
}

func (s staticSymbols) ActiveSymbols() []string { return s.symbols }

func wait(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func testConfig(url string) upstream.Config {
	return upstream.Config{
		URL:           url,
		DialTimeout:   time.Second,
		PingInterval:  time.Second,
		ReconnectBase: 10 * time.Millisecond,
		ReconnectMax:  50 * time.Millisecond,
		MaxReconnects: 10,
	}
}

func TestConnect_ResubscribesActiveSymbols(t *testing.T) {
	fs := newFeedServer(t)
	events := newLinkEvents()
	link := upstream.NewLink(testConfig(fs.url()), zap.NewNop(), events, staticSymbols{[]string{"AAPL", "TSLA"}})
	defer link.Shutdown()

	if err := link.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	wait(t, events.connected, "connected event")

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		cmd := fs.waitCommand(t)
		if cmd.Type != "subscribe" {
			t.Errorf("expected subscribe command, got %+v", cmd)
		}
		got[cmd.Symbol] = true
	}
	if !got["AAPL"] || !got["TSLA"] {
		t.Errorf("expected subscribes for AAPL and TSLA, got %v", got)
	}

	if !link.IsConnected() {
		t.Error("expected link connected")
	}
}

func TestConnect_Idempotent(t *testing.T) {
	fs := newFeedServer(t)
	events := newLinkEvents()
	link := upstream.NewLink(testConfig(fs.url()), zap.NewNop(), events, staticSymbols{})
	defer link.Shutdown()

	if err := link.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	wait(t, events.connected, "connected event")
	if err := link.Connect(); err != nil {
		t.Fatalf("second connect should be a no-op, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := fs.connCount(); got != 1 {
		t.Errorf("expected a single upstream connection, got %d", got)
	}
}

func TestTrades_FlowFromFeed(t *testing.T) {
	fs := newFeedServer(t)
	events := newLinkEvents()
	link := upstream.NewLink(testConfig(fs.url()), zap.NewNop(), events, staticSymbols{[]string{"EURUSD"}})
	defer link.Shutdown()

	if err := link.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	fs.waitCommand(t)

	fs.push(t, `{"type":"trade","data":[{"s":"EURUSD","p":1.0821,"t":1700000000000,"v":100}]}`)

	select {
	case tr := <-events.trades:
		want := models.Trade{Symbol: "EURUSD", Price: 1.0821, Timestamp: 1700000000000, Volume: 100}
		if tr != want {
			t.Errorf("expected %+v, got %+v", want, tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for trade event")
	}
}

func TestReconnect_ResubscribesOnce(t *testing.T) {
	fs := newFeedServer(t)
	fs.closeFirst = true
	events := newLinkEvents()
	link := upstream.NewLink(testConfig(fs.url()), zap.NewNop(), events, staticSymbols{[]string{"EURUSD"}})
	defer link.Shutdown()

	if err := link.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// First connection: subscribe, then the server drops us.
	if cmd := fs.waitCommand(t); cmd.Symbol != "EURUSD" {
		t.Fatalf("expected EURUSD subscribe, got %+v", cmd)
	}
	wait(t, events.disconnected, "disconnected event")

	// Backoff fires, the link reconnects and re-subscribes exactly once.
	if cmd := fs.waitCommand(t); cmd.Type != "subscribe" || cmd.Symbol != "EURUSD" {
		t.Fatalf("expected EURUSD resubscribe, got %+v", cmd)
	}

	select {
	case cmd := <-fs.commands:
		t.Fatalf("unexpected extra command after resubscribe: %+v", cmd)
	case <-time.After(100 * time.Millisecond):
	}

	if got := fs.connCount(); got != 2 {
		t.Errorf("expected 2 upstream connections, got %d", got)
	}
	if got := link.ReconnectAttempts(); got != 0 {
		t.Errorf("attempt counter should reset on successful reconnect, got %d", got)
	}
}

func TestCommands_WhileDisconnectedAreDropped(t *testing.T) {
	events := newLinkEvents()
	link := upstream.NewLink(testConfig("ws://127.0.0.1:1"), zap.NewNop(), events, staticSymbols{})
	defer link.Shutdown()

	// Never connected: commands are warn-level no-ops, not queued.
	link.Subscribe("AAPL")
	link.Unsubscribe("AAPL")
}

func TestReconnectsExhausted(t *testing.T) {
	events := newLinkEvents()
	cfg := testConfig("ws://127.0.0.1:1") // nothing listens here
	cfg.DialTimeout = 200 * time.Millisecond
	cfg.ReconnectBase = time.Millisecond
	cfg.ReconnectMax = 2 * time.Millisecond
	cfg.MaxReconnects = 3
	link := upstream.NewLink(cfg, zap.NewNop(), events, staticSymbols{})
	defer link.Shutdown()

	if err := link.Connect(); err == nil {
		t.Fatal("expected connect to fail")
	}

	wait(t, events.exhausted, "reconnects-exhausted event")
	if link.IsConnected() {
		t.Error("link must stay down after the cap")
	}
}

func TestShutdown_StopsReconnects(t *testing.T) {
	fs := newFeedServer(t)
	events := newLinkEvents()
	link := upstream.NewLink(testConfig(fs.url()), zap.NewNop(), events, staticSymbols{})

	if err := link.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	wait(t, events.connected, "connected event")

	link.Shutdown()
	link.Shutdown() // idempotent

	time.Sleep(50 * time.Millisecond)
	if link.IsConnected() {
		t.Error("expected link disconnected after shutdown")
	}
	if got := fs.connCount(); got != 1 {
		t.Errorf("no reconnect expected after shutdown, got %d connections", got)
	}

	select {
	case <-events.disconnected:
		t.Error("shutdown must not emit a disconnected event")
	default:
	}
}
