package upstream

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/pkg/models"
)

// Events receives typed notifications from the link. Implemented by the
// relay; every method is invoked from the link's own goroutines.
type Events interface {
	HandleUpstreamTrade(t models.Trade)
	HandleUpstreamConnected()
	HandleUpstreamDisconnected(code int, reason string)
	HandleUpstreamError(message string)
	HandleReconnectsExhausted()
}

// SymbolSource supplies the symbols to re-subscribe after a reconnect.
type SymbolSource interface {
	ActiveSymbols() []string
}

// Config holds the feed connection parameters.
type Config struct {
	URL           string
	Token         string
	DialTimeout   time.Duration
	PingInterval  time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	MaxReconnects int
}

type linkState int

const (
	stateDisconnected linkState = iota
	stateConnecting
	stateConnected
)

var errShutdown = errors.New("upstream: link is shut down")

// Link owns the single logical connection to the market-data feed. It
// decodes frames into typed events, accepts subscribe/unsubscribe commands,
// keeps the connection alive with periodic pings and reconnects with
// exponential backoff up to a fixed cap.
type Link struct {
	cfg     Config
	logger  *zap.Logger
	events  Events
	symbols SymbolSource

	mu             sync.Mutex
	state          linkState
	conn           *websocket.Conn
	done           chan struct{} // closed when the current connection ends
	attempts       int
	reconnectTimer *time.Timer
	closed         bool

	writeMu sync.Mutex

	msgCount  atomic.Int64
	lastMsgMs atomic.Int64 // unix millis of last parsed frame, 0 if none
}

func NewLink(cfg Config, logger *zap.Logger, events Events, symbols SymbolSource) *Link {
	return &Link{
		cfg:     cfg,
		logger:  logger,
		events:  events,
		symbols: symbols,
	}
}

// Connect is idempotent: a link that is already connecting or connected
// returns immediately. A failed dial schedules a reconnect and returns the
// error; steady-state recovery never involves the caller.
func (l *Link) Connect() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errShutdown
	}
	if l.state != stateDisconnected {
		l.mu.Unlock()
		return nil
	}
	l.state = stateConnecting
	l.mu.Unlock()

	conn, err := l.dial()
	if err != nil {
		l.logger.Warn("upstream dial failed", zap.Error(err))
		l.mu.Lock()
		l.state = stateDisconnected
		l.mu.Unlock()
		l.scheduleReconnect()
		return err
	}

	done := make(chan struct{})
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		conn.Close()
		return errShutdown
	}
	l.conn = conn
	l.done = done
	l.state = stateConnected
	l.attempts = 0
	l.mu.Unlock()

	go l.readLoop(conn, done)
	go l.keepaliveLoop(conn, done)

	// Recover subscriptions for every symbol still holding interest.
	for _, sym := range l.symbols.ActiveSymbols() {
		l.sendCommand("subscribe", sym)
	}

	l.logger.Info("upstream link connected", zap.String("url", l.cfg.URL))
	l.events.HandleUpstreamConnected()
	return nil
}

func (l *Link) dial() (*websocket.Conn, error) {
	u, err := url.Parse(l.cfg.URL)
	if err != nil {
		return nil, err
	}
	if l.cfg.Token != "" {
		q := u.Query()
		q.Set("token", l.cfg.Token)
		u.RawQuery = q.Encode()
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.DialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: l.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// Subscribe sends a subscribe command if the link is open. Commands are not
// queued while disconnected; the resubscribe-all on reconnect is the
// recovery path.
func (l *Link) Subscribe(symbol string) {
	l.sendCommand("subscribe", symbol)
}

// Unsubscribe sends an unsubscribe command if the link is open.
func (l *Link) Unsubscribe(symbol string) {
	l.sendCommand("unsubscribe", symbol)
}

func (l *Link) sendCommand(cmd, symbol string) {
	l.mu.Lock()
	conn := l.conn
	open := l.state == stateConnected
	l.mu.Unlock()

	if !open || conn == nil {
		l.logger.Warn("upstream not connected, dropping command",
			zap.String("cmd", cmd),
			zap.String("symbol", symbol),
		)
		return
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(models.FeedCommand{Type: cmd, Symbol: symbol}); err != nil {
		l.logger.Warn("upstream command write failed",
			zap.String("cmd", cmd),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}
}

// Shutdown cancels pending timers and closes the connection with a normal
// closure code. Subsequent commands and connects are no-ops.
func (l *Link) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.reconnectTimer != nil {
		l.reconnectTimer.Stop()
		l.reconnectTimer = nil
	}
	conn := l.conn
	done := l.done
	l.conn = nil
	l.done = nil
	l.state = stateDisconnected
	l.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		l.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		l.writeMu.Unlock()
		conn.Close()
	}

	l.logger.Info("upstream link shut down")
}

func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateConnected
}

func (l *Link) ReconnectAttempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

func (l *Link) MessagesReceived() int64 {
	return l.msgCount.Load()
}

func (l *Link) LastMessageAt() time.Time {
	ms := l.lastMsgMs.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (l *Link) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Shutdown already tore the connection down.
			default:
				l.handleClose(conn, done, err)
			}
			return
		}
		l.handleFrame(data)
	}
}

// keepaliveLoop pings the feed on a fixed interval so intermediaries keep
// the connection open.
func (l *Link) keepaliveLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				l.logger.Debug("keepalive ping failed", zap.Error(err))
			}
		}
	}
}

func (l *Link) handleClose(conn *websocket.Conn, done chan struct{}, err error) {
	l.mu.Lock()
	if l.closed || l.conn != conn {
		l.mu.Unlock()
		return
	}
	l.conn = nil
	l.done = nil
	l.state = stateDisconnected
	l.mu.Unlock()

	close(done) // stops the keepalive loop
	conn.Close()

	code := websocket.CloseAbnormalClosure
	reason := err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
		reason = closeErr.Text
	}

	l.events.HandleUpstreamDisconnected(code, reason)
	l.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer for the next attempt. Once the
// attempt cap is reached, reconnection stops permanently and the terminal
// event fires; recovery then requires an explicit restart.
func (l *Link) scheduleReconnect() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.attempts++
	if l.attempts > l.cfg.MaxReconnects {
		l.mu.Unlock()
		l.logger.Error("upstream reconnect cap reached",
			zap.Int("max_reconnects", l.cfg.MaxReconnects),
		)
		l.events.HandleReconnectsExhausted()
		return
	}
	delay := Backoff(l.attempts, l.cfg.ReconnectBase, l.cfg.ReconnectMax)
	attempt := l.attempts
	l.reconnectTimer = time.AfterFunc(delay, func() {
		l.Connect()
	})
	l.mu.Unlock()

	l.logger.Info("upstream reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)
}

// Backoff returns the delay before reconnect attempt n (1-based):
// base * 2^(n-1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		return base
	}
	// 2^30 already exceeds any sane cap, avoid shift overflow beyond that.
	if attempt-1 > 30 {
		return max
	}
	d := base * time.Duration(1<<(attempt-1))
	if d > max {
		return max
	}
	return d
}
