package relay

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/protocol"
	"github.com/Jasmitsingh01/Trading-sub001/pkg/models"
)

// Feed is the upstream side of the relay. Satisfied by upstream.Link and by
// test doubles.
type Feed interface {
	Subscribe(symbol string)
	Unsubscribe(symbol string)
	IsConnected() bool
	ReconnectAttempts() int
	MessagesReceived() int64
	LastMessageAt() time.Time
	Shutdown()
}

// TradePublisher mirrors accepted trades to an external sink (Redis, Kafka).
// Publish must never block the fan-out path.
type TradePublisher interface {
	Publish(t models.Trade)
}

// Stats is the read-only snapshot served to the REST/diagnostics layer.
type Stats struct {
	UpstreamConnected bool     `json:"upstreamConnected"`
	Clients           int      `json:"clients"`
	Symbols           []string `json:"symbols"`
	ReconnectAttempts int      `json:"reconnectAttempts"`
	UptimeMs          int64    `json:"uptimeMs"`
	LastMessageAt     int64    `json:"lastMessageAt"` // unix millis, 0 if none
	MessagesReceived  int64    `json:"messagesReceived"`
}

// Relay multiplexes one upstream feed to many downstream clients. It owns
// the subscription registry, the price cache and the client registry; all
// three are mutated only under r.mu. Client sends are buffered-channel
// pushes inside the socket adapter, so they are safe under r.mu; r.mu is
// never held across a network write.
type Relay struct {
	logger     *zap.Logger
	serverName string
	staleness  time.Duration
	publishers []TradePublisher

	mu      sync.Mutex
	subs    *SubscriptionRegistry
	cache   *PriceCache
	clients *ClientRegistry
	feed    Feed
	closed  bool

	// feedMu serializes upstream commands in registry-decision order. It
	// is acquired while r.mu is still held and released after the command
	// goes out, so a subscribe decided after an unsubscribe can never be
	// sent before it.
	feedMu sync.Mutex

	startedAt    time.Time
	shutdownOnce sync.Once
}

func New(serverName string, staleness time.Duration, logger *zap.Logger, publishers ...TradePublisher) *Relay {
	return &Relay{
		logger:     logger,
		serverName: serverName,
		staleness:  staleness,
		publishers: publishers,
		subs:       NewSubscriptionRegistry(),
		cache:      NewPriceCache(),
		clients:    NewClientRegistry(logger),
		startedAt:  time.Now(),
	}
}

// AttachFeed wires the upstream link. Done after construction because the
// link itself needs the relay as its event handler and symbol source.
func (r *Relay) AttachFeed(f Feed) {
	r.mu.Lock()
	r.feed = f
	r.mu.Unlock()
}

// AddClient registers a downstream socket, assigns it an ID and immediately
// sends the handshake plus, when the cache is non-empty, a full snapshot.
func (r *Relay) AddClient(sock ClientSocket) string {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sock.Close()
		return ""
	}
	id := r.clients.Add(sock)
	upstreamUp := r.feed != nil && r.feed.IsConnected()
	snapshot := r.cache.SnapshotAll()
	r.mu.Unlock()

	sock.SendJSON(protocol.NewHello(id, r.serverName, upstreamUp))
	if len(snapshot) > 0 {
		sock.SendJSON(protocol.NewSnapshot(snapshot))
	}

	r.logger.Info("client connected", zap.String("client_id", id))
	return id
}

// RemoveClient drops a client and cascades: its interest is removed from
// every symbol it held, and any symbol left without subscribers is
// unsubscribed upstream and evicted from the cache. Idempotent.
func (r *Relay) RemoveClient(clientID string) {
	r.mu.Lock()
	conn := r.clients.Get(clientID)
	if conn == nil {
		r.mu.Unlock()
		return
	}
	var emptied []string
	for _, sym := range conn.Symbols() {
		if r.subs.RemoveInterest(clientID, sym) {
			r.cache.Evict(sym)
			emptied = append(emptied, sym)
		}
	}
	r.clients.Remove(clientID)
	feed := r.feed
	if len(emptied) == 0 {
		r.mu.Unlock()
	} else {
		r.feedMu.Lock()
		r.mu.Unlock()
		for _, sym := range emptied {
			r.unsubscribeUpstream(feed, sym)
		}
		r.feedMu.Unlock()
	}

	r.logger.Info("client disconnected",
		zap.String("client_id", clientID),
		zap.Int("symbols_released", len(emptied)),
	)
}

// Subscribe adds interest for a known client. The client gets a subscribed
// ack and, when a price is already cached, an immediate trade push so it is
// not left waiting for the next upstream tick. Returns false only for an
// unknown client ID.
func (r *Relay) Subscribe(clientID, symbol string) bool {
	r.mu.Lock()
	conn := r.clients.Get(clientID)
	if conn == nil || r.closed {
		r.mu.Unlock()
		return false
	}
	r.clients.AddSymbol(clientID, symbol)
	first := r.subs.AddInterest(clientID, symbol)
	feed := r.feed

	// Ack and cached push are queued before the lock is released so a
	// concurrent fan-out of a newer tick cannot land ahead of the cached
	// one.
	r.clients.Send(clientID, protocol.NewSubscribedAck(symbol))
	if cached, ok := r.cache.Get(symbol); ok {
		r.clients.Send(clientID, protocol.NewTradePush(cached))
	}

	if !first {
		r.mu.Unlock()
		return true
	}
	r.feedMu.Lock()
	r.mu.Unlock()
	r.subscribeUpstream(feed, symbol)
	r.feedMu.Unlock()
	return true
}

// Unsubscribe removes interest for a known client and acks it. When the
// last holder leaves, the upstream subscription is dropped and the cached
// price evicted. Idempotent for symbols the client never held.
func (r *Relay) Unsubscribe(clientID, symbol string) bool {
	r.mu.Lock()
	conn := r.clients.Get(clientID)
	if conn == nil {
		r.mu.Unlock()
		return false
	}
	r.clients.RemoveSymbol(clientID, symbol)
	last := r.subs.RemoveInterest(clientID, symbol)
	if last {
		r.cache.Evict(symbol)
	}
	feed := r.feed
	r.clients.Send(clientID, protocol.NewUnsubscribedAck(symbol))

	if !last {
		r.mu.Unlock()
		return true
	}
	r.feedMu.Lock()
	r.mu.Unlock()
	r.unsubscribeUpstream(feed, symbol)
	r.feedMu.Unlock()
	return true
}

// HandleUpstreamTrade records the trade and fans it out to exactly the
// clients interested at this instant. Snapshot-then-iterate: a client
// mutating its subscriptions concurrently either fully receives or fully
// misses this trade.
func (r *Relay) HandleUpstreamTrade(t models.Trade) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	ids := r.subs.InterestedClients(t.Symbol)
	if len(ids) == 0 {
		// Late tick for a symbol nobody holds anymore; caching it would
		// resurrect an entry that snapshots must no longer contain.
		r.mu.Unlock()
		return
	}
	r.cache.Update(t)
	targets := make([]ClientSocket, 0, len(ids))
	for _, id := range ids {
		if conn := r.clients.Get(id); conn != nil {
			targets = append(targets, conn.sock)
		}
	}
	r.mu.Unlock()

	msg := protocol.NewTradePush(t)
	for _, sock := range targets {
		sock.SendJSON(msg)
	}

	for _, p := range r.publishers {
		p.Publish(t)
	}
}

// HandleUpstreamConnected is invoked after every (re)connect, once the link
// has already re-issued subscriptions for all active symbols.
func (r *Relay) HandleUpstreamConnected() {
	r.logger.Info("upstream connected")
}

// HandleUpstreamDisconnected is informational: clients keep their
// subscriptions, live updates pause until the link recovers.
func (r *Relay) HandleUpstreamDisconnected(code int, reason string) {
	r.logger.Warn("upstream disconnected",
		zap.Int("code", code),
		zap.String("reason", reason),
	)
}

func (r *Relay) HandleUpstreamError(message string) {
	r.logger.Warn("upstream feed error", zap.String("message", message))
}

// HandleReconnectsExhausted marks the terminal upstream state; recovery
// needs an operator restart and is surfaced through Healthy().
func (r *Relay) HandleReconnectsExhausted() {
	r.logger.Error("upstream reconnect attempts exhausted, feed requires restart")
}

// ActiveSymbols lets the upstream link resubscribe everything with a
// non-zero reference count after a reconnect.
func (r *Relay) ActiveSymbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs.ActiveSymbols()
}

// Stats returns an aggregated read-only snapshot for the diagnostics layer.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	feed := r.feed
	clients := r.clients.Len()
	symbols := r.subs.ActiveSymbols()
	r.mu.Unlock()

	s := Stats{
		Clients:  clients,
		Symbols:  symbols,
		UptimeMs: time.Since(r.startedAt).Milliseconds(),
	}
	if feed != nil {
		s.UpstreamConnected = feed.IsConnected()
		s.ReconnectAttempts = feed.ReconnectAttempts()
		s.MessagesReceived = feed.MessagesReceived()
		if last := feed.LastMessageAt(); !last.IsZero() {
			s.LastMessageAt = last.UnixMilli()
		}
	}
	return s
}

// Healthy reports liveness: the upstream must be connected and, once any
// message has arrived, the latest one must be inside the staleness window.
func (r *Relay) Healthy() bool {
	r.mu.Lock()
	feed := r.feed
	r.mu.Unlock()

	if feed == nil || !feed.IsConnected() {
		return false
	}
	if feed.MessagesReceived() == 0 {
		return true
	}
	return time.Since(feed.LastMessageAt()) <= r.staleness
}

// Shutdown notifies every client, closes their sockets, clears the registry
// and shuts the upstream link. Safe to call more than once.
func (r *Relay) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		conns := r.clients.All()
		r.clients.Clear()
		feed := r.feed
		r.mu.Unlock()

		notice := protocol.NewShutdownNotice()
		for _, conn := range conns {
			conn.sock.SendJSON(notice)
			conn.sock.Close()
		}
		if feed != nil {
			feed.Shutdown()
		}

		r.logger.Info("relay shut down", zap.Int("clients_closed", len(conns)))
	})
}

func (r *Relay) subscribeUpstream(feed Feed, symbol string) {
	if feed == nil {
		r.logger.Warn("no upstream feed attached, cannot subscribe", zap.String("symbol", symbol))
		return
	}
	feed.Subscribe(symbol)
}

func (r *Relay) unsubscribeUpstream(feed Feed, symbol string) {
	if feed == nil {
		r.logger.Warn("no upstream feed attached, cannot unsubscribe", zap.String("symbol", symbol))
		return
	}
	feed.Unsubscribe(symbol)
}
