package relay

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientSocket is the send side of a downstream connection. Implementations
// must be safe to call after close; a failed or dropped send must never
// propagate an error back into the relay loop.
type ClientSocket interface {
	SendJSON(v interface{})
	Close()
}

// ClientConnection tracks one downstream session and its symbol interest set.
type ClientConnection struct {
	ID          string
	sock        ClientSocket
	symbols     map[string]bool
	ConnectedAt time.Time
}

// Symbols returns a copy of the client's current interest set.
func (c *ClientConnection) Symbols() []string {
	out := make([]string, 0, len(c.symbols))
	for sym := range c.symbols {
		out = append(out, sym)
	}
	return out
}

// ClientRegistry tracks downstream connections and performs per-client
// sends. Not safe for concurrent use; the Relay serializes access.
type ClientRegistry struct {
	conns  map[string]*ClientConnection
	logger *zap.Logger
}

func NewClientRegistry(logger *zap.Logger) *ClientRegistry {
	return &ClientRegistry{
		conns:  make(map[string]*ClientConnection),
		logger: logger,
	}
}

// Add stores a new connection with an empty interest set and returns its
// generated ID. Epoch millis plus a random suffix; collisions are treated
// as negligible.
func (r *ClientRegistry) Add(sock ClientSocket) string {
	id := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	r.conns[id] = &ClientConnection{
		ID:          id,
		sock:        sock,
		symbols:     make(map[string]bool),
		ConnectedAt: time.Now(),
	}
	return id
}

// Remove deletes the connection. Removing an unknown ID is a no-op.
func (r *ClientRegistry) Remove(clientID string) {
	delete(r.conns, clientID)
}

func (r *ClientRegistry) Get(clientID string) *ClientConnection {
	return r.conns[clientID]
}

func (r *ClientRegistry) AddSymbol(clientID, symbol string) {
	if c, ok := r.conns[clientID]; ok {
		c.symbols[symbol] = true
	}
}

func (r *ClientRegistry) RemoveSymbol(clientID, symbol string) {
	if c, ok := r.conns[clientID]; ok {
		delete(c.symbols, symbol)
	}
}

// Send delivers a message to one client. Failures stay inside the socket
// adapter; a broken client is cleaned up by its own disconnect event, never
// by a send.
func (r *ClientRegistry) Send(clientID string, msg interface{}) {
	c, ok := r.conns[clientID]
	if !ok {
		r.logger.Debug("send to unknown client", zap.String("client_id", clientID))
		return
	}
	c.sock.SendJSON(msg)
}

func (r *ClientRegistry) Len() int {
	return len(r.conns)
}

// All returns a snapshot of every connection.
func (r *ClientRegistry) All() []*ClientConnection {
	out := make([]*ClientConnection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Clear drops every connection from the registry.
func (r *ClientRegistry) Clear() {
	r.conns = make(map[string]*ClientConnection)
}
