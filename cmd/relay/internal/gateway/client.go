package gateway

import (
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/protocol"
	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/relay"
)

const (
	maxMessageSize = 512 * 1024
)

// Session is the slice of the relay a client adapter drives.
type Session interface {
	AddClient(sock relay.ClientSocket) string
	RemoveClient(clientID string)
	Subscribe(clientID, symbol string) bool
	Unsubscribe(clientID, symbol string) bool
}

// ClientAdapter bridges one raw downstream connection to the relay: a read
// pump for subscribe/unsubscribe requests and a write pump draining the
// buffered send channel.
type ClientAdapter struct {
	conn   net.Conn
	relay  Session
	send   chan []byte
	logger *zap.Logger

	clientID string

	mu     sync.Mutex
	closed bool

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, s Session, logger *zap.Logger, sendBuffer int) *ClientAdapter {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &ClientAdapter{
		conn:       conn,
		relay:      s,
		send:       make(chan []byte, sendBuffer),
		logger:     logger,
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Start registers the adapter with the relay (which queues the handshake
// and snapshot) and launches both pumps.
func (c *ClientAdapter) Start() {
	c.clientID = c.relay.AddClient(c)
	go c.writePump()
	go c.readPump()
}

// SendJSON serializes and queues a message. When the buffer is full the
// message is dropped (backpressure); failures never close the socket.
func (c *ClientAdapter) SendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("marshal outbound message", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		c.logger.Warn("send buffer full, dropping message", zap.String("client_id", c.clientID))
	}
}

// Close stops the write pump; the pump sends a going-away close frame and
// closes the underlying connection. Idempotent.
func (c *ClientAdapter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.relay.RemoveClient(c.clientID)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("client message too big", zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			c.logger.Warn("client sent fragmented message (not supported)")
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		if header.OpCode == ws.OpClose {
			break
		}
		if header.OpCode == ws.OpPong {
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		}

		if header.OpCode == ws.OpText {
			c.handleRequest(payload)
		}
	}
}

func (c *ClientAdapter) handleRequest(payload []byte) {
	var req protocol.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		c.SendJSON(protocol.NewError("invalid JSON"))
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		c.SendJSON(protocol.NewError("missing symbol"))
		return
	}

	switch req.Type {
	case protocol.ActionSubscribe:
		if !c.relay.Subscribe(c.clientID, symbol) {
			c.SendJSON(protocol.NewError("subscribe rejected"))
		}
	case protocol.ActionUnsubscribe:
		if !c.relay.Unsubscribe(c.clientID, symbol) {
			c.SendJSON(protocol.NewError("unsubscribe rejected"))
		}
	default:
		c.SendJSON(protocol.NewError("unknown message type: " + req.Type))
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if !ok {
				body := ws.NewCloseFrameBody(ws.StatusGoingAway, "server closing")
				wsutil.WriteServerMessage(c.conn, ws.OpClose, body)
				return
			}
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
