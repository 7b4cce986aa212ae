package protocol

import "github.com/Jasmitsingh01/Trading-sub001/pkg/models"

// Server -> client message types
const (
	TypeConnected      = "connected"
	TypeSnapshot       = "snapshot"
	TypeTrade          = "trade"
	TypeSubscribed     = "subscribed"
	TypeUnsubscribed   = "unsubscribed"
	TypeError          = "error"
	TypeServerShutdown = "server-shutdown"
)

// Client -> server message types
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Request is a downstream client's subscribe/unsubscribe message.
type Request struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// Hello is the handshake sent immediately after a client connects. Some
// client transports only consider the session established once the first
// server message arrives, so this must never be deferred.
type Hello struct {
	Type              string `json:"type"`
	ClientID          string `json:"clientId"`
	Server            string `json:"server"`
	UpstreamConnected bool   `json:"upstreamConnected"`
}

// Snapshot carries every cached price, sent once at connect time when the
// cache is non-empty.
type Snapshot struct {
	Type   string         `json:"type"`
	Trades []models.Trade `json:"trades"`
}

// TradePush is a single live (or cached) price update.
type TradePush struct {
	Type  string       `json:"type"`
	Trade models.Trade `json:"trade"`
}

// Ack echoes the symbol of a processed subscribe/unsubscribe request.
type Ack struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// ErrorMsg reports a rejected or malformed client request.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Notice is a bare typed message, e.g. the pre-close shutdown notice.
type Notice struct {
	Type string `json:"type"`
}

func NewHello(clientID, server string, upstreamConnected bool) Hello {
	return Hello{Type: TypeConnected, ClientID: clientID, Server: server, UpstreamConnected: upstreamConnected}
}

func NewSnapshot(trades []models.Trade) Snapshot {
	return Snapshot{Type: TypeSnapshot, Trades: trades}
}

func NewTradePush(t models.Trade) TradePush {
	return TradePush{Type: TypeTrade, Trade: t}
}

func NewSubscribedAck(symbol string) Ack {
	return Ack{Type: TypeSubscribed, Symbol: symbol}
}

func NewUnsubscribedAck(symbol string) Ack {
	return Ack{Type: TypeUnsubscribed, Symbol: symbol}
}

func NewError(message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Message: message}
}

func NewShutdownNotice() Notice {
	return Notice{Type: TypeServerShutdown}
}
