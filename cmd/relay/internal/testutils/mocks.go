package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// MockSocket simulates a connected downstream websocket client.
type MockSocket struct {
	Mu       sync.Mutex
	Messages []interface{}
	Closed   bool
}

func NewMockSocket() *MockSocket {
	return &MockSocket{}
}

func (m *MockSocket) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Messages = append(m.Messages, v)
}

func (m *MockSocket) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

// Sent returns a snapshot of everything delivered to the socket.
func (m *MockSocket) Sent() []interface{} {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]interface{}, len(m.Messages))
	copy(out, m.Messages)
	return out
}

func (m *MockSocket) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

// MockFeed simulates the upstream link.
type MockFeed struct {
	Mu           sync.Mutex
	Subscribed   map[string]int // symbol -> subscribe command count
	Unsubscribed map[string]int
	Commands     []string // every command in arrival order, "subscribe SYM" / "unsubscribe SYM"
	Connected    bool
	Attempts     int
	Messages     int64
	LastMessage  time.Time
	ShutdownN    int

	// UnsubscribeGate, when set, makes Unsubscribe block on an unbuffered
	// send until the test receives from it. Lets a test hold an
	// unsubscribe command mid-flight.
	UnsubscribeGate chan struct{}
}

func NewMockFeed() *MockFeed {
	return &MockFeed{
		Subscribed:   make(map[string]int),
		Unsubscribed: make(map[string]int),
		Connected:    true,
	}
}

func (m *MockFeed) Subscribe(symbol string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Subscribed[symbol]++
	m.Commands = append(m.Commands, "subscribe "+symbol)
}

func (m *MockFeed) Unsubscribe(symbol string) {
	m.Mu.Lock()
	gate := m.UnsubscribeGate
	m.Mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}

	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Unsubscribed[symbol]++
	m.Commands = append(m.Commands, "unsubscribe "+symbol)
}

func (m *MockFeed) IsConnected() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Connected
}

func (m *MockFeed) ReconnectAttempts() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Attempts
}

func (m *MockFeed) MessagesReceived() int64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Messages
}

func (m *MockFeed) LastMessageAt() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.LastMessage
}

func (m *MockFeed) Shutdown() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ShutdownN++
}

// SubCount reads a subscribe count under the lock.
func (m *MockFeed) SubCount(symbol string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Subscribed[symbol]
}

func (m *MockFeed) UnsubCount(symbol string) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Unsubscribed[symbol]
}

// CommandLog returns a snapshot of every command in arrival order.
func (m *MockFeed) CommandLog() []string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	out := make([]string, len(m.Commands))
	copy(out, m.Commands)
	return out
}

// MockKafkaWriter captures produced messages.
type MockKafkaWriter struct {
	Mu       sync.Mutex
	Messages []kafka.Message
	Err      error
	ClosedN  int
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ClosedN++
	return nil
}
