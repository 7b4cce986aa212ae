package sink_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/sink"
	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/testutils"
	"github.com/Jasmitsingh01/Trading-sub001/pkg/models"
)

func TestKafkaSink_KeyedBySymbol(t *testing.T) {
	writer := &testutils.MockKafkaWriter{}
	s := sink.NewKafkaSink(writer, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	tick := models.Trade{Symbol: "EURUSD", Price: 1.0821, Timestamp: 1700000000000, Volume: 100}
	s.Publish(tick)

	deadline := time.Now().Add(2 * time.Second)
	for {
		writer.Mu.Lock()
		n := len(writer.Messages)
		writer.Mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for kafka message")
		}
		time.Sleep(5 * time.Millisecond)
	}

	writer.Mu.Lock()
	defer writer.Mu.Unlock()
	msg := writer.Messages[0]
	if string(msg.Key) != "EURUSD" {
		t.Errorf("messages must be keyed by symbol for per-symbol ordering, got %q", msg.Key)
	}
	var got models.Trade
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload is not a trade: %v", err)
	}
	if got != tick {
		t.Errorf("expected %+v, got %+v", tick, got)
	}
}

func TestKafkaSink_Close(t *testing.T) {
	writer := &testutils.MockKafkaWriter{}
	s := sink.NewKafkaSink(writer, zap.NewNop())

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	writer.Mu.Lock()
	defer writer.Mu.Unlock()
	if writer.ClosedN != 1 {
		t.Errorf("expected writer closed once, got %d", writer.ClosedN)
	}
}
