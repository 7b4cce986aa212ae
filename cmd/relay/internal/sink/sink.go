package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/pkg/models"
)

// Sink mirrors relayed trades to an external system for the REST/analytics
// layer. Publish is a non-blocking enqueue; a slow sink drops ticks rather
// than stalling the fan-out path, since for live prices "latest" beats
// "all".
type Sink interface {
	Publish(t models.Trade)
	Run(ctx context.Context)
	Close() error
}

// queue is the shared buffered-channel front of every sink.
type queue struct {
	name   string
	ch     chan models.Trade
	logger *zap.Logger
}

func newQueue(name string, size int, logger *zap.Logger) queue {
	if size <= 0 {
		size = 1024
	}
	return queue{name: name, ch: make(chan models.Trade, size), logger: logger}
}

func (q *queue) Publish(t models.Trade) {
	select {
	case q.ch <- t:
	default:
		q.logger.Warn("sink backpressure, dropping tick",
			zap.String("sink", q.name),
			zap.String("symbol", t.Symbol),
		)
	}
}
