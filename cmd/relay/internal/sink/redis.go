package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/pkg/models"
)

const (
	keyPrefix     = "price:"
	channelPrefix = "prices."
)

// RedisSink mirrors the latest price per symbol into Redis so the REST
// layer can serve reads without touching the relay, and publishes each tick
// on a per-symbol channel for pub/sub consumers. SET and PUBLISH go through
// one pipeline so subscribers never observe a published tick the key does
// not yet hold.
type RedisSink struct {
	queue
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSink(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisSink {
	return &RedisSink{
		queue:  newQueue("redis", 1024, logger),
		client: client,
		ttl:    ttl,
	}
}

// Run drains the queue until ctx is cancelled.
func (s *RedisSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.ch:
			s.write(t)
		}
	}
}

func (s *RedisSink) write(t models.Trade) {
	payload, err := json.Marshal(t)
	if err != nil {
		s.logger.Error("marshal trade for redis", zap.Error(err))
		return
	}

	// TTL prevents unbounded growth for symbols nobody asks about again.
	ctx := context.Background()
	pipe := s.client.Pipeline()
	pipe.Set(ctx, keyPrefix+t.Symbol, payload, s.ttl)
	pipe.Publish(ctx, channelPrefix+t.Symbol, payload)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("redis pipeline error",
			zap.Error(err),
			zap.String("symbol", t.Symbol),
		)
	}
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
