package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/diag"
	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/gateway"
	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/relay"
	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/sink"
	"github.com/Jasmitsingh01/Trading-sub001/cmd/relay/internal/upstream"
	"github.com/Jasmitsingh01/Trading-sub001/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()

	var publishers []relay.TradePublisher
	var sinks []sink.Sink

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(sinkCtx).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		rs := sink.NewRedisSink(rdb, cfg.Redis.TTL, logger)
		publishers = append(publishers, rs)
		sinks = append(sinks, rs)
	}

	if cfg.Kafka.Enabled {
		ks := sink.NewKafkaSink(sink.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		publishers = append(publishers, ks)
		sinks = append(sinks, ks)
	}

	for _, s := range sinks {
		go s.Run(sinkCtx)
	}

	svc := relay.New(cfg.Relay.ServerName, cfg.Relay.Staleness, logger, publishers...)

	link := upstream.NewLink(upstream.Config{
		URL:           cfg.Upstream.URL,
		Token:         cfg.Upstream.Token,
		DialTimeout:   cfg.Upstream.DialTimeout,
		PingInterval:  cfg.Upstream.PingInterval,
		ReconnectBase: cfg.Upstream.ReconnectBase,
		ReconnectMax:  cfg.Upstream.ReconnectMax,
		MaxReconnects: cfg.Upstream.MaxReconnects,
	}, logger, svc, svc)
	svc.AttachFeed(link)

	if err := link.Connect(); err != nil {
		// Backoff retries are already scheduled; clients can connect and
		// subscribe in the meantime.
		logger.Warn("initial upstream connect failed", zap.Error(err))
	}

	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	diag.NewHandler(svc).Register(router)

	router.GET("/ws", func(c *gin.Context) {
		conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := gateway.NewClient(conn, svc, logger, cfg.Relay.SendBuffer)
		client.Start()
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: router}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	svc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	stopSinks()
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.Error("error closing sink", zap.Error(err))
		}
	}

	logger.Info("Shutdown Complete")
}
