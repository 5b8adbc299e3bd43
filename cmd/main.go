package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/yourorg/teamhub/services/realtime-service/internal/api"
	"github.com/yourorg/teamhub/services/realtime-service/internal/auth"
	"github.com/yourorg/teamhub/services/realtime-service/internal/bridge"
	"github.com/yourorg/teamhub/services/realtime-service/internal/chat"
	"github.com/yourorg/teamhub/services/realtime-service/internal/config"
	"github.com/yourorg/teamhub/services/realtime-service/internal/hub"
	"github.com/yourorg/teamhub/services/realtime-service/internal/kafka"
	"github.com/yourorg/teamhub/services/realtime-service/internal/logger"
	"github.com/yourorg/teamhub/services/realtime-service/internal/membership"
	"github.com/yourorg/teamhub/services/realtime-service/internal/store"
	"github.com/yourorg/teamhub/services/realtime-service/internal/typing"
	"github.com/yourorg/teamhub/services/realtime-service/internal/ws"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	zlog, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, err := store.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		zlog.Fatalw("mongo connect failed", "err", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.Mongo.Database)

	rdb := bridge.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, zlog)
	if rdb != nil {
		defer rdb.Close()
	}

	instanceID := cfg.App.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	msgRepo := store.NewMessageRepo(db)
	notifRepo := store.NewNotificationRepo(db)
	members := membership.NewMongoChecker(db)
	verifier := auth.NewJWTVerifier(cfg.JWT.Secret)

	h := hub.New(zlog)
	pub := bridge.NewPublisher(rdb, instanceID, zlog)
	if rdb != nil {
		h.SetRelay(pub.Relay)
	}

	var producer chat.EventProducer
	if len(cfg.Kafka.Brokers) > 0 {
		kp := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent)
		defer kp.Close()
		producer = kp
	}

	chatSvc := chat.NewService(msgRepo, msgRepo, msgRepo, members, h, producer, zlog)
	typingMgr := typing.NewManager(typing.NewRedisStore(rdb, cfg.Redis.Prefix), h, zlog)

	sub := bridge.NewSubscriber(rdb, h, notifRepo, instanceID, zlog)
	go sub.Run(ctx)

	wsHandler := ws.NewHandler(h, verifier, members, chatSvc, typingMgr, cfg, zlog)
	app := api.New(wsHandler, chatSvc, verifier, members, zlog)

	errs := make(chan error, 1)
	go func() {
		zlog.Infow("realtime service listening", "port", cfg.App.Port, "instance_id", instanceID)
		errs <- app.Listen(":" + cfg.App.Port)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		zlog.Errorw("server error", "err", err)
	case s := <-sig:
		zlog.Infow("signal received", "signal", s)
	}

	cancel()
	if err := app.Shutdown(); err != nil {
		zlog.Warnw("shutdown error", "err", err)
	}
	zlog.Info("shut down")
}
