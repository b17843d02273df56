package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisDriver "github.com/redis/go-redis/v9"

	"petpulse/internal/config"
	"petpulse/internal/handlers/chatserver"
	appKafka "petpulse/internal/kafka"
	appRedis "petpulse/internal/redis"
	"petpulse/internal/services"
	"petpulse/internal/storage"
	"petpulse/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("%s chatserver starting (v%s)", cfg.AppName, cfg.AppVersion)

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		log.Fatalf("failed to migrate database tables: %v", err)
	}

	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	presence := appRedis.NewRedisPresenceRegistry(redisClient)

	hub := websocket.NewHub(presence)
	go hub.Run()

	msgRepo := storage.NewGormMessageRepository(db)

	// With Kafka enabled, confirmed messages travel through the outgoing
	// topic so every chatserver instance fans out to its own sockets.
	// Without it, this instance delivers straight to its local hub.
	var deliverer services.Deliverer = hub
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()

	if cfg.Kafka.Enabled {
		producer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
		if err != nil {
			log.Fatalf("failed to create kafka producer: %v", err)
		}
		defer producer.Close()
		deliverer = services.NewKafkaDeliverer(producer, cfg.Kafka.OutgoingTopic)

		consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
		if err != nil {
			log.Fatalf("failed to create kafka consumer: %v", err)
		}
		defer consumer.Close()

		// Each instance consumes under its own group so every record
		// reaches every instance's local sockets.
		groupID := appKafka.InstanceGroupID(cfg.Kafka.ConsumerGroup)

		go func() {
			topics := []string{cfg.Kafka.OutgoingTopic}
			err := consumer.Consume(consumerCtx, topics, groupID,
				services.NewOutgoingConsumerHandler(hub))
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("kafka outgoing consumer error: %v", err)
			}
		}()
	}

	chatService := services.NewChatService(msgRepo, deliverer)
	wsHandler := chatserver.NewWebSocketHandler(hub, chatService, cfg)

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WebSocketPath, wsHandler.ServeWS)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:           serverAddr,
		Handler:        mux,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("chatserver listening on %s, websocket path %s", serverAddr, cfg.Server.WebSocketPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("chatserver failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("chatserver shutting down...")

	cancelConsumer()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("chatserver shutdown failed: %v", err)
	}
	log.Println("chatserver stopped")
}
