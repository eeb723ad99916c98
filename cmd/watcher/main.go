package main

import (
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	logrus "github.com/sirupsen/logrus"

	"whalewatch/internal/config"
	"whalewatch/internal/events"
	"whalewatch/internal/storage"
	"whalewatch/internal/watcher"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Invalid configuration: ", err)
	}
	if cfg.SolanaRPC == "" || cfg.SolanaWSS == "" {
		logrus.Fatal("SOLANA_RPC and SOLANA_WSS must be set")
	}
	if cfg.RabbitMQHost == "" {
		logrus.Fatal("RABBITMQ_HOST must be set")
	}

	db, err := storage.Open(cfg)
	if err != nil {
		logrus.Fatal("Failed to initialize database: ", err)
	}
	if os.Getenv("RUN_MIGRATIONS") == "true" {
		if err := storage.ExecuteMigrations(db); err != nil {
			logrus.Fatal("Failed to run migrations: ", err)
		}
		logrus.Info("Database migrations completed")
	}
	store := storage.NewStore(db)

	conn, err := events.Dial(cfg.AMQPURL())
	if err != nil {
		logrus.Fatal("Failed to connect to RabbitMQ: ", err)
	}
	defer conn.Close()

	publisher, err := events.NewPublisher(conn)
	if err != nil {
		logrus.Fatal("Failed to create publisher: ", err)
	}
	defer publisher.Close()

	svc := watcher.NewService(cfg, store, publisher)
	if err := svc.Start(); err != nil {
		logrus.Fatal("Failed to start watcher service: ", err)
	}

	// Wallet command queue links the admin API to this process
	consumer, err := events.NewConsumer(conn, events.QueueWalletCommands)
	if err != nil {
		logrus.Fatal("Failed to create consumer: ", err)
	}
	defer consumer.Close()

	go func() {
		err := consumer.Consume(func(msg []byte) error {
			var cmd events.WalletCommand
			if err := json.Unmarshal(msg, &cmd); err != nil {
				logrus.Errorf("Failed to unmarshal wallet command: %v", err)
				return nil // malformed, do not requeue
			}
			return svc.HandleWalletCommand(cmd)
		})
		if err != nil {
			logrus.Errorf("Wallet command consumer stopped: %v", err)
		}
	}()

	// Minimal status surface so connection health is observable
	go func() {
		gin.SetMode(gin.ReleaseMode)
		r := gin.New()
		r.GET("/health", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		r.GET("/watcher/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, svc.Health())
		})
		if err := r.Run(":" + cfg.WatcherPort); err != nil {
			logrus.Errorf("Status server stopped: %v", err)
		}
	}()

	logrus.Info("Whale watcher started, waiting for feed notifications...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down...")
	svc.Stop()
}
