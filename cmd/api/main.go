package main

import (
	logrus "github.com/sirupsen/logrus"

	"whalewatch/internal/config"
	"whalewatch/internal/events"
	"whalewatch/internal/handlers"
	"whalewatch/internal/routes"
	"whalewatch/internal/storage"
	solanapkg "whalewatch/pkg/solana"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Invalid configuration: ", err)
	}

	db, err := storage.Open(cfg)
	if err != nil {
		logrus.Fatal("Failed to initialize database: ", err)
	}
	store := storage.NewStore(db)

	// RabbitMQ is optional for the API; without it, wallet mutations only
	// reach watchers restarted afterwards
	var publisher *events.Publisher
	if cfg.RabbitMQHost != "" {
		conn, err := events.Dial(cfg.AMQPURL())
		if err != nil {
			logrus.Fatal("Failed to connect to RabbitMQ: ", err)
		}
		defer conn.Close()

		publisher, err = events.NewPublisher(conn)
		if err != nil {
			logrus.Fatal("Failed to create publisher: ", err)
		}
		defer publisher.Close()
	} else {
		logrus.Warn("RabbitMQ not configured, wallet commands will not be published")
	}

	var probe *solanapkg.NodeProbe
	if cfg.SolanaRPC != "" {
		probe = solanapkg.NewNodeProbe(cfg.SolanaRPC)
	}

	h := handlers.New(db, store, publisher, probe)
	r := routes.SetupRouter(h)

	if err := r.Run(":" + cfg.Port); err != nil {
		logrus.Fatal("Failed to start server: ", err)
	}
}
