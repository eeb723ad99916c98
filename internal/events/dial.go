package events

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Dial connects to RabbitMQ with retry, since brokers often come up after
// the services that depend on them.
func Dial(url string) (*amqp.Connection, error) {
	maxRetries := 10
	retryDelay := 3 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if i < maxRetries-1 {
			log.WithFields(log.Fields{
				"attempt": i + 1,
				"error":   err.Error(),
			}).Warn("Failed to connect to RabbitMQ, retrying")
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, lastErr)
}
