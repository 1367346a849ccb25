package database

import (
	"context"
	"fmt"
	"time"

	"school_messaging_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaWriterWithRetry 確認 broker 可連線後建立非同步 Kafka Writer
func NewKafkaWriterWithRetry(k KafkaConnection) (*kafka.Writer, error) {
	var err error

	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		err = dialAny(k.Brokers)
		if err == nil {
			logger.Log.Info("kafka brokers reachable", zap.Int("attempt", attempt), zap.Strings("brokers", k.Brokers))
			return &kafka.Writer{
				Addr:                   kafka.TCP(k.Brokers...),
				Topic:                  k.Topic,
				Balancer:               &kafka.LeastBytes{},
				Async:                  true,
				AllowAutoTopicCreation: true,
			}, nil
		}

		logger.Log.Warn("kafka brokers unreachable, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("retry_count", k.RetryCount),
			zap.Error(err),
		)
		time.Sleep(k.RetryInterval)
	}

	return nil, fmt.Errorf("kafka writer not created after %d attempts: %w", k.RetryCount, err)
}

func dialAny(brokers []string) error {
	var lastErr error = fmt.Errorf("no kafka brokers configured")
	for _, b := range brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err := kafka.DialContext(ctx, "tcp", b)
		cancel()
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return lastErr
}
