package database

import (
	"fmt"
	"time"

	"school_messaging_service/pkg/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NewNatsConnection connect nats with retry
func NewNatsConnection(d Connection, name string) (*nats.Conn, error) {
	var nc *nats.Conn
	var err error

	for attempt := 1; attempt <= d.RetryCount; attempt++ {
		nc, err = nats.Connect(d.ConnectStr,
			nats.Name(name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Log.Warn("nats disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
			}),
		)
		if err == nil {
			return nc, nil
		}

		logger.Log.Warn("Failed to connect to nats, retrying...",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval)
	}

	return nil, fmt.Errorf("failed to connect to nats after %d attempts: %w", d.RetryCount, err)
}
