package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/pkg/logger"
	"school_messaging_service/pkg/metrics"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const natsSubjectPrefix = "messaging.feed."

// NatsChangeFeed change feed over nats subjects. A nats subscription
// delivers its callbacks one at a time, which keeps per-topic order.
type NatsChangeFeed struct {
	nc *nats.Conn
}

var _ domain.ChangeFeed = (*NatsChangeFeed)(nil)

// NewNatsChangeFeed create NatsChangeFeed
func NewNatsChangeFeed(nc *nats.Conn) *NatsChangeFeed {
	return &NatsChangeFeed{nc: nc}
}

// Publish ChangeFeed
func (n *NatsChangeFeed) Publish(_ context.Context, event domain.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(natsSubjectPrefix+event.Topic, data); err != nil {
		return err
	}
	metrics.FeedEvents.WithLabelValues("publish", string(event.Entity)).Inc()
	return nil
}

// Subscribe ChangeFeed
func (n *NatsChangeFeed) Subscribe(_ context.Context, topic string, handler func(domain.ChangeEvent)) (domain.Subscription, error) {
	subject := natsSubjectPrefix + topic
	sub, err := n.nc.Subscribe(subject, func(msg *nats.Msg) {
		var event domain.ChangeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logger.Log.Error("change feed decode failed",
				zap.String("subject", subject),
				zap.Error(err),
			)
			return
		}
		metrics.FeedEvents.WithLabelValues("deliver", string(event.Entity)).Inc()
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	// 確保訂閱已送達 server
	if err := n.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush %s: %w", subject, err)
	}
	return &natsSubscription{sub: sub}, nil
}

type natsSubscription struct {
	sub  *nats.Subscription
	once sync.Once
}

func (s *natsSubscription) Unsubscribe() {
	s.once.Do(func() {
		if err := s.sub.Unsubscribe(); err != nil {
			logger.Log.Warn("nats unsubscribe failed", zap.Error(err))
		}
	})
}
