package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/pkg/logger"
	"school_messaging_service/pkg/metrics"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisChannelPrefix = "messaging:feed:"

// RedisChangeFeed change feed over redis pub/sub
type RedisChangeFeed struct {
	client *redis.Client
}

var _ domain.ChangeFeed = (*RedisChangeFeed)(nil)

// NewRedisChangeFeed create RedisChangeFeed
func NewRedisChangeFeed(client *redis.Client) *RedisChangeFeed {
	return &RedisChangeFeed{client: client}
}

// Publish 將 event 序列化後，發布到 topic 對應的 channel
func (r *RedisChangeFeed) Publish(ctx context.Context, event domain.ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, redisChannelPrefix+event.Topic, data).Err(); err != nil {
		return err
	}
	metrics.FeedEvents.WithLabelValues("publish", string(event.Entity)).Inc()
	return nil
}

// Subscribe 訂閱 topic，收到事件後依序呼叫 handler
func (r *RedisChangeFeed) Subscribe(ctx context.Context, topic string, handler func(domain.ChangeEvent)) (domain.Subscription, error) {
	channel := redisChannelPrefix + topic
	sub := r.client.Subscribe(ctx, channel)

	// 等待訂閱確認，避免漏掉之後立即發布的事件
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	s := &redisSubscription{sub: sub, cancel: cancel}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var event domain.ChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					logger.Log.Error("change feed decode failed",
						zap.String("channel", channel),
						zap.Error(err),
					)
					continue
				}
				metrics.FeedEvents.WithLabelValues("deliver", string(event.Entity)).Inc()
				handler(event)
			case <-subCtx.Done():
				logger.Log.Debug(fmt.Sprintf("%s , sub close", channel))
				return
			}
		}
	}()
	return s, nil
}

type redisSubscription struct {
	sub    *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
}

func (s *redisSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		if err := s.sub.Close(); err != nil {
			logger.Log.Warn("redis unsubscribe failed", zap.Error(err))
		}
	})
}
