package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/pkg/logger"
	"school_messaging_service/pkg/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// LogTelemetrySink write telemetry events to the service log
type LogTelemetrySink struct {
	log *logger.LogInfo
}

// NewLogTelemetrySink create LogTelemetrySink
func NewLogTelemetrySink(log *logger.LogInfo) *LogTelemetrySink {
	return &LogTelemetrySink{log: log}
}

// Emit TelemetrySink
func (s *LogTelemetrySink) Emit(event domain.TelemetryEvent) {
	s.log.Warn("telemetry",
		zap.String("scope", event.Scope),
		zap.String("code", event.Code),
		zap.String("message", event.Message),
		zap.String("thread_id", event.ThreadID),
		zap.String("member_id", event.MemberID),
		zap.Time("timestamp", event.Timestamp),
	)
}

// KafkaWriter subset of *kafka.Writer used by the sink
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTelemetrySink queue telemetry events and ship them to kafka from
// one goroutine. A full queue drops the event.
type KafkaTelemetrySink struct {
	writer KafkaWriter
	queue  chan domain.TelemetryEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewKafkaTelemetrySink create and start KafkaTelemetrySink
func NewKafkaTelemetrySink(writer KafkaWriter, queueSize int) *KafkaTelemetrySink {
	if queueSize <= 0 {
		queueSize = 1024
	}
	s := &KafkaTelemetrySink{
		writer: writer,
		queue:  make(chan domain.TelemetryEvent, queueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Emit TelemetrySink
func (s *KafkaTelemetrySink) Emit(event domain.TelemetryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		metrics.TelemetryDropped.Inc()
		return
	}
	select {
	case s.queue <- event:
	default:
		metrics.TelemetryDropped.Inc()
	}
}

func (s *KafkaTelemetrySink) run() {
	defer close(s.done)
	for event := range s.queue {
		data, err := json.Marshal(event)
		if err != nil {
			logger.Log.Error("telemetry encode failed", zap.Error(err))
			continue
		}
		msg := kafka.Message{Key: []byte(telemetryKey(event)), Value: data, Time: event.Timestamp}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.writer.WriteMessages(ctx, msg); err != nil {
			logger.Log.Warn("telemetry write failed", zap.String("scope", event.Scope), zap.Error(err))
		}
		cancel()
	}
}

// Close flush queued events and close the writer
func (s *KafkaTelemetrySink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.writer.Close()
}

// telemetryKey partition by thread, events without a thread fall back to scope
func telemetryKey(event domain.TelemetryEvent) string {
	if event.ThreadID != "" {
		return event.ThreadID
	}
	return event.Scope
}
