package app

import (
	"context"
	"sync"
	"time"

	"school_messaging_service/internal/messaging/domain"

	"github.com/stretchr/testify/mock"
)

// MockThreadRepository Mock ThreadRepository
type MockThreadRepository struct {
	mock.Mock
}

// FindOrCreateThread moke find or create thread
func (m *MockThreadRepository) FindOrCreateThread(ctx context.Context, thread *domain.Thread) (*domain.Thread, bool, error) {
	args := m.Called(ctx, thread)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Thread), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

// FindByID moke find thread by id
func (m *MockThreadRepository) FindByID(ctx context.Context, threadID string) (*domain.Thread, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Thread), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListByParticipant moke list threads of member
func (m *MockThreadRepository) ListByParticipant(ctx context.Context, organizationID, memberID string) ([]domain.Thread, error) {
	args := m.Called(ctx, organizationID, memberID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Thread), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListIDsByParticipant moke list thread ids of member
func (m *MockThreadRepository) ListIDsByParticipant(ctx context.Context, memberID string) ([]string, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// AppendMessage moke append msg
func (m *MockMessageRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// FindMessage moke find msg
func (m *MockMessageRepository) FindMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// SoftDeleteMessage moke soft delete msg
func (m *MockMessageRepository) SoftDeleteMessage(ctx context.Context, messageID string, at time.Time) (*domain.Message, error) {
	args := m.Called(ctx, messageID, at)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListMessages moke list msg page
func (m *MockMessageRepository) ListMessages(ctx context.Context, threadID string, cursor *domain.Cursor, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, threadID, cursor, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// SearchMessages moke search msg
func (m *MockMessageRepository) SearchMessages(ctx context.Context, threadID, query string, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, threadID, query, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockReceiptRepository Mock ReceiptRepository
type MockReceiptRepository struct {
	mock.Mock
}

// UpsertReceipt moke upsert receipt
func (m *MockReceiptRepository) UpsertReceipt(ctx context.Context, receipt domain.Receipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

// FindReceipt moke find receipt
func (m *MockReceiptRepository) FindReceipt(ctx context.Context, messageID, recipientID string) (*domain.Receipt, error) {
	args := m.Called(ctx, messageID, recipientID)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Receipt), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkThreadRead moke bulk mark read
func (m *MockReceiptRepository) MarkThreadRead(ctx context.Context, threadID, readerID string, at time.Time) error {
	args := m.Called(ctx, threadID, readerID, at)
	return args.Error(0)
}

// MarkThreadsDelivered moke bulk mark delivered
func (m *MockReceiptRepository) MarkThreadsDelivered(ctx context.Context, threadIDs []string, recipientID string, at time.Time) error {
	args := m.Called(ctx, threadIDs, recipientID, at)
	return args.Error(0)
}

// PendingReadMessageIDs moke pending read ids
func (m *MockReceiptRepository) PendingReadMessageIDs(ctx context.Context, threadID, readerID string) ([]string, error) {
	args := m.Called(ctx, threadID, readerID)
	if args.Get(0) != nil {
		return args.Get(0).([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// CountUnread moke count unread
func (m *MockReceiptRepository) CountUnread(ctx context.Context, threadIDs []string, viewerID string) (map[string]int, error) {
	args := m.Called(ctx, threadIDs, viewerID)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]int), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockOrganizationDirectory Mock OrganizationDirectory
type MockOrganizationDirectory struct {
	mock.Mock
}

// IsMember moke organization membership
func (m *MockOrganizationDirectory) IsMember(ctx context.Context, organizationID, memberID string) (bool, error) {
	args := m.Called(ctx, organizationID, memberID)
	return args.Bool(0), args.Error(1)
}

// MockChangeFeed Mock ChangeFeed
type MockChangeFeed struct {
	mock.Mock
}

// Publish moke publisher
func (m *MockChangeFeed) Publish(ctx context.Context, event domain.ChangeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// Subscribe moke subscriber
func (m *MockChangeFeed) Subscribe(ctx context.Context, topic string, handler func(domain.ChangeEvent)) (domain.Subscription, error) {
	args := m.Called(ctx, topic, handler)
	if args.Get(0) != nil {
		return args.Get(0).(domain.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// RecordingTelemetry collect emitted telemetry events
type RecordingTelemetry struct {
	mu     sync.Mutex
	events []domain.TelemetryEvent
}

// Emit TelemetrySink
func (r *RecordingTelemetry) Emit(event domain.TelemetryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events emitted so far
func (r *RecordingTelemetry) Events() []domain.TelemetryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TelemetryEvent(nil), r.events...)
}
