package app

import (
	"context"
	"strings"
	"unicode/utf8"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/internal/messaging/repository"
	"school_messaging_service/pkg/config"
	errprocess "school_messaging_service/pkg/err"
	"school_messaging_service/pkg/logger"
	"school_messaging_service/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageUseCase send, list, search and retract messages
type MessageUseCase struct {
	threadRepo repository.ThreadRepository
	msgRepo    repository.MessageRepository
	telemetry  domain.TelemetrySink
	notifier   notifier
	limits     config.LimitConfig
}

// NewMessageUseCase init message use case
func NewMessageUseCase(
	t repository.ThreadRepository,
	m repository.MessageRepository,
	feed domain.ChangeFeed,
	telemetry domain.TelemetrySink,
	limits config.LimitConfig,
) *MessageUseCase {
	return &MessageUseCase{
		threadRepo: t,
		msgRepo:    m,
		telemetry:  telemetry,
		notifier:   notifier{feed: feed},
		limits:     limits.WithDefaults(),
	}
}

// SendMessage append a message to the thread and return it as stored.
// Nothing is written when validation or the participant check fails.
func (uc *MessageUseCase) SendMessage(ctx context.Context, threadID, senderID, content string, contentType domain.ContentType) (*domain.Message, error) {
	if contentType == "" {
		contentType = domain.ContentText
	}
	if !contentType.Valid() || strings.TrimSpace(content) == "" {
		return nil, errprocess.ErrInvalidParams
	}
	if utf8.RuneCountInString(content) > uc.limits.MaxContentLength {
		return nil, errprocess.ErrInvalidParams
	}

	thread, err := uc.threadRepo.FindByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(senderID) {
		return nil, errprocess.ErrNotAParticipant
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errprocess.ErrServerError.Wrap(err)
	}
	msg := &domain.Message{
		ID:          id.String(),
		ThreadID:    threadID,
		SenderID:    senderID,
		Content:     content,
		ContentType: contentType,
		CreatedAt:   now(),
	}
	if err := uc.msgRepo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	uc.notifier.publish(ctx, domain.ThreadTopic(threadID), domain.EntityMessage, domain.OpInsert, msg.ID)
	uc.notifier.publish(ctx, domain.OrganizationTopic(thread.OrganizationID), domain.EntityThread, domain.OpUpdate, threadID)
	return msg, nil
}

// SearchInThread case-insensitive substring search over non-deleted
// messages, newest first. Fails open: storage errors and timeouts return an
// empty result with a notice. A blank query returns an empty result before
// any lookup, so membership is not checked for it.
func (uc *MessageUseCase) SearchInThread(ctx context.Context, threadID, viewerID, query string) (*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &domain.SearchResult{Messages: []domain.Message{}}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, uc.limits.SearchTimeout)
	defer cancel()

	failed := func(err error) (*domain.SearchResult, error) {
		logger.Log.Warn("search degraded", zap.String("thread_id", threadID), zap.Error(err))
		metrics.DegradedReads.WithLabelValues("search").Inc()
		emit(uc.telemetry, domain.TelemetryEvent{
			Scope:    "message.search",
			Code:     string(domain.NoticeSearchFailed),
			Message:  err.Error(),
			ThreadID: threadID,
			MemberID: viewerID,
		})
		return &domain.SearchResult{
			Messages: []domain.Message{},
			Notice:   domain.NewNotice(domain.NoticeSearchFailed, "search is temporarily unavailable"),
		}, nil
	}

	if err := uc.checkParticipant(ctx, threadID, viewerID); err != nil {
		if errprocess.Is(err, errprocess.ErrTransientStorage) {
			return failed(err)
		}
		return nil, err
	}

	messages, err := uc.msgRepo.SearchMessages(ctx, threadID, query, uc.limits.SearchMaxResults)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return failed(err)
	}
	return &domain.SearchResult{Messages: messages}, nil
}

// ListMessages one time-descending page of the thread. Retracted messages
// are returned as tombstones. Storage failures return an empty page with a
// notice.
func (uc *MessageUseCase) ListMessages(ctx context.Context, threadID, viewerID, cursor string, pageSize int) (*domain.MessagePage, error) {
	after, err := domain.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = uc.limits.DefaultPageSize
	}
	if pageSize > uc.limits.MaxPageSize {
		pageSize = uc.limits.MaxPageSize
	}

	degraded := func(err error) (*domain.MessagePage, error) {
		logger.Log.Warn("list messages degraded", zap.String("thread_id", threadID), zap.Error(err))
		metrics.DegradedReads.WithLabelValues("list_messages").Inc()
		return &domain.MessagePage{
			Messages: []domain.Message{},
			Notice:   domain.NewNotice(domain.NoticeListFailed, "messages are temporarily unavailable"),
		}, nil
	}

	if err := uc.checkParticipant(ctx, threadID, viewerID); err != nil {
		if errprocess.Is(err, errprocess.ErrTransientStorage) {
			return degraded(err)
		}
		return nil, err
	}

	messages, err := uc.msgRepo.ListMessages(ctx, threadID, after, pageSize)
	if err != nil {
		return degraded(err)
	}

	page := &domain.MessagePage{Messages: make([]domain.Message, 0, len(messages))}
	for _, m := range messages {
		page.Messages = append(page.Messages, m.Tombstone())
	}
	if len(messages) == pageSize {
		page.NextCursor = domain.CursorAfter(messages[len(messages)-1]).Encode()
	}
	return page, nil
}

// DeleteMessage retract a message. Only the sender may retract; retracting
// twice keeps the first deletion time and publishes nothing.
func (uc *MessageUseCase) DeleteMessage(ctx context.Context, messageID, requesterID string) (*domain.Message, error) {
	msg, err := uc.msgRepo.FindMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, errprocess.ErrUnauthorized
	}
	if msg.IsDeleted() {
		tomb := msg.Tombstone()
		return &tomb, nil
	}

	thread, err := uc.threadRepo.FindByID(ctx, msg.ThreadID)
	if err != nil {
		return nil, err
	}

	deleted, err := uc.msgRepo.SoftDeleteMessage(ctx, messageID, now())
	if err != nil {
		return nil, err
	}

	uc.notifier.publish(ctx, domain.ThreadTopic(msg.ThreadID), domain.EntityMessage, domain.OpDelete, messageID)
	uc.notifier.publish(ctx, domain.OrganizationTopic(thread.OrganizationID), domain.EntityThread, domain.OpUpdate, msg.ThreadID)

	tomb := deleted.Tombstone()
	return &tomb, nil
}

func (uc *MessageUseCase) checkParticipant(ctx context.Context, threadID, viewerID string) error {
	thread, err := uc.threadRepo.FindByID(ctx, threadID)
	if err != nil {
		return err
	}
	if !thread.HasParticipant(viewerID) {
		return errprocess.ErrUnauthorized
	}
	return nil
}
