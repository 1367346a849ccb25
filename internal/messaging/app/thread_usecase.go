package app

import (
	"context"
	"errors"
	"time"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/internal/messaging/repository"
	errprocess "school_messaging_service/pkg/err"
	"school_messaging_service/pkg/logger"
	"school_messaging_service/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ThreadUseCase thread listing, creation, bulk read and unread counters
type ThreadUseCase struct {
	threadRepo  repository.ThreadRepository
	receiptRepo repository.ReceiptRepository
	directory   repository.OrganizationDirectory
	telemetry   domain.TelemetrySink
	notifier    notifier
}

// NewThreadUseCase init thread use case
func NewThreadUseCase(
	t repository.ThreadRepository,
	r repository.ReceiptRepository,
	d repository.OrganizationDirectory,
	feed domain.ChangeFeed,
	telemetry domain.TelemetrySink,
) *ThreadUseCase {
	return &ThreadUseCase{
		threadRepo:  t,
		receiptRepo: r,
		directory:   d,
		telemetry:   telemetry,
		notifier:    notifier{feed: feed},
	}
}

// ListThreads viewer's threads in the organization with unread counts,
// last activity first. Storage failures return an empty list with a notice.
func (uc *ThreadUseCase) ListThreads(ctx context.Context, organizationID, viewerID string) (*domain.ThreadListResult, error) {
	if organizationID == "" || viewerID == "" {
		return nil, errprocess.ErrInvalidParams
	}
	if err := uc.checkMember(ctx, organizationID, viewerID); err != nil {
		return nil, err
	}

	threads, err := uc.threadRepo.ListByParticipant(ctx, organizationID, viewerID)
	if err != nil {
		logger.Log.Warn("list threads degraded", zap.String("organization_id", organizationID), zap.Error(err))
		metrics.DegradedReads.WithLabelValues("list_threads").Inc()
		return &domain.ThreadListResult{
			Threads: []domain.ThreadSummary{},
			Notice:  domain.NewNotice(domain.NoticeListFailed, "threads are temporarily unavailable"),
		}, nil
	}

	result := &domain.ThreadListResult{Threads: make([]domain.ThreadSummary, 0, len(threads))}
	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.ID)
	}

	counts, err := uc.receiptRepo.CountUnread(ctx, ids, viewerID)
	if err != nil {
		logger.Log.Warn("unread counts degraded", zap.String("organization_id", organizationID), zap.Error(err))
		metrics.DegradedReads.WithLabelValues("thread_unread").Inc()
		result.Notice = domain.NewNotice(domain.NoticeUnreadFailed, "unread counts are temporarily unavailable")
		counts = map[string]int{}
	}

	for _, t := range threads {
		result.Threads = append(result.Threads, domain.ThreadSummary{Thread: t, UnreadCount: counts[t.ID]})
	}
	return result, nil
}

// GetThread thread summary for a participant
func (uc *ThreadUseCase) GetThread(ctx context.Context, threadID, viewerID string) (*domain.ThreadSummary, error) {
	thread, err := uc.threadRepo.FindByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !thread.HasParticipant(viewerID) {
		return nil, errprocess.ErrUnauthorized
	}

	summary := &domain.ThreadSummary{Thread: *thread}
	counts, err := uc.receiptRepo.CountUnread(ctx, []string{threadID}, viewerID)
	if err != nil {
		logger.Log.Warn("thread unread count degraded", zap.String("thread_id", threadID), zap.Error(err))
		metrics.DegradedReads.WithLabelValues("thread_unread").Inc()
		return summary, nil
	}
	summary.UnreadCount = counts[threadID]
	return summary, nil
}

// StartThread find or create the thread of a participant set. The creator
// must belong to the organization and to the participant set, and every
// participant must belong to the organization.
func (uc *ThreadUseCase) StartThread(ctx context.Context, organizationID, creatorID string, participants []domain.Participant) (*domain.Thread, bool, error) {
	if organizationID == "" || creatorID == "" {
		return nil, false, errprocess.ErrInvalidParams
	}

	unique := make([]domain.Participant, 0, len(participants))
	seen := map[string]bool{}
	for _, p := range participants {
		if p.MemberID == "" || seen[p.MemberID] {
			continue
		}
		seen[p.MemberID] = true
		unique = append(unique, p)
	}
	if len(unique) < 2 || !seen[creatorID] {
		return nil, false, errprocess.ErrInvalidParams
	}

	if err := uc.checkMember(ctx, organizationID, creatorID); err != nil {
		return nil, false, err
	}
	for _, p := range unique {
		ok, err := uc.directory.IsMember(ctx, organizationID, p.MemberID)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, errprocess.ErrInvalidReference
		}
	}

	at := now()
	thread := &domain.Thread{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Participants:   unique,
		CreatedAt:      at,
		LastActivityAt: at,
	}
	thread.ParticipantKey = domain.ParticipantKeyOf(thread.MemberIDs())

	saved, created, err := uc.threadRepo.FindOrCreateThread(ctx, thread)
	if err != nil {
		return nil, false, err
	}
	if created {
		uc.notifier.publish(ctx, domain.OrganizationTopic(organizationID), domain.EntityThread, domain.OpInsert, saved.ID)
	}
	return saved, created, nil
}

// MarkThreadRead mark every unread message from others in the thread as
// read. The bulk store operation runs first; when it fails the failure is
// reported to telemetry and per-message upserts are tried once.
func (uc *ThreadUseCase) MarkThreadRead(ctx context.Context, threadID, readerID string) error {
	thread, err := uc.threadRepo.FindByID(ctx, threadID)
	if err != nil {
		return err
	}
	if !thread.HasParticipant(readerID) {
		return errprocess.ErrNotAParticipant
	}

	at := now()
	if err := uc.receiptRepo.MarkThreadRead(ctx, threadID, readerID, at); err != nil {
		if !errprocess.Is(err, errprocess.ErrTransientStorage) {
			return err
		}
		emit(uc.telemetry, domain.TelemetryEvent{
			Scope:    "thread.mark_read",
			Code:     "bulk_mark_read_failed",
			Message:  err.Error(),
			ThreadID: threadID,
			MemberID: readerID,
		})
		if err := uc.markReadEach(ctx, threadID, readerID, at); err != nil {
			metrics.MarkReadFallbacks.WithLabelValues("failed").Inc()
			return err
		}
		metrics.MarkReadFallbacks.WithLabelValues("recovered").Inc()
	}

	uc.notifier.publish(ctx, domain.ThreadTopic(threadID), domain.EntityReceipt, domain.OpUpdate, threadID)
	uc.notifier.publish(ctx, domain.OrganizationTopic(thread.OrganizationID), domain.EntityReceipt, domain.OpUpdate, threadID)
	return nil
}

func (uc *ThreadUseCase) markReadEach(ctx context.Context, threadID, readerID string, at time.Time) error {
	ids, err := uc.receiptRepo.PendingReadMessageIDs(ctx, threadID, readerID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		read := at
		err := uc.receiptRepo.UpsertReceipt(ctx, domain.Receipt{
			MessageID:   id,
			RecipientID: readerID,
			ReadAt:      &read,
		})
		if err != nil && !errors.Is(err, errprocess.ErrStaleReceipt) {
			return err
		}
	}
	return nil
}

// UnreadCount total unread messages across the reader's threads.
// Storage failures return zero with a notice.
func (uc *ThreadUseCase) UnreadCount(ctx context.Context, readerID string) (*domain.UnreadResult, error) {
	if readerID == "" {
		return nil, errprocess.ErrInvalidParams
	}

	degraded := func(err error) (*domain.UnreadResult, error) {
		logger.Log.Warn("unread count degraded", zap.String("member_id", readerID), zap.Error(err))
		metrics.DegradedReads.WithLabelValues("unread_count").Inc()
		return &domain.UnreadResult{
			ByThread: map[string]int{},
			Notice:   domain.NewNotice(domain.NoticeUnreadFailed, "unread count is temporarily unavailable"),
		}, nil
	}

	ids, err := uc.threadRepo.ListIDsByParticipant(ctx, readerID)
	if err != nil {
		return degraded(err)
	}
	counts, err := uc.receiptRepo.CountUnread(ctx, ids, readerID)
	if err != nil {
		return degraded(err)
	}

	result := &domain.UnreadResult{ByThread: counts}
	for _, n := range counts {
		result.Total += n
	}
	return result, nil
}

func (uc *ThreadUseCase) checkMember(ctx context.Context, organizationID, memberID string) error {
	ok, err := uc.directory.IsMember(ctx, organizationID, memberID)
	if err != nil {
		return err
	}
	if !ok {
		return errprocess.ErrUnauthorized
	}
	return nil
}
