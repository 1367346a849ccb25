package app

import (
	"context"
	"errors"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/internal/messaging/repository"
	errprocess "school_messaging_service/pkg/err"
)

// ReceiptTracker per (message, recipient) delivery state machine:
// Sent -> Delivered -> Read. Transitions only move forward and repeating
// one is a no-op. Senders never get receipts for their own messages.
type ReceiptTracker struct {
	threadRepo  repository.ThreadRepository
	msgRepo     repository.MessageRepository
	receiptRepo repository.ReceiptRepository
	notifier    notifier
}

// NewReceiptTracker init receipt tracker
func NewReceiptTracker(
	t repository.ThreadRepository,
	m repository.MessageRepository,
	r repository.ReceiptRepository,
	feed domain.ChangeFeed,
) *ReceiptTracker {
	return &ReceiptTracker{
		threadRepo:  t,
		msgRepo:     m,
		receiptRepo: r,
		notifier:    notifier{feed: feed},
	}
}

// MarkDelivered Sent -> Delivered
func (rt *ReceiptTracker) MarkDelivered(ctx context.Context, messageID, recipientID string) error {
	return rt.advance(ctx, messageID, recipientID, domain.StateDelivered)
}

// MarkRead Sent|Delivered -> Read
func (rt *ReceiptTracker) MarkRead(ctx context.Context, messageID, recipientID string) error {
	return rt.advance(ctx, messageID, recipientID, domain.StateRead)
}

// MarkAllDelivered mark every message of the recipient's threads delivered.
// Empty threadIDs means all threads of the recipient.
func (rt *ReceiptTracker) MarkAllDelivered(ctx context.Context, recipientID string, threadIDs []string) error {
	if recipientID == "" {
		return errprocess.ErrInvalidParams
	}
	if len(threadIDs) == 0 {
		ids, err := rt.threadRepo.ListIDsByParticipant(ctx, recipientID)
		if err != nil {
			return err
		}
		threadIDs = ids
	}
	if len(threadIDs) == 0 {
		return nil
	}

	if err := rt.receiptRepo.MarkThreadsDelivered(ctx, threadIDs, recipientID, now()); err != nil {
		return err
	}
	for _, id := range threadIDs {
		rt.notifier.publish(ctx, domain.ThreadTopic(id), domain.EntityReceipt, domain.OpUpdate, id)
	}
	return nil
}

// State current receipt state of the pair
func (rt *ReceiptTracker) State(ctx context.Context, messageID, recipientID string) (domain.ReceiptState, error) {
	receipt, err := rt.receiptRepo.FindReceipt(ctx, messageID, recipientID)
	if err != nil {
		return "", err
	}
	return receipt.State(), nil
}

func (rt *ReceiptTracker) advance(ctx context.Context, messageID, recipientID string, target domain.ReceiptState) error {
	msg, err := rt.msgRepo.FindMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID == recipientID {
		return nil
	}

	current, err := rt.receiptRepo.FindReceipt(ctx, messageID, recipientID)
	if err != nil {
		return err
	}
	switch current.State() {
	case domain.StateRead:
		return nil
	case domain.StateDelivered:
		if target == domain.StateDelivered {
			return nil
		}
	}

	at := now()
	receipt := domain.Receipt{MessageID: messageID, RecipientID: recipientID}
	if target == domain.StateRead {
		receipt.ReadAt = &at
	} else {
		receipt.DeliveredAt = &at
	}

	err = rt.receiptRepo.UpsertReceipt(ctx, receipt)
	if errors.Is(err, errprocess.ErrStaleReceipt) {
		return nil
	}
	if err != nil {
		return err
	}

	rt.notifier.publish(ctx, domain.ThreadTopic(msg.ThreadID), domain.EntityReceipt, domain.OpUpdate, messageID)
	if target == domain.StateRead {
		if thread, err := rt.threadRepo.FindByID(ctx, msg.ThreadID); err == nil {
			rt.notifier.publish(ctx, domain.OrganizationTopic(thread.OrganizationID), domain.EntityReceipt, domain.OpUpdate, msg.ThreadID)
		}
	}
	return nil
}
