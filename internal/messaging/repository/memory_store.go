package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"school_messaging_service/internal/messaging/domain"
	errprocess "school_messaging_service/pkg/err"
)

// MemoryStore in-process store implementing the thread, message and
// receipt repositories. Every operation runs under one lock, so bulk
// operations are atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]*domain.Thread
	messages map[string]*domain.Message
	// byThread message ids in insertion order
	byThread map[string][]string
	receipts map[string]*domain.Receipt

	// failures forced errors by operation name, used by tests
	failures map[string]error
}

var (
	_ ThreadRepository  = (*MemoryStore)(nil)
	_ MessageRepository = (*MemoryStore)(nil)
	_ ReceiptRepository = (*MemoryStore)(nil)
)

// NewMemoryStore create empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:  map[string]*domain.Thread{},
		messages: map[string]*domain.Message{},
		byThread: map[string][]string{},
		receipts: map[string]*domain.Receipt{},
		failures: map[string]error{},
	}
}

// FailOn make operation op return err until cleared with a nil err
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *MemoryStore) failure(op string) error {
	if err, ok := s.failures[op]; ok {
		return storageErr(err)
	}
	return nil
}

// FindOrCreateThread ThreadRepository
func (s *MemoryStore) FindOrCreateThread(_ context.Context, thread *domain.Thread) (*domain.Thread, bool, error) {
	if err := validateThread(thread); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("thread.find_or_create"); err != nil {
		return nil, false, err
	}

	for _, t := range s.threads {
		if t.OrganizationID == thread.OrganizationID && t.ParticipantKey == thread.ParticipantKey {
			return copyThread(t), false, nil
		}
	}
	s.threads[thread.ID] = copyThread(thread)
	return copyThread(thread), true, nil
}

// FindByID ThreadRepository
func (s *MemoryStore) FindByID(_ context.Context, threadID string) (*domain.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("thread.find"); err != nil {
		return nil, err
	}

	t, ok := s.threads[threadID]
	if !ok {
		return nil, errprocess.ErrThreadNotFound
	}
	return copyThread(t), nil
}

// ListByParticipant ThreadRepository
func (s *MemoryStore) ListByParticipant(_ context.Context, organizationID, memberID string) ([]domain.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("thread.list"); err != nil {
		return nil, err
	}

	threads := []domain.Thread{}
	for _, t := range s.threads {
		if t.OrganizationID == organizationID && t.HasParticipant(memberID) {
			threads = append(threads, *copyThread(t))
		}
	}
	sort.Slice(threads, func(i, j int) bool {
		if threads[i].LastActivityAt.Equal(threads[j].LastActivityAt) {
			return threads[i].ID > threads[j].ID
		}
		return threads[i].LastActivityAt.After(threads[j].LastActivityAt)
	})
	return threads, nil
}

// ListIDsByParticipant ThreadRepository
func (s *MemoryStore) ListIDsByParticipant(_ context.Context, memberID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("thread.list_ids"); err != nil {
		return nil, err
	}

	ids := []string{}
	for id, t := range s.threads {
		if t.HasParticipant(memberID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// AppendMessage MessageRepository
func (s *MemoryStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	if msg == nil || msg.ID == "" {
		return errprocess.ErrInvalidParams
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("message.append"); err != nil {
		return err
	}

	t, ok := s.threads[msg.ThreadID]
	if !ok || !t.HasParticipant(msg.SenderID) {
		return errprocess.ErrInvalidReference
	}

	m := *msg
	s.messages[m.ID] = &m
	s.byThread[m.ThreadID] = append(s.byThread[m.ThreadID], m.ID)
	if m.CreatedAt.After(t.LastActivityAt) {
		t.LastActivityAt = m.CreatedAt
	}
	return nil
}

// FindMessage MessageRepository
func (s *MemoryStore) FindMessage(_ context.Context, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("message.find"); err != nil {
		return nil, err
	}

	m, ok := s.messages[messageID]
	if !ok {
		return nil, errprocess.ErrMessageNotFound
	}
	out := *m
	return &out, nil
}

// SoftDeleteMessage MessageRepository
func (s *MemoryStore) SoftDeleteMessage(_ context.Context, messageID string, at time.Time) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("message.delete"); err != nil {
		return nil, err
	}

	m, ok := s.messages[messageID]
	if !ok {
		return nil, errprocess.ErrMessageNotFound
	}
	if m.DeletedAt == nil {
		t := at
		m.DeletedAt = &t
	}
	out := *m
	return &out, nil
}

// ListMessages MessageRepository
func (s *MemoryStore) ListMessages(_ context.Context, threadID string, cursor *domain.Cursor, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("message.list"); err != nil {
		return nil, err
	}

	return s.collect(threadID, limit, func(m *domain.Message) bool {
		return cursor.Precedes(m)
	}), nil
}

// SearchMessages MessageRepository
func (s *MemoryStore) SearchMessages(_ context.Context, threadID, query string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("message.search"); err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	return s.collect(threadID, limit, func(m *domain.Message) bool {
		return !m.IsDeleted() && strings.Contains(strings.ToLower(m.Content), needle)
	}), nil
}

// collect messages of thread matching keep, newest first, capped by limit
func (s *MemoryStore) collect(threadID string, limit int, keep func(*domain.Message) bool) []domain.Message {
	out := []domain.Message{}
	for _, id := range s.byThread[threadID] {
		if m := s.messages[id]; keep(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[j].Before(&out[i])
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpsertReceipt ReceiptRepository
func (s *MemoryStore) UpsertReceipt(_ context.Context, receipt domain.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("receipt.upsert"); err != nil {
		return err
	}

	m, ok := s.messages[receipt.MessageID]
	if !ok || m.SenderID == receipt.RecipientID {
		return errprocess.ErrInvalidReference
	}
	if t, ok := s.threads[m.ThreadID]; !ok || !t.HasParticipant(receipt.RecipientID) {
		return errprocess.ErrInvalidReference
	}
	if receipt.DeliveredAt == nil && receipt.ReadAt == nil {
		return nil
	}

	key := domain.ReceiptKey(receipt.MessageID, receipt.RecipientID)
	stored, ok := s.receipts[key]
	if !ok {
		stored = &domain.Receipt{
			ID:          key,
			MessageID:   receipt.MessageID,
			RecipientID: receipt.RecipientID,
			ThreadID:    m.ThreadID,
		}
	}
	merged := *stored
	changed, stale := merged.Merge(receipt)
	if stale {
		return errprocess.ErrStaleReceipt
	}
	if changed {
		s.receipts[key] = &merged
	}
	return nil
}

// FindReceipt ReceiptRepository
func (s *MemoryStore) FindReceipt(_ context.Context, messageID, recipientID string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("receipt.find"); err != nil {
		return nil, err
	}

	r, ok := s.receipts[domain.ReceiptKey(messageID, recipientID)]
	if !ok {
		return nil, nil
	}
	out := *r
	return &out, nil
}

// MarkThreadRead ReceiptRepository
func (s *MemoryStore) MarkThreadRead(_ context.Context, threadID, readerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("receipt.mark_thread_read"); err != nil {
		return err
	}

	t, ok := s.threads[threadID]
	if !ok || !t.HasParticipant(readerID) {
		return errprocess.ErrInvalidReference
	}
	s.markLocked(threadID, readerID, at, true)
	return nil
}

// MarkThreadsDelivered ReceiptRepository
func (s *MemoryStore) MarkThreadsDelivered(_ context.Context, threadIDs []string, recipientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("receipt.mark_delivered"); err != nil {
		return err
	}

	for _, id := range threadIDs {
		if t, ok := s.threads[id]; ok && t.HasParticipant(recipientID) {
			s.markLocked(id, recipientID, at, false)
		}
	}
	return nil
}

// markLocked fill unset receipt timestamps for every eligible message of the thread
func (s *MemoryStore) markLocked(threadID, recipientID string, at time.Time, read bool) {
	for _, id := range s.byThread[threadID] {
		m := s.messages[id]
		if m.IsDeleted() || m.SenderID == recipientID {
			continue
		}
		key := domain.ReceiptKey(id, recipientID)
		r, ok := s.receipts[key]
		if !ok {
			r = &domain.Receipt{ID: key, MessageID: id, RecipientID: recipientID, ThreadID: threadID}
			s.receipts[key] = r
		}
		if r.DeliveredAt == nil {
			t := at
			r.DeliveredAt = &t
		}
		if read && r.ReadAt == nil {
			t := at
			r.ReadAt = &t
		}
	}
}

// PendingReadMessageIDs ReceiptRepository
func (s *MemoryStore) PendingReadMessageIDs(_ context.Context, threadID, readerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("receipt.pending"); err != nil {
		return nil, err
	}

	ids := []string{}
	for _, id := range s.byThread[threadID] {
		if s.unreadLocked(s.messages[id], readerID) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CountUnread ReceiptRepository
func (s *MemoryStore) CountUnread(_ context.Context, threadIDs []string, viewerID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("receipt.count_unread"); err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, threadID := range threadIDs {
		for _, id := range s.byThread[threadID] {
			if s.unreadLocked(s.messages[id], viewerID) {
				counts[threadID]++
			}
		}
	}
	return counts, nil
}

func (s *MemoryStore) unreadLocked(m *domain.Message, viewerID string) bool {
	if m.IsDeleted() || m.SenderID == viewerID {
		return false
	}
	r, ok := s.receipts[domain.ReceiptKey(m.ID, viewerID)]
	return !ok || r.ReadAt == nil
}

func copyThread(t *domain.Thread) *domain.Thread {
	out := *t
	out.Participants = append([]domain.Participant(nil), t.Participants...)
	return &out
}
