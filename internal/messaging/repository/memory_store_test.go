package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"school_messaging_service/internal/messaging/domain"
	errprocess "school_messaging_service/pkg/err"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newThread(org string, members ...string) *domain.Thread {
	participants := make([]domain.Participant, 0, len(members))
	for _, m := range members {
		participants = append(participants, domain.Participant{MemberID: m, Role: domain.RoleParent})
	}
	return &domain.Thread{
		ID:             uuid.NewString(),
		OrganizationID: org,
		Participants:   participants,
		ParticipantKey: domain.ParticipantKeyOf(members),
		CreatedAt:      base,
		LastActivityAt: base,
	}
}

func newMessage(threadID, sender, content string, at time.Time) *domain.Message {
	id, _ := uuid.NewV7()
	return &domain.Message{
		ID:          id.String(),
		ThreadID:    threadID,
		SenderID:    sender,
		Content:     content,
		ContentType: domain.ContentText,
		CreatedAt:   at,
	}
}

func seedThread(t *testing.T, s *MemoryStore, members ...string) *domain.Thread {
	t.Helper()
	thread, created, err := s.FindOrCreateThread(context.Background(), newThread("org-1", members...))
	require.NoError(t, err)
	require.True(t, created)
	return thread
}

func TestMemoryStore_FindOrCreateThread(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, created, err := s.FindOrCreateThread(ctx, newThread("org-1", "teacher", "parent"))
	require.NoError(t, err)
	assert.True(t, created)

	// 同一組成員 (順序不同) 回傳既有 thread
	again, created, err := s.FindOrCreateThread(ctx, newThread("org-1", "parent", "teacher"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	// 不同 organization 建立新 thread
	other, created, err := s.FindOrCreateThread(ctx, newThread("org-2", "teacher", "parent"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, other.ID)

	_, _, err = s.FindOrCreateThread(ctx, &domain.Thread{ID: "x", OrganizationID: "org-1"})
	assert.True(t, errprocess.Is(err, errprocess.ErrInvalidParams))
}

func TestMemoryStore_AppendMessage_InvalidReference(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	thread := seedThread(t, s, "teacher", "parent")

	err := s.AppendMessage(ctx, newMessage("missing", "teacher", "hi", base))
	assert.True(t, errprocess.Is(err, errprocess.ErrInvalidReference))

	err = s.AppendMessage(ctx, newMessage(thread.ID, "stranger", "hi", base))
	assert.True(t, errprocess.Is(err, errprocess.ErrInvalidReference))

	msgs, err := s.ListMessages(ctx, thread.ID, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryStore_AppendMessage_BumpsLastActivity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	older := seedThread(t, s, "teacher", "parent-a")
	newer := seedThread(t, s, "teacher", "parent-b")

	require.NoError(t, s.AppendMessage(ctx, newMessage(newer.ID, "teacher", "one", base.Add(time.Minute))))
	require.NoError(t, s.AppendMessage(ctx, newMessage(older.ID, "teacher", "two", base.Add(2*time.Minute))))

	threads, err := s.ListByParticipant(ctx, "org-1", "teacher")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, older.ID, threads[0].ID)
	assert.Equal(t, base.Add(2*time.Minute), threads[0].LastActivityAt)

	threads, err = s.ListByParticipant(ctx, "org-1", "parent-b")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, newer.ID, threads[0].ID)
}

func TestMemoryStore_ListMessages_Pagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	thread := seedThread(t, s, "teacher", "parent")

	// 兩則訊息同一時間，確認 id 決定順序
	want := map[string]bool{}
	for i := 0; i < 25; i++ {
		at := base.Add(time.Duration(i/2) * time.Second)
		m := newMessage(thread.ID, "teacher", fmt.Sprintf("m%d", i), at)
		require.NoError(t, s.AppendMessage(ctx, m))
		want[m.ID] = true
	}

	var cursor *domain.Cursor
	var all []domain.Message
	for {
		page, err := s.ListMessages(ctx, thread.ID, cursor, 7)
		require.NoError(t, err)
		all = append(all, page...)
		if len(page) < 7 {
			break
		}
		cursor = domain.CursorAfter(page[len(page)-1])
	}

	require.Len(t, all, 25)
	seen := map[string]bool{}
	for i, m := range all {
		assert.False(t, seen[m.ID], "duplicate %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			assert.True(t, m.Before(&all[i-1]), "not descending at %d", i)
		}
	}
	assert.Equal(t, want, seen)
}

func TestMemoryStore_SearchMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	thread := seedThread(t, s, "teacher", "parent")

	keep := newMessage(thread.ID, "teacher", "Field Trip on Friday", base)
	gone := newMessage(thread.ID, "parent", "field trip permission", base.Add(time.Second))
	other := newMessage(thread.ID, "parent", "lunch menu (a+b)", base.Add(2*time.Second))
	for _, m := range []*domain.Message{keep, gone, other} {
		require.NoError(t, s.AppendMessage(ctx, m))
	}
	_, err := s.SoftDeleteMessage(ctx, gone.ID, base.Add(time.Minute))
	require.NoError(t, err)

	res, err := s.SearchMessages(ctx, thread.ID, "FIELD trip", 50)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, keep.ID, res[0].ID)

	// 特殊字元按字面比對
	res, err = s.SearchMessages(ctx, thread.ID, "(a+b)", 50)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, other.ID, res[0].ID)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, newMessage(thread.ID, "teacher", "menu", base.Add(time.Hour+time.Duration(i)))))
	}
	res, err = s.SearchMessages(ctx, thread.ID, "menu", 3)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestMemoryStore_SoftDeleteMessage_KeepsFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	thread := seedThread(t, s, "teacher", "parent")
	m := newMessage(thread.ID, "teacher", "oops", base)
	require.NoError(t, s.AppendMessage(ctx, m))

	first, err := s.SoftDeleteMessage(ctx, m.ID, base.Add(time.Minute))
	require.NoError(t, err)
	second, err := s.SoftDeleteMessage(ctx, m.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, *first.DeletedAt, *second.DeletedAt)

	_, err = s.SoftDeleteMessage(ctx, "missing", base)
	assert.True(t, errprocess.Is(err, errprocess.ErrMessageNotFound))
}

func TestMemoryStore_UpsertReceipt_Monotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	thread := seedThread(t, s, "teacher", "parent")
	m := newMessage(thread.ID, "teacher", "hello", base)
	require.NoError(t, s.AppendMessage(ctx, m))

	t1, t2 := base.Add(time.Minute), base.Add(2*time.Minute)

	require.NoError(t, s.UpsertReceipt(ctx, domain.Receipt{MessageID: m.ID, RecipientID: "parent", DeliveredAt: &t1}))
	r, err := s.FindReceipt(ctx, m.ID, "parent")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDelivered, r.State())

	require.NoError(t, s.UpsertReceipt(ctx, domain.Receipt{MessageID: m.ID, RecipientID: "parent", ReadAt: &t2}))
	r, err = s.FindReceipt(ctx, m.ID, "parent")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRead, r.State())
	assert.Equal(t, t1, *r.DeliveredAt)

	// 較早的已讀時間被拒絕，狀態不變
	err = s.UpsertReceipt(ctx, domain.Receipt{MessageID: m.ID, RecipientID: "parent", ReadAt: &t1})
	assert.True(t, errprocess.Is(err, errprocess.ErrStaleReceipt))
	r, err = s.FindReceipt(ctx, m.ID, "parent")
	require.NoError(t, err)
	assert.Equal(t, t2, *r.ReadAt)
}

func TestMemoryStore_UpsertReceipt_InvalidReference(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	thread := seedThread(t, s, "teacher", "parent")
	m := newMessage(thread.ID, "teacher", "hello", base)
	require.NoError(t, s.AppendMessage(ctx, m))

	cases := map[string]domain.Receipt{
		"unknown message": {MessageID: "missing", RecipientID: "parent", ReadAt: &base},
		"sender":          {MessageID: m.ID, RecipientID: "teacher", ReadAt: &base},
		"outsider":        {MessageID: m.ID, RecipientID: "stranger", ReadAt: &base},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			err := s.UpsertReceipt(ctx, r)
			assert.True(t, errprocess.Is(err, errprocess.ErrInvalidReference))
		})
	}
}

func TestMemoryStore_MarkThreadRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	thread := seedThread(t, s, "teacher", "parent")

	var fromTeacher []*domain.Message
	for i := 0; i < 3; i++ {
		m := newMessage(thread.ID, "teacher", "hi", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.AppendMessage(ctx, m))
		fromTeacher = append(fromTeacher, m)
	}
	own := newMessage(thread.ID, "parent", "reply", base.Add(time.Minute))
	require.NoError(t, s.AppendMessage(ctx, own))

	earlier := base.Add(time.Hour)
	require.NoError(t, s.UpsertReceipt(ctx, domain.Receipt{MessageID: fromTeacher[0].ID, RecipientID: "parent", ReadAt: &earlier}))

	counts, err := s.CountUnread(ctx, []string{thread.ID}, "parent")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[thread.ID])

	at := base.Add(2 * time.Hour)
	require.NoError(t, s.MarkThreadRead(ctx, thread.ID, "parent", at))
	require.NoError(t, s.MarkThreadRead(ctx, thread.ID, "parent", at.Add(time.Hour)))

	counts, err = s.CountUnread(ctx, []string{thread.ID}, "parent")
	require.NoError(t, err)
	assert.Zero(t, counts[thread.ID])

	// 已存在的 read_at 不被覆寫
	r, err := s.FindReceipt(ctx, fromTeacher[0].ID, "parent")
	require.NoError(t, err)
	assert.Equal(t, earlier, *r.ReadAt)
	r, err = s.FindReceipt(ctx, fromTeacher[1].ID, "parent")
	require.NoError(t, err)
	assert.Equal(t, at, *r.ReadAt)
	assert.Equal(t, at, *r.DeliveredAt)

	// 自己發的訊息沒有 receipt
	r, err = s.FindReceipt(ctx, own.ID, "parent")
	require.NoError(t, err)
	assert.Nil(t, r)

	err = s.MarkThreadRead(ctx, thread.ID, "stranger", at)
	assert.True(t, errprocess.Is(err, errprocess.ErrInvalidReference))
}

func TestMemoryStore_MarkThreadsDelivered(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	mine := seedThread(t, s, "teacher", "parent")
	notMine := seedThread(t, s, "teacher", "other-parent")

	m1 := newMessage(mine.ID, "teacher", "a", base)
	m2 := newMessage(notMine.ID, "teacher", "b", base)
	require.NoError(t, s.AppendMessage(ctx, m1))
	require.NoError(t, s.AppendMessage(ctx, m2))

	require.NoError(t, s.MarkThreadsDelivered(ctx, []string{mine.ID, notMine.ID}, "parent", base.Add(time.Minute)))

	r, err := s.FindReceipt(ctx, m1.ID, "parent")
	require.NoError(t, err)
	assert.Equal(t, domain.StateDelivered, r.State())

	r, err = s.FindReceipt(ctx, m2.ID, "parent")
	require.NoError(t, err)
	assert.Nil(t, r)

	// 已送達不影響未讀數
	counts, err := s.CountUnread(ctx, []string{mine.ID}, "parent")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[mine.ID])
}

func TestMemoryStore_UnreadExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	thread := seedThread(t, s, "teacher", "parent")

	m1 := newMessage(thread.ID, "teacher", "a", base)
	m2 := newMessage(thread.ID, "teacher", "b", base.Add(time.Second))
	require.NoError(t, s.AppendMessage(ctx, m1))
	require.NoError(t, s.AppendMessage(ctx, m2))
	_, err := s.SoftDeleteMessage(ctx, m2.ID, base.Add(time.Minute))
	require.NoError(t, err)

	counts, err := s.CountUnread(ctx, []string{thread.ID}, "parent")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[thread.ID])

	pending, err := s.PendingReadMessageIDs(ctx, thread.ID, "parent")
	require.NoError(t, err)
	assert.Equal(t, []string{m1.ID}, pending)
}

func TestMemoryStore_FailOn(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.FailOn("message.search", errors.New("boom"))

	_, err := s.SearchMessages(ctx, "thread", "x", 10)
	assert.True(t, errprocess.Is(err, errprocess.ErrTransientStorage))

	s.FailOn("message.search", nil)
	_, err = s.SearchMessages(ctx, "thread", "x", 10)
	assert.NoError(t, err)
}
