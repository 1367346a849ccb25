package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/pkg/config"
	errprocess "school_messaging_service/pkg/err"
	"school_messaging_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMessageUseCase_SendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thread := f.startThread(t, "teacher-1", "parent-1")

	events := make(chan domain.ChangeEvent, 4)
	sub, err := f.feed.Subscribe(ctx, domain.ThreadTopic(thread.ID), func(e domain.ChangeEvent) { events <- e })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msg, err := f.messages.SendMessage(ctx, thread.ID, "teacher-1", "明天校外教學請準時", "")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, domain.ContentText, msg.ContentType)
	assert.Equal(t, thread.ID, msg.ThreadID)

	select {
	case e := <-events:
		assert.Equal(t, domain.EntityMessage, e.Entity)
		assert.Equal(t, domain.OpInsert, e.Operation)
		assert.Equal(t, msg.ID, e.AffectedID)
	case <-time.After(time.Second):
		t.Fatal("message insert event not delivered")
	}

	stored, err := f.store.FindMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.Content, stored.Content)
}

func TestMessageUseCase_SendMessage_Invalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thread := f.startThread(t, "teacher-1", "parent-1")

	cases := []struct {
		name        string
		content     string
		contentType domain.ContentType
		want        *errprocess.AppError
	}{
		{"blank content", "   ", domain.ContentText, errprocess.ErrInvalidParams},
		{"unknown type", "hi", domain.ContentType("video"), errprocess.ErrInvalidParams},
		{"too long", strings.Repeat("字", config.DefaultLimits().MaxContentLength+1), domain.ContentText, errprocess.ErrInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.messages.SendMessage(ctx, thread.ID, "teacher-1", tc.content, tc.contentType)
			assert.True(t, errprocess.Is(err, tc.want))
		})
	}

	_, err := f.messages.SendMessage(ctx, "missing", "teacher-1", "hi", domain.ContentText)
	assert.True(t, errprocess.Is(err, errprocess.ErrThreadNotFound))
}

func TestMessageUseCase_SendMessage_NotAParticipantWritesNothing(t *testing.T) {
	logger.SetNewNop()

	threadRepo := new(MockThreadRepository)
	msgRepo := new(MockMessageRepository)
	feed := new(MockChangeFeed)
	threadRepo.On("FindByID", mock.Anything, "thread-1").Return(testThread(), nil)

	uc := NewMessageUseCase(threadRepo, msgRepo, feed, nil, config.LimitConfig{})
	_, err := uc.SendMessage(context.Background(), "thread-1", "parent-2", "hello", domain.ContentText)

	assert.True(t, errprocess.Is(err, errprocess.ErrNotAParticipant))
	msgRepo.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
	feed.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestMessageUseCase_ListMessages_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thread := f.startThread(t, "teacher-1", "parent-1")

	sent := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		sent = append(sent, f.send(t, thread.ID, "teacher-1", "msg").ID)
	}

	var got []string
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		page, err := f.messages.ListMessages(ctx, thread.ID, "parent-1", cursor, 3)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page.Messages), 3)
		for _, m := range page.Messages {
			got = append(got, m.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	// 新到舊，無重複無遺漏
	require.Len(t, got, len(sent))
	for i := range sent {
		assert.Equal(t, sent[len(sent)-1-i], got[i])
	}
}

func TestMessageUseCase_ListMessages_Tombstone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thread := f.startThread(t, "teacher-1", "parent-1")
	msg := f.send(t, thread.ID, "teacher-1", "wrong grade posted")

	_, err := f.messages.DeleteMessage(ctx, msg.ID, "teacher-1")
	require.NoError(t, err)

	page, err := f.messages.ListMessages(ctx, thread.ID, "parent-1", "", 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].IsDeleted())
	assert.Empty(t, page.Messages[0].Content)
	assert.Empty(t, page.NextCursor)
}

func TestMessageUseCase_ListMessages_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thread := f.startThread(t, "teacher-1", "parent-1")

	_, err := f.messages.ListMessages(ctx, thread.ID, "parent-1", "!!not-a-cursor", 10)
	assert.True(t, errprocess.Is(err, errprocess.ErrInvalidParams))

	_, err = f.messages.ListMessages(ctx, thread.ID, "parent-2", "", 10)
	assert.True(t, errprocess.Is(err, errprocess.ErrUnauthorized))

	f.store.FailOn("message.list", errDriver)
	page, err := f.messages.ListMessages(ctx, thread.ID, "parent-1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	require.NotNil(t, page.Notice)
	assert.Equal(t, domain.NoticeListFailed, page.Notice.Code)
}

func TestMessageUseCase_SearchInThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thread := f.startThread(t, "teacher-1", "parent-1")
	f.send(t, thread.ID, "teacher-1", "Field trip on Friday")
	f.send(t, thread.ID, "parent-1", "Is the FIELD TRIP paid?")
	f.send(t, thread.ID, "teacher-1", "Homework (chapter 3.1)")
	deleted := f.send(t, thread.ID, "teacher-1", "field trip cancelled")
	_, err := f.messages.DeleteMessage(ctx, deleted.ID, "teacher-1")
	require.NoError(t, err)

	result, err := f.messages.SearchInThread(ctx, thread.ID, "parent-1", "field trip")
	require.NoError(t, err)
	assert.Nil(t, result.Notice)
	require.Len(t, result.Messages, 2)
	assert.Equal(t, "Is the FIELD TRIP paid?", result.Messages[0].Content)

	// 特殊字元視為一般文字
	result, err = f.messages.SearchInThread(ctx, thread.ID, "parent-1", "(chapter 3.1)")
	require.NoError(t, err)
	assert.Len(t, result.Messages, 1)

	result, err = f.messages.SearchInThread(ctx, thread.ID, "parent-1", "   ")
	require.NoError(t, err)
	assert.Empty(t, result.Messages)
	assert.Nil(t, result.Notice)

	_, err = f.messages.SearchInThread(ctx, thread.ID, "parent-2", "trip")
	assert.True(t, errprocess.Is(err, errprocess.ErrUnauthorized))
}

func TestMessageUseCase_SearchInThread_FailOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thread := f.startThread(t, "teacher-1", "parent-1")
	f.send(t, thread.ID, "teacher-1", "hello")

	f.store.FailOn("message.search", errDriver)
	result, err := f.messages.SearchInThread(ctx, thread.ID, "parent-1", "hello")
	require.NoError(t, err)
	assert.Empty(t, result.Messages)
	require.NotNil(t, result.Notice)
	assert.Equal(t, domain.NoticeSearchFailed, result.Notice.Code)

	events := f.telemetry.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "message.search", events[0].Scope)
	assert.Equal(t, thread.ID, events[0].ThreadID)
}

func TestMessageUseCase_SearchInThread_Timeout(t *testing.T) {
	logger.SetNewNop()

	threadRepo := new(MockThreadRepository)
	msgRepo := new(MockMessageRepository)
	telemetry := &RecordingTelemetry{}

	threadRepo.On("FindByID", mock.Anything, "thread-1").Return(testThread(), nil)
	msgRepo.On("SearchMessages", mock.Anything, "thread-1", "late", mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return([]domain.Message{{ID: "m1"}}, nil)

	uc := NewMessageUseCase(threadRepo, msgRepo, nil, telemetry, config.LimitConfig{SearchTimeout: 20 * time.Millisecond})
	result, err := uc.SearchInThread(context.Background(), "thread-1", "parent-1", "late")

	require.NoError(t, err)
	assert.Empty(t, result.Messages)
	require.NotNil(t, result.Notice)
	assert.Equal(t, domain.NoticeSearchFailed, result.Notice.Code)
	assert.Len(t, telemetry.Events(), 1)
}

func TestMessageUseCase_SearchInThread_BlankQueryIssuesNoQuery(t *testing.T) {
	logger.SetNewNop()

	threadRepo := new(MockThreadRepository)
	msgRepo := new(MockMessageRepository)
	telemetry := &RecordingTelemetry{}
	uc := NewMessageUseCase(threadRepo, msgRepo, nil, telemetry, config.DefaultLimits())

	for _, q := range []string{"", "   ", "\t\n"} {
		result, err := uc.SearchInThread(context.Background(), "thread-1", "parent-2", q)
		require.NoError(t, err)
		assert.Empty(t, result.Messages)
		assert.Nil(t, result.Notice)
	}

	msgRepo.AssertNotCalled(t, "SearchMessages", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	threadRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	assert.Empty(t, telemetry.Events())
}

func TestMessageUseCase_DeleteMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	thread := f.startThread(t, "teacher-1", "parent-1")
	msg := f.send(t, thread.ID, "teacher-1", "oops")

	_, err := f.messages.DeleteMessage(ctx, msg.ID, "parent-1")
	assert.True(t, errprocess.Is(err, errprocess.ErrUnauthorized))

	first, err := f.messages.DeleteMessage(ctx, msg.ID, "teacher-1")
	require.NoError(t, err)
	require.NotNil(t, first.DeletedAt)
	assert.Empty(t, first.Content)

	events := make(chan domain.ChangeEvent, 4)
	sub, err := f.feed.Subscribe(ctx, domain.ThreadTopic(thread.ID), func(e domain.ChangeEvent) { events <- e })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	second, err := f.messages.DeleteMessage(ctx, msg.ID, "teacher-1")
	require.NoError(t, err)
	assert.True(t, first.DeletedAt.Equal(*second.DeletedAt))

	select {
	case e := <-events:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = f.messages.DeleteMessage(ctx, "missing", "teacher-1")
	assert.True(t, errprocess.Is(err, errprocess.ErrMessageNotFound))
}
