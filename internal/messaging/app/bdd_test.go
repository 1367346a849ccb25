package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"school_messaging_service/internal/messaging/domain"
	errprocess "school_messaging_service/pkg/err"

	"github.com/cucumber/godog"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeMessagingScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// messagingScenario state of one scenario
type messagingScenario struct {
	f       *fixture
	org     string
	thread  *domain.Thread
	last    *domain.Message
	lastErr error
	search  *domain.SearchResult
}

func (s *messagingScenario) schoolMembers(org, members string) error {
	s.org = org
	s.f.directory.Add(org, strings.Split(members, ",")...)
	return nil
}

func (s *messagingScenario) threadStarted(creator, other string) error {
	thread, _, err := s.f.threads.StartThread(context.Background(), s.org, creator, []domain.Participant{
		{MemberID: creator},
		{MemberID: other},
	})
	if err != nil {
		return err
	}
	s.thread = thread
	return nil
}

func (s *messagingScenario) sendMessage(sender, content string) error {
	msg, err := s.f.messages.SendMessage(context.Background(), s.thread.ID, sender, content, domain.ContentText)
	s.lastErr = err
	if err == nil {
		s.last = msg
	}
	return nil
}

func (s *messagingScenario) unreadShouldBe(member string, want int) error {
	result, err := s.f.threads.UnreadCount(context.Background(), member)
	if err != nil {
		return err
	}
	if result.Total != want {
		return fmt.Errorf("unread of %s: want %d, got %d", member, want, result.Total)
	}
	return nil
}

func (s *messagingScenario) onlyThreads(org string, want int, member string) error {
	result, err := s.f.threads.ListThreads(context.Background(), org, member)
	if err != nil {
		return err
	}
	if len(result.Threads) != want {
		return fmt.Errorf("threads of %s: want %d, got %d", member, want, len(result.Threads))
	}
	return nil
}

func (s *messagingScenario) markThreadRead(reader string) error {
	return s.f.threads.MarkThreadRead(context.Background(), s.thread.ID, reader)
}

func (s *messagingScenario) latestStateShouldBe(member, want string) error {
	if s.last == nil {
		return errors.New("no message sent")
	}
	state, err := s.f.tracker.State(context.Background(), s.last.ID, member)
	if err != nil {
		return err
	}
	if string(state) != want {
		return fmt.Errorf("state of %s: want %s, got %s", s.last.ID, want, state)
	}
	return nil
}

func (s *messagingScenario) storageFails(op string) error {
	s.f.store.FailOn(op, errDriver)
	return nil
}

func (s *messagingScenario) telemetryRecorded(want int, code string) error {
	got := 0
	for _, e := range s.f.telemetry.Events() {
		if e.Code == code {
			got++
		}
	}
	if got != want {
		return fmt.Errorf("telemetry %s: want %d, got %d", code, want, got)
	}
	return nil
}

func (s *messagingScenario) reconnect(member string) error {
	client := NewSyncClient(member, s.f.feed, s.f.threads, s.f.messages, s.f.tracker, nil, SyncHooks{}, 20)
	defer client.Close()
	return client.Connect(context.Background())
}

func (s *messagingScenario) shouldFailWith(message string) error {
	if s.lastErr == nil {
		return errors.New("expected an error")
	}
	if got := errprocess.GetMessage(s.lastErr); got != message {
		return fmt.Errorf("error: want %q, got %q", message, got)
	}
	return nil
}

func (s *messagingScenario) searchFor(viewer, query string) error {
	result, err := s.f.messages.SearchInThread(context.Background(), s.thread.ID, viewer, query)
	if err != nil {
		return err
	}
	s.search = result
	return nil
}

func (s *messagingScenario) searchResultCount(want int) error {
	if len(s.search.Messages) != want {
		return fmt.Errorf("search results: want %d, got %d", want, len(s.search.Messages))
	}
	return nil
}

func (s *messagingScenario) searchResultWithNotice(want int, code string) error {
	if err := s.searchResultCount(want); err != nil {
		return err
	}
	if s.search.Notice == nil || string(s.search.Notice.Code) != code {
		return fmt.Errorf("notice: want %s, got %+v", code, s.search.Notice)
	}
	return nil
}

func (s *messagingScenario) retractLatest(sender string) error {
	_, err := s.f.messages.DeleteMessage(context.Background(), s.last.ID, sender)
	return err
}

func (s *messagingScenario) latestShouldBeDeleted(viewer string) error {
	page, err := s.f.messages.ListMessages(context.Background(), s.thread.ID, viewer, "", 1)
	if err != nil {
		return err
	}
	if len(page.Messages) != 1 || !page.Messages[0].IsDeleted() || page.Messages[0].Content != "" {
		return fmt.Errorf("latest message is not a tombstone: %+v", page.Messages)
	}
	return nil
}

// InitializeMessagingScenario register messaging steps
func InitializeMessagingScenario(ctx *godog.ScenarioContext) {
	s := &messagingScenario{}
	ctx.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
		*s = messagingScenario{f: buildFixture()}
		return c, nil
	})

	ctx.Step(`^學校 "([^"]*)" 的成員有 "([^"]*)"$`, s.schoolMembers)
	ctx.Step(`^"([^"]*)" 與 "([^"]*)" 的對話已建立$`, s.threadStarted)
	ctx.Step(`^"([^"]*)" 發送訊息 "([^"]*)"$`, s.sendMessage)
	ctx.Step(`^"([^"]*)" 的未讀數量應為 (\d+)$`, s.unreadShouldBe)
	ctx.Step(`^學校 "([^"]*)" 應只有 (\d+) 個 "([^"]*)" 的對話$`, s.onlyThreads)
	ctx.Step(`^"([^"]*)" 將對話標記為已讀$`, s.markThreadRead)
	ctx.Step(`^"([^"]*)" 對最新訊息的狀態應為 "([^"]*)"$`, s.latestStateShouldBe)
	ctx.Step(`^儲存操作 "([^"]*)" 暫時失敗$`, s.storageFails)
	ctx.Step(`^應記錄 (\d+) 筆 telemetry "([^"]*)"$`, s.telemetryRecorded)
	ctx.Step(`^"([^"]*)" 重新連線$`, s.reconnect)
	ctx.Step(`^應回傳錯誤 "([^"]*)"$`, s.shouldFailWith)
	ctx.Step(`^"([^"]*)" 搜尋 "([^"]*)"$`, s.searchFor)
	ctx.Step(`^搜尋結果應為 (\d+) 筆$`, s.searchResultCount)
	ctx.Step(`^搜尋結果應為 (\d+) 筆並附帶提示 "([^"]*)"$`, s.searchResultWithNotice)
	ctx.Step(`^"([^"]*)" 撤回最新訊息$`, s.retractLatest)
	ctx.Step(`^"([^"]*)" 看到的最新訊息應已刪除$`, s.latestShouldBeDeleted)
}
