package app

import (
	"context"
	"testing"

	"school_messaging_service/internal/messaging/domain"
	"school_messaging_service/internal/messaging/repository"
	"school_messaging_service/pkg/config"
	"school_messaging_service/pkg/logger"

	"github.com/stretchr/testify/require"
)

const testOrg = "school-1"

// fixture use cases wired to the in-memory store and feed
type fixture struct {
	store     *repository.MemoryStore
	feed      *repository.MemoryChangeFeed
	directory *repository.StaticOrganizationDirectory
	telemetry *RecordingTelemetry

	threads  *ThreadUseCase
	messages *MessageUseCase
	tracker  *ReceiptTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return buildFixture()
}

func buildFixture() *fixture {
	logger.SetNewNop()

	f := &fixture{
		store: repository.NewMemoryStore(),
		feed:  repository.NewMemoryChangeFeed(),
		directory: repository.NewStaticOrganizationDirectory(map[string][]string{
			testOrg: {"teacher-1", "parent-1", "parent-2"},
		}),
		telemetry: &RecordingTelemetry{},
	}
	f.threads = NewThreadUseCase(f.store, f.store, f.directory, f.feed, f.telemetry)
	f.messages = NewMessageUseCase(f.store, f.store, f.feed, f.telemetry, config.DefaultLimits())
	f.tracker = NewReceiptTracker(f.store, f.store, f.store, f.feed)
	return f
}

func (f *fixture) startThread(t *testing.T, creator string, others ...string) *domain.Thread {
	t.Helper()
	participants := []domain.Participant{{MemberID: creator, Role: domain.RoleTeacher}}
	for _, id := range others {
		participants = append(participants, domain.Participant{MemberID: id, Role: domain.RoleParent})
	}
	thread, _, err := f.threads.StartThread(context.Background(), testOrg, creator, participants)
	require.NoError(t, err)
	return thread
}

func (f *fixture) send(t *testing.T, threadID, sender, content string) *domain.Message {
	t.Helper()
	msg, err := f.messages.SendMessage(context.Background(), threadID, sender, content, domain.ContentText)
	require.NoError(t, err)
	return msg
}
