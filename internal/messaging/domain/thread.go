package domain

import (
	"strings"
	"time"

	"school_messaging_service/pkg"
)

// ParticipantRole role of a member inside a thread
type ParticipantRole string

const (
	// RoleTeacher teacher / staff
	RoleTeacher ParticipantRole = "teacher"
	// RoleParent parent / guardian
	RoleParent ParticipantRole = "parent"
	// RoleAdmin school admin
	RoleAdmin ParticipantRole = "admin"
)

// Participant member of a thread
type Participant struct {
	MemberID string          `bson:"member_id" json:"member_id"`
	Role     ParticipantRole `bson:"role" json:"role"`
}

// Thread conversation with a fixed participant set inside one organization.
// Participants never change after creation.
type Thread struct {
	ID             string        `bson:"_id" json:"id"`
	OrganizationID string        `bson:"organization_id" json:"organization_id"`
	Participants   []Participant `bson:"participants" json:"participants"`
	// ParticipantKey sorted member ids, unique per organization
	ParticipantKey string    `bson:"participant_key" json:"-"`
	LastActivityAt time.Time `bson:"last_activity_at" json:"last_activity_at"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

// ThreadSummary thread annotated with the viewer's unread count
type ThreadSummary struct {
	Thread
	UnreadCount int `json:"unread_count"`
}

// HasParticipant check member is in the participant set
func (t *Thread) HasParticipant(memberID string) bool {
	return pkg.Contains(t.MemberIDs(), memberID)
}

// MemberIDs participant member ids in thread order
func (t *Thread) MemberIDs() []string {
	ids := make([]string, 0, len(t.Participants))
	for _, p := range t.Participants {
		ids = append(ids, p.MemberID)
	}
	return ids
}

// ParticipantKeyOf build the lookup key of a participant set
func ParticipantKeyOf(memberIDs []string) string {
	return strings.Join(pkg.UniqueSorted(memberIDs), ",")
}
