package domain

import (
	"context"
	"time"
)

// Entity entity kind carried by a change event
type Entity string

const (
	// EntityThread thread row
	EntityThread Entity = "thread"
	// EntityMessage message row
	EntityMessage Entity = "message"
	// EntityReceipt receipt row
	EntityReceipt Entity = "receipt"
)

// Operation change operation
type Operation string

const (
	// OpInsert row inserted
	OpInsert Operation = "insert"
	// OpUpdate row updated
	OpUpdate Operation = "update"
	// OpDelete row (soft) deleted
	OpDelete Operation = "delete"
)

// ChangeEvent change notification. Consumers must not assume the event
// carries the full row, only the affected id.
type ChangeEvent struct {
	Topic      string    `json:"topic"`
	Entity     Entity    `json:"entity"`
	Operation  Operation `json:"operation"`
	AffectedID string    `json:"affected_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// OrganizationTopic thread-list level topic
func OrganizationTopic(organizationID string) string {
	return "org." + organizationID
}

// ThreadTopic message level topic
func ThreadTopic(threadID string) string {
	return "thread." + threadID
}

// Subscription handle returned by ChangeFeed.Subscribe
type Subscription interface {
	// Unsubscribe stop delivery. Safe to call more than once.
	Unsubscribe()
}

// ChangeFeed topic scoped publish/subscribe. Events of one topic are
// delivered in publish order; events already queued when Unsubscribe is
// called may still be delivered once, so handlers must be idempotent.
type ChangeFeed interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(ctx context.Context, topic string, handler func(ChangeEvent)) (Subscription, error)
}
