package domain

import "time"

// ReceiptState delivery state of one (message, recipient) pair
type ReceiptState string

const (
	// StateSent no receipt row
	StateSent ReceiptState = "sent"
	// StateDelivered delivered_at set
	StateDelivered ReceiptState = "delivered"
	// StateRead read_at set, terminal
	StateRead ReceiptState = "read"
)

// Receipt per-recipient delivery/read state of a message.
// Timestamps are monotonic: never cleared, never moved earlier.
type Receipt struct {
	ID          string     `bson:"_id" json:"-"`
	MessageID   string     `bson:"message_id" json:"message_id"`
	RecipientID string     `bson:"recipient_id" json:"recipient_id"`
	ThreadID    string     `bson:"thread_id" json:"thread_id"`
	DeliveredAt *time.Time `bson:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt      *time.Time `bson:"read_at" json:"read_at,omitempty"`
}

// ReceiptKey composite key stored as _id
func ReceiptKey(messageID, recipientID string) string {
	return messageID + ":" + recipientID
}

// State current state of the receipt, nil receipt is Sent
func (r *Receipt) State() ReceiptState {
	switch {
	case r == nil:
		return StateSent
	case r.ReadAt != nil:
		return StateRead
	case r.DeliveredAt != nil:
		return StateDelivered
	default:
		return StateSent
	}
}

// Merge apply an incoming receipt onto the stored one following the
// monotonic rules. It reports whether anything changed and whether the
// incoming read time regressed.
func (r *Receipt) Merge(in Receipt) (changed bool, stale bool) {
	delivered := in.DeliveredAt
	if delivered == nil {
		delivered = in.ReadAt
	}
	if r.DeliveredAt == nil && delivered != nil {
		t := *delivered
		r.DeliveredAt = &t
		changed = true
	}
	if in.ReadAt != nil {
		switch {
		case r.ReadAt == nil:
			t := *in.ReadAt
			r.ReadAt = &t
			changed = true
		case in.ReadAt.After(*r.ReadAt):
			t := *in.ReadAt
			r.ReadAt = &t
			changed = true
		case in.ReadAt.Before(*r.ReadAt):
			stale = true
		}
	}
	return changed, stale
}

// UnreadResult total unread of a viewer
type UnreadResult struct {
	Total    int            `json:"total"`
	ByThread map[string]int `json:"by_thread"`
	Notice   *Notice        `json:"notice,omitempty"`
}
