package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	errprocess "school_messaging_service/pkg/err"
)

// ContentType message content type
type ContentType string

const (
	// ContentText plain text
	ContentText ContentType = "text"
	// ContentImage image reference
	ContentImage ContentType = "image"
	// ContentFile file reference
	ContentFile ContentType = "file"
	// ContentSystem generated by the system
	ContentSystem ContentType = "system"
)

// Valid check content type is known
func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentImage, ContentFile, ContentSystem:
		return true
	}
	return false
}

// Message append-only thread message, ordered by (CreatedAt, ID)
type Message struct {
	ID          string      `bson:"_id" json:"id"`
	ThreadID    string      `bson:"thread_id" json:"thread_id"`
	SenderID    string      `bson:"sender_id" json:"sender_id"`
	Content     string      `bson:"content" json:"content"`
	ContentType ContentType `bson:"content_type" json:"content_type"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
	DeletedAt   *time.Time  `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	EditedAt    *time.Time  `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
}

// IsDeleted soft deleted
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Tombstone copy of a deleted message without its content
func (m Message) Tombstone() Message {
	if m.IsDeleted() {
		m.Content = ""
	}
	return m
}

// Before reports whether m sorts before o in thread order
func (m *Message) Before(o *Message) bool {
	if m.CreatedAt.Equal(o.CreatedAt) {
		return m.ID < o.ID
	}
	return m.CreatedAt.Before(o.CreatedAt)
}

// Cursor position after the last returned message of a page
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorAfter cursor pointing after m
func CursorAfter(m Message) *Cursor {
	return &Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// Encode opaque cursor string
func (c *Cursor) Encode() string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%d|%s", c.CreatedAt.UnixMilli(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Precedes reports whether m comes after the cursor in time-descending order
func (c *Cursor) Precedes(m *Message) bool {
	if c == nil {
		return true
	}
	if m.CreatedAt.Equal(c.CreatedAt) {
		return m.ID < c.ID
	}
	return m.CreatedAt.Before(c.CreatedAt)
}

// DecodeCursor parse an opaque cursor, empty string means first page
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errprocess.ErrInvalidParams.Wrap(fmt.Errorf("cursor: %w", err))
	}
	ms, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, errprocess.ErrInvalidParams.Wrap(fmt.Errorf("cursor: malformed"))
	}
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return nil, errprocess.ErrInvalidParams.Wrap(fmt.Errorf("cursor: %w", err))
	}
	return &Cursor{CreatedAt: time.UnixMilli(millis).UTC(), ID: id}, nil
}

// MessagePage one page of ListMessages
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	Notice     *Notice   `json:"notice,omitempty"`
}

// SearchResult result of SearchInThread
type SearchResult struct {
	Messages []Message `json:"messages"`
	Notice   *Notice   `json:"notice,omitempty"`
}
