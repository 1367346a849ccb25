package domain

import (
	"testing"
	"time"

	errprocess "school_messaging_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_EncodeDecode(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 30, 0, 123_000_000, time.UTC)
	c := &Cursor{CreatedAt: at, ID: "0195-abc"}

	got, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(at))
	assert.Equal(t, "0195-abc", got.ID)
}

func TestDecodeCursor_Empty(t *testing.T) {
	c, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, raw := range []string{"%%%", "bm9waXBl", "YWJjfA"} {
		_, err := DecodeCursor(raw)
		assert.True(t, errprocess.Is(err, errprocess.ErrInvalidParams), raw)
	}
}

func TestCursor_PrecedesBreaksTiesByID(t *testing.T) {
	at := time.Now().UTC().Truncate(time.Millisecond)
	c := &Cursor{CreatedAt: at, ID: "m-5"}

	assert.True(t, c.Precedes(&Message{ID: "m-4", CreatedAt: at}))
	assert.False(t, c.Precedes(&Message{ID: "m-5", CreatedAt: at}))
	assert.False(t, c.Precedes(&Message{ID: "m-6", CreatedAt: at}))
	assert.True(t, c.Precedes(&Message{ID: "m-9", CreatedAt: at.Add(-time.Millisecond)}))
}

func TestMessage_Tombstone(t *testing.T) {
	now := time.Now()
	m := Message{ID: "m", Content: "secret"}
	assert.Equal(t, "secret", m.Tombstone().Content)

	m.DeletedAt = &now
	assert.Empty(t, m.Tombstone().Content)
	assert.Equal(t, "secret", m.Content)
}
