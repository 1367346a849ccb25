package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr(t time.Time) *time.Time { return &t }

func TestReceipt_State(t *testing.T) {
	var nilReceipt *Receipt
	now := time.Now()

	assert.Equal(t, StateSent, nilReceipt.State())
	assert.Equal(t, StateSent, (&Receipt{}).State())
	assert.Equal(t, StateDelivered, (&Receipt{DeliveredAt: &now}).State())
	assert.Equal(t, StateRead, (&Receipt{DeliveredAt: &now, ReadAt: &now}).State())
}

func TestReceipt_MergeReadSetsDelivered(t *testing.T) {
	t1 := time.Now()
	r := &Receipt{}

	changed, stale := r.Merge(Receipt{ReadAt: ptr(t1)})
	assert.True(t, changed)
	assert.False(t, stale)
	assert.True(t, r.DeliveredAt.Equal(t1))
	assert.True(t, r.ReadAt.Equal(t1))
}

func TestReceipt_MergeIsMonotonic(t *testing.T) {
	t1 := time.Now()
	t0 := t1.Add(-time.Minute)
	t2 := t1.Add(time.Minute)
	r := &Receipt{DeliveredAt: ptr(t1), ReadAt: ptr(t1)}

	changed, stale := r.Merge(Receipt{ReadAt: ptr(t0)})
	assert.False(t, changed)
	assert.True(t, stale)
	assert.True(t, r.ReadAt.Equal(t1))

	changed, stale = r.Merge(Receipt{ReadAt: ptr(t1)})
	assert.False(t, changed)
	assert.False(t, stale)

	changed, _ = r.Merge(Receipt{DeliveredAt: ptr(t0)})
	assert.False(t, changed)
	assert.True(t, r.DeliveredAt.Equal(t1))

	changed, _ = r.Merge(Receipt{ReadAt: ptr(t2)})
	assert.True(t, changed)
	assert.True(t, r.ReadAt.Equal(t2))
	assert.True(t, r.DeliveredAt.Equal(t1))
}
