package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderCursorRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 3, 14, 0, 0, 123000, time.UTC)

	decoded, err := DecodeCursor(EncodeCursor(OrderCursor{CreatedAt: at, ID: 42}))
	require.NoError(t, err)
	assert.True(t, at.Equal(decoded.CreatedAt))
	assert.Equal(t, int64(42), decoded.ID)

	first, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.After(time.Now()))

	for _, bad := range []string{
		"%%notbase64",
		EncodeCursor(OrderCursor{}),
		"bm90LWpzb24=",
	} {
		_, err = DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, "cursor %q", bad)
	}
}

func TestNewOffsetPage(t *testing.T) {
	tests := []struct {
		total, pageSize int
		wantPages       int
	}{
		{0, 20, 0},
		{20, 20, 1},
		{21, 20, 2},
		{5, 2, 3},
	}
	for _, tt := range tests {
		p := newOffsetPage([]int{}, int64(tt.total), 1, tt.pageSize)
		assert.Equal(t, tt.wantPages, p.TotalPages, "total=%d size=%d", tt.total, tt.pageSize)
	}
}

func TestGenerateOrderNumber(t *testing.T) {
	a := generateOrderNumber()
	b := generateOrderNumber()

	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{10}$`, a)
	assert.NotEqual(t, a, b)
}
