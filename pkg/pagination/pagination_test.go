package pagination

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC), ID: uuid.New()}
	encoded := EncodeCursor(in)
	assert.NotContains(t, encoded, "=")
	assert.NotContains(t, encoded, "+")

	out, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	out, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, out)

	for _, raw := range []string{"%%%", "bm90LWEtY3Vyc29y", strings.Repeat("a", 200)} {
		_, err := ParseCursor(raw)
		assert.Error(t, err, raw)
	}
}

func TestTrimDetectsNextPage(t *testing.T) {
	type row struct {
		at time.Time
		id uuid.UUID
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{base, uuid.New()}, {base.Add(-time.Minute), uuid.New()}, {base.Add(-2 * time.Minute), uuid.New()}}
	key := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, 2, key)
	require.Len(t, page, 2)
	cursor, err := ParseCursor(next)
	require.NoError(t, err)
	assert.Equal(t, rows[2].id, cursor.ID)

	page, next = Trim(rows[:2], 2, key)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+5))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}
