package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	base := time.Date(2024, 1, 1, 10, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return base }
	ctx := context.Background()

	r, err := l.Allow(ctx, "1.2.3.4|/users/login")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, int64(1), r.Remaining)

	r, _ = l.Allow(ctx, "1.2.3.4|/users/login")
	assert.True(t, r.Allowed)
	assert.Zero(t, r.Remaining)

	r, _ = l.Allow(ctx, "1.2.3.4|/users/login")
	assert.False(t, r.Allowed)
	assert.Equal(t, 50*time.Second, r.RetryAfter)
	assert.Equal(t, int64(3), r.CurrentHits)

	// otra key, otro contador
	r, _ = l.Allow(ctx, "5.6.7.8|/users/login")
	assert.True(t, r.Allowed)

	// ventana siguiente
	l.now = func() time.Time { return base.Add(time.Minute) }
	r, _ = l.Allow(ctx, "1.2.3.4|/users/login")
	assert.True(t, r.Allowed)
}
