package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLedger(t *testing.T, max int) *RedisLedger {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLedger(client, "", max)
}

func ledgers(t *testing.T, max int) map[string]Ledger {
	return map[string]Ledger{
		"memory": NewMemoryLedger(max),
		"redis":  newRedisLedger(t, max),
	}
}

func record(i int) RunRecord {
	return RunRecord{
		ID:        fmt.Sprintf("run-%d", i),
		Timestamp: time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
		Outcome:   OutcomeSkipped,
		Source:    SourceScheduled,
	}
}

func TestLedger_NewestFirst(t *testing.T) {
	for name, l := range ledgers(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				require.NoError(t, l.Append(ctx, record(i)))
			}
			got, err := l.ReadAll(ctx)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "run-2", got[0].ID)
			assert.Equal(t, "run-0", got[2].ID)
		})
	}
}

func TestLedger_DropsOldestAtCapacity(t *testing.T) {
	for name, l := range ledgers(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 7; i++ {
				require.NoError(t, l.Append(ctx, record(i)))
				got, err := l.ReadAll(ctx)
				require.NoError(t, err)
				assert.LessOrEqual(t, len(got), 3)
				assert.Equal(t, fmt.Sprintf("run-%d", i), got[0].ID)
			}
			got, err := l.ReadAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"run-6", "run-5", "run-4"}, []string{got[0].ID, got[1].ID, got[2].ID})
		})
	}
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(0)

	_, ok, err := Latest(ctx, l)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Append(ctx, record(1)))
	require.NoError(t, l.Append(ctx, record(2)))
	rec, ok, err := Latest(ctx, l)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "run-2", rec.ID)
}

func TestRedisLedger_RoundTripsFields(t *testing.T) {
	ctx := context.Background()
	l := newRedisLedger(t, 0)
	in := RunRecord{
		ID:             "abc",
		Timestamp:      time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
		Outcome:        OutcomePosted,
		PostedTitle:    "DH Speakout | Monday, January 1, 2024",
		PostedURL:      "https://reddit.com/r/x/comments/abc",
		CommentOutcome: CommentPosted,
		Flair:          "BJP",
		Source:         SourceManual,
	}
	require.NoError(t, l.Append(ctx, in))
	got, err := l.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in, got[0])
}
