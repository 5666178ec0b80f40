package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_reddit_speakout_poster/ledger"
)

type countingRunner struct {
	mu   sync.Mutex
	opts []RunOptions
	ran  chan struct{}
}

func (r *countingRunner) Run(_ context.Context, opts RunOptions) ledger.RunRecord {
	r.mu.Lock()
	r.opts = append(r.opts, opts)
	r.mu.Unlock()
	select {
	case r.ran <- struct{}{}:
	default:
	}
	return ledger.RunRecord{Outcome: ledger.OutcomeSkipped}
}

func TestSchedulerRunsOnStartAndTicks(t *testing.T) {
	runner := &countingRunner{ran: make(chan struct{}, 8)}
	s := NewScheduler(runner, 20*time.Millisecond, true, RunOptions{DryRun: true, Source: ledger.SourceManual}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-runner.ran:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not run")
		}
	}
	cancel()
	<-done

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.GreaterOrEqual(t, len(runner.opts), 2)
	for _, o := range runner.opts {
		assert.True(t, o.DryRun)
		assert.Equal(t, ledger.SourceScheduled, o.Source)
	}
}

func TestSchedulerDefaultsInterval(t *testing.T) {
	s := NewScheduler(&countingRunner{}, 0, false, RunOptions{}, nil)
	assert.Equal(t, defaultInterval, s.interval)
}
