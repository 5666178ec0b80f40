package ledger

import (
	"context"
	"sync"
)

// Ledger stores run records newest first and drops the oldest past its capacity.
type Ledger interface {
	Append(ctx context.Context, rec RunRecord) error
	ReadAll(ctx context.Context) ([]RunRecord, error)
}

// Latest returns the newest record, or false when the ledger is empty.
func Latest(ctx context.Context, l Ledger) (RunRecord, bool, error) {
	records, err := l.ReadAll(ctx)
	if err != nil {
		return RunRecord{}, false, err
	}
	if len(records) == 0 {
		return RunRecord{}, false, nil
	}
	return records[0], true, nil
}

// MemoryLedger is an in-process Ledger used for local runs and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	max     int
	records []RunRecord
}

func NewMemoryLedger(max int) *MemoryLedger {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &MemoryLedger{max: max}
}

func (m *MemoryLedger) Append(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append([]RunRecord{rec}, m.records...)
	if len(m.records) > m.max {
		m.records = m.records[:m.max]
	}
	return nil
}

func (m *MemoryLedger) ReadAll(_ context.Context) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RunRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}
