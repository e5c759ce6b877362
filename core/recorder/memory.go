package recorder

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Recorder used in tests and as a fallback when
// no database is configured.
type Memory struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemory constructs an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields := make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	rec.Fields = fields
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) List(_ context.Context, kind Kind) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if kind != "" && rec.Kind != kind {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
