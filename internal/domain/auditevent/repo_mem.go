package auditevent

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo is a thread-safe in-memory Repository used by tests and by
// deployments without a database.
type MemoryRepo struct {
	mu     sync.RWMutex
	events []*StatusTransition
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (m *MemoryRepo) Create(_ context.Context, t *StatusTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	m.events = append(m.events, &cp)
	return nil
}

func (m *MemoryRepo) ListByInsurance(_ context.Context, insuranceID uuid.UUID, limit, offset int) ([]*StatusTransition, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []*StatusTransition
	for _, e := range m.events {
		if e.InsuranceID == insuranceID {
			filtered = append(filtered, e)
		}
	}
	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}
