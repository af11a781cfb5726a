package insurance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is a thread-safe in-memory Repository used by tests and local
// development without a database.
type MemoryRepo struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*InsuranceRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[uuid.UUID]*InsuranceRecord)}
}

func (m *MemoryRepo) Create(_ context.Context, rec *InsuranceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.VerificationStatus == "" {
		rec.VerificationStatus = StatusPending
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*InsuranceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryRepo) GetBySession(_ context.Context, sessionID uuid.UUID) (*InsuranceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) Update(_ context.Context, rec *InsuranceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *rec
	cp.CreatedAt = stored.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	m.records[rec.ID] = &cp
	return nil
}

func (m *MemoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, status VerificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.VerificationStatus = status
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) SaveVerification(_ context.Context, id uuid.UUID, status VerificationStatus, result *StoredResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.VerificationStatus = status
	rec.VerificationResult = result
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) AppendRetryHistory(_ context.Context, id uuid.UUID, entry RetryEntry, status VerificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.VerificationResult == nil {
		rec.VerificationResult = &StoredResult{}
	}
	rec.VerificationResult.RetryHistory = append(rec.VerificationResult.RetryHistory, entry)
	rec.RetryAttempts++
	rec.VerificationStatus = status
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) ResetRetryAttempts(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.RetryAttempts = 0
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
