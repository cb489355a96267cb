package jobs

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	job       Job
	expiresAt time.Time
}

// MemoryStore keeps jobs in process. Expired entries are dropped lazily.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	jobs map[string]memoryEntry
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, jobs: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Put(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	m.jobs[job.ID] = memoryEntry{job: job, expiresAt: m.expiry()}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return Job{}, ErrNotFound
	}
	return e.job, nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(id)
	if !ok {
		return ErrNotFound
	}
	fn(&e.job)
	e.job.UpdatedAt = m.now().UTC()
	e.expiresAt = m.expiry()
	m.jobs[id] = e
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) expiry() time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(m.ttl)
}

func (m *MemoryStore) live(id string) (memoryEntry, bool) {
	e, ok := m.jobs[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.jobs, id)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryStore) sweep() {
	now := m.now()
	for id, e := range m.jobs {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(m.jobs, id)
		}
	}
}
