package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BaSui01/bstflow/types"
)

type memoryEntry struct {
	report    *types.FinalReport
	expiresAt time.Time
}

// MemoryStore 进程内报告存储
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore 创建内存存储，ttl<=0 表示永不过期
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, r *types.FinalReport) error {
	if err := validate(r); err != nil {
		return err
	}
	e := memoryEntry{report: r}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[r.RequestID] = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*types.FinalReport, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || s.expired(e) {
		return nil, ErrNotFound
	}
	return e.report, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Summary, error) {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.entries))
	for _, e := range s.entries {
		if !s.expired(e) {
			out = append(out, Summarize(e.report))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.RequestID, b.RequestID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

// Close 清空存储
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	clear(s.entries)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}
