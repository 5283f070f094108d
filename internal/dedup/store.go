package dedup

import (
	"context"
	"sync"
)

// Store records envelope identifiers that have already been handled.
// CheckAndMark is a single atomic operation: two concurrent calls with
// the same identifier see exactly one true result.
type Store interface {
	CheckAndMark(ctx context.Context, billNo string) (bool, error)
	Size(ctx context.Context) (int, error)
}

// MemoryStore keeps identifiers for the process lifetime. Restarts clear
// it, which is acceptable because duplicate delivery windows are short.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen: make(map[string]struct{}),
	}
}

func (s *MemoryStore) CheckAndMark(ctx context.Context, billNo string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[billNo]; ok {
		return false, nil
	}
	s.seen[billNo] = struct{}{}
	return true, nil
}

func (s *MemoryStore) Size(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen), nil
}
