package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"redgrab/internal/constants"
	"redgrab/pkg/invoke"
	"redgrab/pkg/metrics"
)

type Store interface {
	Load(ctx context.Context) (Policy, error)
	Save(ctx context.Context, pol Policy) error
	Update(ctx context.Context, fn func(pol *Policy)) (Policy, error)
}

// FileStore persists the policy as a JSON document. Fields absent from
// the file keep their default values, so older documents stay loadable.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create policy directory: %w", err)
		}
		if err := s.write(DefaultPolicy()); err != nil {
			return nil, fmt.Errorf("failed to write initial policy: %w", err)
		}
	}

	return s, nil
}

func (s *FileStore) Load(ctx context.Context) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) Save(ctx context.Context, pol Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(pol)
}

func (s *FileStore) Update(ctx context.Context, fn func(pol *Policy)) (Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pol, err := s.read()
	if err != nil {
		return Policy{}, err
	}

	fn(&pol)

	if err := s.write(pol); err != nil {
		return Policy{}, err
	}

	return pol, nil
}

func (s *FileStore) read() (Policy, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	pol := DefaultPolicy()
	if err := json.Unmarshal(data, &pol); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}

	return pol, nil
}

func (s *FileStore) write(pol Policy) error {
	data, err := json.MarshalIndent(pol, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}

	return os.Rename(tmp, s.path)
}

// LoadSafe loads the policy with a bounded wait. A slow or failing store
// yields the default policy so event handling never stalls on settings.
func LoadSafe(ctx context.Context, store Store) Policy {
	res := invoke.WithDeadline(ctx, constants.PolicyLoadTimeout, func(ctx context.Context) (Policy, error) {
		return store.Load(ctx)
	})
	if !res.OK {
		metrics.FallbackUsageTotal.WithLabelValues("settings", "default_policy", "load_failed").Inc()
		return DefaultPolicy()
	}
	return res.Value
}
