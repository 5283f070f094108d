package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	pol, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, pol.IsActive)
	assert.Equal(t, "0", pol.BlockType)
	assert.Equal(t, DefaultReceiveMsg, pol.ReceiveMsg)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	pol := DefaultPolicy()
	pol.NotificationOnly = true
	pol.ListenGroups = []string{"g1", "g2"}
	pol.TotalAmount = 12.34
	require.NoError(t, store.Save(context.Background(), pol))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, got.NotificationOnly)
	assert.Equal(t, []string{"g1", "g2"}, got.ListenGroups)
	assert.Equal(t, 12.34, got.TotalAmount)
}

func TestFileStorePartialDocumentKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"blockType":"2","avoidQQs":["666"]}`), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	pol, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", pol.BlockType)
	assert.Equal(t, []string{"666"}, pol.AvoidQQs)
	assert.True(t, pol.IsActive)
	assert.Equal(t, DefaultReceiveMsg, pol.ReceiveMsg)
}

func TestFileStoreUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	got, err := store.Update(context.Background(), func(pol *Policy) {
		pol.TotalRedBagNum++
		pol.TotalAmount += 1.5
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalRedBagNum)
	assert.Equal(t, 1.5, got.TotalAmount)

	reloaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.TotalRedBagNum)
}

type slowStore struct {
	delay time.Duration
}

func (s *slowStore) Load(ctx context.Context) (Policy, error) {
	time.Sleep(s.delay)
	pol := DefaultPolicy()
	pol.NotificationOnly = true
	return pol, nil
}

func (s *slowStore) Save(ctx context.Context, pol Policy) error { return nil }

func (s *slowStore) Update(ctx context.Context, fn func(pol *Policy)) (Policy, error) {
	return Policy{}, fmt.Errorf("not implemented")
}

func TestLoadSafeFallsBackOnSlowStore(t *testing.T) {
	pol := LoadSafe(context.Background(), &slowStore{delay: 2 * time.Second})
	assert.False(t, pol.NotificationOnly)
}

func TestLoadSafeReturnsStoredPolicy(t *testing.T) {
	pol := LoadSafe(context.Background(), &slowStore{delay: 0})
	assert.True(t, pol.NotificationOnly)
}
