package identity

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redgrab/internal/logger"
)

type fakeInvoker struct {
	mu        sync.Mutex
	responses map[string]map[string]interface{}
	errs      map[string]error
	calls     []string
}

func (f *fakeInvoker) Invoke(ctx context.Context, command string, body map[string]interface{}) (map[string]interface{}, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	f.mu.Unlock()

	if err, ok := f.errs[command]; ok {
		return nil, err
	}
	if rsp, ok := f.responses[command]; ok {
		return rsp, nil
	}
	return map[string]interface{}{}, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestResolveFirstProbeWins(t *testing.T) {
	inv := &fakeInvoker{
		responses: map[string]map[string]interface{}{
			"nodeIKernelLoginService/getCurrentUin": {
				"uin":      "10001",
				"uid":      "u_abc",
				"nickName": "alice",
			},
		},
	}
	r := NewResolver(inv, nil, logger.NopLogger())

	id, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10001", id.UIN)
	assert.Equal(t, "u_abc", id.UID)
	assert.Equal(t, "alice", id.NickName)
	assert.Equal(t, "probe:nodeIKernelLoginService/getCurrentUin", id.From)
	assert.Equal(t, 1, inv.callCount())
}

func TestResolveFallsThroughFailingProbes(t *testing.T) {
	inv := &fakeInvoker{
		errs: map[string]error{
			"nodeIKernelLoginService/getCurrentUin": fmt.Errorf("not supported"),
		},
		responses: map[string]map[string]interface{}{
			"nodeIKernelLoginService/getLoginInfo": {
				"loginInfo": map[string]interface{}{
					"uin": "0",
				},
			},
			"nodeIKernelLoginService/getUinLoginInfo": {
				"loginInfo": map[string]interface{}{
					"uin":    "20002",
					"tinyId": "t_99",
				},
			},
		},
	}
	r := NewResolver(inv, nil, logger.NopLogger())

	id, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20002", id.UIN)
	assert.Equal(t, "t_99", id.UID)
	assert.Equal(t, 3, inv.callCount())
}

func TestResolveProbesOnce(t *testing.T) {
	inv := &fakeInvoker{
		responses: map[string]map[string]interface{}{
			"nodeIKernelLoginService/getCurrentUin": {"uin": "10001"},
		},
	}
	r := NewResolver(inv, nil, logger.NopLogger())

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)

	id, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cache", id.From)
	assert.Equal(t, 1, inv.callCount())
}

func TestResolveConcurrentSharesOneChainRun(t *testing.T) {
	inv := &fakeInvoker{
		responses: map[string]map[string]interface{}{
			"nodeIKernelLoginService/getCurrentUin": {"uin": "10001"},
		},
	}
	r := NewResolver(inv, nil, logger.NopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Resolve(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "10001", id.UIN)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inv.callCount())
}

func TestResolveAllProbesExhausted(t *testing.T) {
	inv := &fakeInvoker{}
	r := NewResolver(inv, nil, logger.NopLogger())

	_, err := r.Resolve(context.Background())
	assert.Error(t, err)
	assert.Equal(t, len(DefaultProbes()), inv.callCount())

	// Failure is not cached.
	_, err = r.Resolve(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2*len(DefaultProbes()), inv.callCount())
}

func TestSeedSkipsProbing(t *testing.T) {
	inv := &fakeInvoker{}
	r := NewResolver(inv, nil, logger.NopLogger())
	r.Seed(Identity{UIN: "30003", UID: "u_s", NickName: "cfg"})

	id, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "30003", id.UIN)
	assert.Equal(t, "cache", id.From)
	assert.Zero(t, inv.callCount())
}

func TestResetForcesReprobe(t *testing.T) {
	inv := &fakeInvoker{
		responses: map[string]map[string]interface{}{
			"nodeIKernelLoginService/getCurrentUin": {"uin": "10001"},
		},
	}
	r := NewResolver(inv, nil, logger.NopLogger())

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)
	r.Reset()

	_, err = r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inv.callCount())
}

func TestExtractNumericUin(t *testing.T) {
	id, ok := extract(map[string]interface{}{
		"profile": map[string]interface{}{
			"uin":      float64(44004),
			"nickname": "lower",
		},
	})
	require.True(t, ok)
	assert.Equal(t, "44004", id.UIN)
	assert.Equal(t, "lower", id.NickName)
}
