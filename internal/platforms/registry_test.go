// internal/platforms/registry_test.go
package platforms

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-gateway/internal/common/logger"
	"courier-gateway/internal/models"
)

type stubAdapter struct {
	id string
}

func (s *stubAdapter) SendMessage(ctx context.Context, envelope models.Envelope, content models.MessageContent) (string, error) {
	return s.id, nil
}

func TestRegistryCachesPerTenantAndPlatform(t *testing.T) {
	r := NewRegistry(logger.NewNoOpLogger())

	var built int32
	r.Register("telegram", func(creds Credentials) (Adapter, error) {
		atomic.AddInt32(&built, 1)
		return &stubAdapter{id: "a"}, nil
	})

	a1, err := r.GetOrCreate("t1", "pf-1", "telegram", nil)
	require.NoError(t, err)
	a2, err := r.GetOrCreate("t1", "pf-1", "telegram", nil)
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&built))

	// A different tenant gets its own instance even for the same platform id.
	_, err = r.GetOrCreate("t2", "pf-1", "telegram", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&built))
}

func TestRegistryUnknownTypeErrors(t *testing.T) {
	r := NewRegistry(logger.NewNoOpLogger())

	_, err := r.GetOrCreate("t1", "pf-1", "pigeon", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider registered")
}

func TestRegistryFactoryErrorNotCached(t *testing.T) {
	r := NewRegistry(logger.NewNoOpLogger())

	fail := true
	r.Register("telegram", func(creds Credentials) (Adapter, error) {
		if fail {
			return nil, errors.New("missing botToken")
		}
		return &stubAdapter{id: "ok"}, nil
	})

	_, err := r.GetOrCreate("t1", "pf-1", "telegram", nil)
	require.Error(t, err)

	fail = false
	adapter, err := r.GetOrCreate("t1", "pf-1", "telegram", nil)
	require.NoError(t, err)
	assert.NotNil(t, adapter)
}

func TestRegistryEvict(t *testing.T) {
	r := NewRegistry(logger.NewNoOpLogger())

	var built int32
	r.Register("telegram", func(creds Credentials) (Adapter, error) {
		atomic.AddInt32(&built, 1)
		return &stubAdapter{}, nil
	})

	_, err := r.GetOrCreate("t1", "pf-1", "telegram", nil)
	require.NoError(t, err)

	r.Evict("t1", "pf-1")
	assert.Nil(t, r.Get("t1", "pf-1"))

	_, err = r.GetOrCreate("t1", "pf-1", "telegram", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&built))
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	r := NewRegistry(logger.NewNoOpLogger())
	r.Register("telegram", func(creds Credentials) (Adapter, error) {
		return &stubAdapter{}, nil
	})

	var wg sync.WaitGroup
	results := make([]Adapter, 16)
	errs := make([]error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.GetOrCreate("t1", "pf-1", "telegram", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Everyone converged on a single cached instance.
	for i := 1; i < len(results); i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestParseCredentials(t *testing.T) {
	creds, err := ParseCredentials(`{"botToken":"abc","chatId":"123"}`)
	require.NoError(t, err)
	assert.Equal(t, "abc", creds["botToken"])

	_, err = ParseCredentials("not json")
	assert.Error(t, err)
}
