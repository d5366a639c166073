package validation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockbridge/stockbridge/internal/erp"
)

type stubRemote struct {
	mu      sync.Mutex
	calls   [][]string
	failOn  map[string]error
	unknown map[string]bool
}

func (s *stubRemote) ValidateSerials(ctx context.Context, serials []string) (map[string]erp.SerialLookup, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string(nil), serials...))
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, serial := range serials {
		if err, ok := s.failOn[serial]; ok {
			return nil, err
		}
	}
	out := make(map[string]erp.SerialLookup, len(serials))
	for _, serial := range serials {
		if s.unknown[serial] {
			continue
		}
		out[serial] = erp.SerialLookup{Serial: serial, ItemCode: "ITM-" + serial, WarehouseCode: "WH1", InStock: true}
	}
	return out, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string]erp.SerialLookup
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]erp.SerialLookup)}
}

func (c *memCache) Get(ctx context.Context, serials []string) (map[string]erp.SerialLookup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]erp.SerialLookup)
	for _, serial := range serials {
		if lookup, ok := c.data[serial]; ok {
			out[serial] = lookup
		}
	}
	return out, nil
}

func (c *memCache) Put(ctx context.Context, lookups map[string]erp.SerialLookup) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for serial, lookup := range lookups {
		c.data[serial] = lookup
	}
	return nil
}

func makeSerials(n int) []string {
	serials := make([]string, n)
	for i := range serials {
		serials[i] = fmt.Sprintf("S%04d", i)
	}
	return serials
}

func TestValidatePartitionsAndPreservesOrder(t *testing.T) {
	remote := &stubRemote{}
	b := NewBatcher(remote, nil, 100, 4, nil)

	serials := makeSerials(1050)
	batch := b.Validate(context.Background(), serials)

	require.Equal(t, 11, batch.Chunks)
	require.Equal(t, BatchComplete, batch.Status)
	require.Empty(t, batch.Errors)
	require.Len(t, batch.Results, 1050)
	for i, res := range batch.Results {
		require.Equal(t, serials[i], res.Serial)
		require.Equal(t, StatusValid, res.Status)
	}

	require.Len(t, remote.calls, 11)
	total := 0
	for _, call := range remote.calls {
		require.LessOrEqual(t, len(call), 100)
		total += len(call)
	}
	require.Equal(t, 1050, total)
}

func TestValidateChunkFailureIsPartial(t *testing.T) {
	// Chunk 7 covers input positions 600-699.
	remote := &stubRemote{failOn: map[string]error{
		"S0600": fmt.Errorf("read timeout: %w", erp.ErrAmbiguous),
	}}
	b := NewBatcher(remote, nil, 100, 4, nil)

	serials := makeSerials(1050)
	batch := b.Validate(context.Background(), serials)

	require.Equal(t, BatchPartial, batch.Status)
	require.Len(t, batch.Errors, 1)
	require.ErrorIs(t, batch.Errors[6], erp.ErrAmbiguous)

	for i, res := range batch.Results {
		if i >= 600 && i < 700 {
			require.Equal(t, StatusUnchecked, res.Status, "position %d", i)
		} else {
			require.Equal(t, StatusValid, res.Status, "position %d", i)
		}
	}
}

func TestValidateFlagsDuplicatesLocally(t *testing.T) {
	remote := &stubRemote{}
	b := NewBatcher(remote, nil, 100, 4, nil)

	batch := b.Validate(context.Background(), []string{"A", "B", "A"})

	require.Equal(t, BatchComplete, batch.Status)
	require.Equal(t, StatusValid, batch.Results[0].Status)
	require.Equal(t, StatusValid, batch.Results[1].Status)
	require.Equal(t, StatusDuplicate, batch.Results[2].Status)

	require.Len(t, remote.calls, 1)
	require.Equal(t, []string{"A", "B"}, remote.calls[0])
}

func TestValidateMarksUnknownSerialsInvalid(t *testing.T) {
	remote := &stubRemote{unknown: map[string]bool{"B": true}}
	b := NewBatcher(remote, nil, 100, 4, nil)

	batch := b.Validate(context.Background(), []string{"A", "B"})

	require.Equal(t, BatchComplete, batch.Status)
	require.Equal(t, StatusValid, batch.Results[0].Status)
	require.Equal(t, StatusInvalid, batch.Results[1].Status)
}

func TestValidateCancelledContextIsPartial(t *testing.T) {
	remote := &stubRemote{}
	b := NewBatcher(remote, nil, 10, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := b.Validate(ctx, makeSerials(30))

	require.Equal(t, BatchPartial, batch.Status)
	require.NotEmpty(t, batch.Errors)
	for _, res := range batch.Results {
		require.Equal(t, StatusUnchecked, res.Status)
	}
}

func TestValidateUsesLookupCache(t *testing.T) {
	remote := &stubRemote{}
	cache := newMemCache()
	cache.data["A"] = erp.SerialLookup{Serial: "A", ItemCode: "ITM-A", InStock: true}
	b := NewBatcher(remote, cache, 100, 4, nil)

	batch := b.Validate(context.Background(), []string{"A", "B"})

	require.Equal(t, BatchComplete, batch.Status)
	require.Equal(t, StatusValid, batch.Results[0].Status)
	require.Equal(t, "ITM-A", batch.Results[0].Lookup.ItemCode)
	require.Equal(t, StatusValid, batch.Results[1].Status)

	// Only the cache miss goes remote, and the result is written back.
	require.Len(t, remote.calls, 1)
	require.Equal(t, []string{"B"}, remote.calls[0])
	cached, err := cache.Get(context.Background(), []string{"B"})
	require.NoError(t, err)
	require.Contains(t, cached, "B")
}
