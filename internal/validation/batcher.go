// Package validation splits large serial number sets into bounded chunks,
// validates them against the external system concurrently and merges the
// results back into input order.
package validation

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/stockbridge/stockbridge/internal/erp"
)

// RemotePort is the slice of the ERP boundary the batcher needs.
type RemotePort interface {
	ValidateSerials(ctx context.Context, serials []string) (map[string]erp.SerialLookup, error)
}

// CachePort is an optional read-through cache of previous lookups.
type CachePort interface {
	Get(ctx context.Context, serials []string) (map[string]erp.SerialLookup, error)
	Put(ctx context.Context, lookups map[string]erp.SerialLookup) error
}

// Batcher validates serial sets in bounded concurrent chunks.
type Batcher struct {
	remote      RemotePort
	cache       CachePort
	chunkSize   int
	concurrency int
	logger      *slog.Logger
	metrics     *Metrics
}

// WithMetrics attaches Prometheus collectors. Nil metrics are a no-op.
func (b *Batcher) WithMetrics(m *Metrics) *Batcher {
	b.metrics = m
	return b
}

// NewBatcher constructs a Batcher. chunkSize and concurrency fall back to
// sane defaults when non-positive.
func NewBatcher(remote RemotePort, cache CachePort, chunkSize, concurrency int, logger *slog.Logger) *Batcher {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{remote: remote, cache: cache, chunkSize: chunkSize, concurrency: concurrency, logger: logger}
}

type chunk struct {
	index   int
	serials []string
	// positions of each serial within the original input
	positions []int
}

// Validate validates the given serials. Repeated values are flagged
// duplicate locally and excluded from remote calls; cache hits are filled
// without a remote call. A chunk failure never aborts the batch: the
// chunk's serials stay unchecked with the error recorded, and the batch
// reports partial. Calling Validate twice against unchanged external
// state yields the same per-serial statuses.
func (b *Batcher) Validate(ctx context.Context, serials []string) Batch {
	batch := Batch{
		ChunkSize: b.chunkSize,
		Results:   make([]Result, len(serials)),
		Errors:    make(map[int]error),
		Status:    BatchComplete,
	}

	seen := make(map[string]bool, len(serials))
	var remoteIdx []int
	for i, serial := range serials {
		batch.Results[i] = Result{Serial: serial, Status: StatusUnchecked}
		if seen[serial] {
			batch.Results[i].Status = StatusDuplicate
			continue
		}
		seen[serial] = true
		remoteIdx = append(remoteIdx, i)
	}

	remoteIdx = b.fillFromCache(ctx, serials, remoteIdx, &batch)

	chunks := partition(serials, remoteIdx, b.chunkSize)
	batch.Chunks = len(chunks)
	if len(chunks) == 0 {
		return batch
	}

	lookups := make([]map[string]erp.SerialLookup, len(chunks))
	failures := make([]error, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, ch := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				failures[ch.index] = err
				return nil
			}
			result, err := b.remote.ValidateSerials(gctx, ch.serials)
			if err != nil {
				failures[ch.index] = err
				return nil
			}
			lookups[ch.index] = result
			return nil
		})
	}
	_ = g.Wait()

	fresh := make(map[string]erp.SerialLookup)
	for _, ch := range chunks {
		if err := failures[ch.index]; err != nil {
			batch.Errors[ch.index] = err
			batch.Status = BatchPartial
			b.metrics.Chunk("failed")
			b.logger.Warn("validation chunk failed",
				slog.Int("chunk", ch.index),
				slog.Int("serials", len(ch.serials)),
				slog.Any("error", err))
			continue
		}
		b.metrics.Chunk("ok")
		for n, pos := range ch.positions {
			serial := ch.serials[n]
			if lookup, ok := lookups[ch.index][serial]; ok {
				batch.Results[pos].Status = StatusValid
				batch.Results[pos].Lookup = lookup
				fresh[serial] = lookup
			} else {
				batch.Results[pos].Status = StatusInvalid
			}
		}
	}

	if b.cache != nil && len(fresh) > 0 {
		if err := b.cache.Put(ctx, fresh); err != nil {
			b.logger.Warn("lookup cache write", slog.Any("error", err))
		}
	}
	return batch
}

// fillFromCache resolves serials present in the lookup cache and returns
// the input positions that still need a remote call.
func (b *Batcher) fillFromCache(ctx context.Context, serials []string, remoteIdx []int, batch *Batch) []int {
	if b.cache == nil || len(remoteIdx) == 0 {
		return remoteIdx
	}
	unique := make([]string, len(remoteIdx))
	for n, i := range remoteIdx {
		unique[n] = serials[i]
	}
	cached, err := b.cache.Get(ctx, unique)
	if err != nil {
		// Cache trouble only costs remote calls.
		b.logger.Warn("lookup cache read", slog.Any("error", err))
		return remoteIdx
	}
	var missing []int
	for _, i := range remoteIdx {
		if lookup, ok := cached[serials[i]]; ok {
			batch.Results[i].Status = StatusValid
			batch.Results[i].Lookup = lookup
			continue
		}
		missing = append(missing, i)
	}
	b.metrics.CacheHits(len(remoteIdx) - len(missing))
	return missing
}

// partition groups the given input positions into contiguous chunks of at
// most size entries, preserving input order.
func partition(serials []string, positions []int, size int) []chunk {
	var chunks []chunk
	for start := 0; start < len(positions); start += size {
		end := start + size
		if end > len(positions) {
			end = len(positions)
		}
		ch := chunk{index: len(chunks)}
		for _, pos := range positions[start:end] {
			ch.positions = append(ch.positions, pos)
			ch.serials = append(ch.serials, serials[pos])
		}
		chunks = append(chunks, ch)
	}
	return chunks
}
