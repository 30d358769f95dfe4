// File: internal/bulk/processor.go
package bulk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/commerce"
	"github.com/shoptalk-labs/shoptalk/internal/config"
)

// ProductLookup is the slice of the commerce client the processor needs.
type ProductLookup interface {
	GetProduct(ctx context.Context, sku string) (*commerce.Product, error)
}

// ResolvedRow is one accepted bulk row joined with its catalog product.
type ResolvedRow struct {
	schemas.BulkOrderRow
	Product *commerce.Product `json:"product,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Progress reports batch progress to the caller.
type Progress struct {
	Phase     string        `json:"phase"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Percent   float64       `json:"percent"`
	ETA       time.Duration `json:"eta"`
}

// ProgressFunc receives throttled progress updates. May be nil.
type ProgressFunc func(Progress)

// Processor resolves accepted rows against the catalog in fixed-size batches.
// Lookups within a batch fan out under a concurrency bound; batches run
// sequentially so progress and backpressure stay honest.
type Processor struct {
	cfg    config.BulkConfig
	lookup ProductLookup
	cache  *ProductCache
	logger *zap.Logger
}

// NewProcessor builds a processor sharing the given product cache.
func NewProcessor(cfg config.BulkConfig, lookup ProductLookup, cache *ProductCache, logger *zap.Logger) *Processor {
	return &Processor{
		cfg:    cfg,
		lookup: lookup,
		cache:  cache,
		logger: logger.Named("bulk_processor"),
	}
}

// Resolve joins every row with its product. Rows whose lookup fails carry an
// error string; the batch keeps going.
func (p *Processor) Resolve(ctx context.Context, rows []schemas.BulkOrderRow, onProgress ProgressFunc) ([]ResolvedRow, error) {
	resolved := make([]ResolvedRow, len(rows))
	for i, row := range rows {
		resolved[i] = ResolvedRow{BulkOrderRow: row}
	}

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	start := time.Now()
	completed := 0

	for offset := 0; offset < len(rows); offset += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := offset + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		if err := p.resolveBatch(ctx, resolved[offset:end]); err != nil {
			return nil, err
		}

		completed = end
		p.report(onProgress, start, completed, len(rows))
	}

	p.logger.Info("Bulk resolution finished",
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(start)))
	return resolved, nil
}

// resolveBatch fans out the lookups of one batch under the concurrency bound.
func (p *Processor) resolveBatch(ctx context.Context, batch []ResolvedRow) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.BatchConcurrency)

	for i := range batch {
		g.Go(func() error {
			row := &batch[i]

			if product, ok := p.cache.Get(row.SKU); ok {
				row.Product = product
				return nil
			}

			product, err := p.lookup.GetProduct(ctx, row.SKU)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				row.Error = fmt.Sprintf("product lookup failed for %s", row.SKU)
				p.logger.Warn("Bulk product lookup failed",
					zap.String("sku", row.SKU), zap.Error(err))
				return nil
			}
			p.cache.Put(row.SKU, product)
			row.Product = product
			return nil
		})
	}
	return g.Wait()
}

func (p *Processor) report(onProgress ProgressFunc, start time.Time, completed, total int) {
	if onProgress == nil || total == 0 {
		return
	}
	percent := float64(completed) / float64(total) * 100
	var eta time.Duration
	if completed > 0 && completed < total {
		perRow := time.Since(start) / time.Duration(completed)
		eta = perRow * time.Duration(total-completed)
	}
	onProgress(Progress{
		Phase:     "resolving",
		Completed: completed,
		Total:     total,
		Percent:   percent,
		ETA:       eta,
	})
}
