package engine

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"investsim-api/internal/model"
)

// RunStats summarises one refresh sweep.
type RunStats struct {
	Updated int
	Skipped int
	Failed  int
}

// Refresher drives the scheduled full-registry refresh. It is parallel
// across providers but strictly sequential within one provider's batches so
// each upstream sees a bounded request rate.
type Refresher struct {
	orchestrator *Orchestrator
	assets       model.AssetsModel

	batchSize  int
	batchDelay time.Duration
}

// NewRefresher wires a refresher over the orchestrator's write path.
func NewRefresher(orchestrator *Orchestrator, assets model.AssetsModel, batchSize int, batchDelay time.Duration) *Refresher {
	if batchSize <= 0 {
		batchSize = 40
	}
	return &Refresher{
		orchestrator: orchestrator,
		assets:       assets,
		batchSize:    batchSize,
		batchDelay:   batchDelay,
	}
}

// RefreshClass refreshes every active asset of one class. Re-running after
// a partial failure is safe: writes are upserts keyed by asset.
func (r *Refresher) RefreshClass(ctx context.Context, class string) (RunStats, error) {
	assets, err := r.assets.FindActiveByClass(ctx, class)
	if err != nil {
		return RunStats{}, err
	}
	return r.refresh(ctx, assets), nil
}

// RefreshAll sweeps the entire active registry.
func (r *Refresher) RefreshAll(ctx context.Context) (RunStats, error) {
	assets, err := r.assets.FindActive(ctx)
	if err != nil {
		return RunStats{}, err
	}
	return r.refresh(ctx, assets), nil
}

func (r *Refresher) refresh(ctx context.Context, assets []*model.Asset) RunStats {
	groups := make(map[string][]*model.Asset)
	for _, asset := range assets {
		name := r.orchestrator.providerName(asset)
		groups[name] = append(groups[name], asset)
	}

	var (
		mu    sync.Mutex
		total RunStats
	)
	var wg sync.WaitGroup
	for name, group := range groups {
		wg.Add(1)
		go func(name string, group []*model.Asset) {
			defer wg.Done()
			stats := r.refreshGroup(ctx, name, group)
			mu.Lock()
			total.Updated += stats.Updated
			total.Skipped += stats.Skipped
			total.Failed += stats.Failed
			mu.Unlock()
		}(name, group)
	}
	wg.Wait()
	return total
}

func (r *Refresher) refreshGroup(ctx context.Context, name string, group []*model.Asset) RunStats {
	var stats RunStats
	for start := 0; start < len(group); start += r.batchSize {
		if ctx.Err() != nil {
			stats.Skipped += len(group) - start
			return stats
		}
		end := start + r.batchSize
		if end > len(group) {
			end = len(group)
		}
		batch := group[start:end]

		fetched, err := r.orchestrator.fetchGroup(ctx, name, batch)
		if err != nil {
			logx.WithContext(ctx).Errorf("refresh: provider %s batch of %d failed: %v", name, len(batch), err)
			stats.Failed += len(batch)
		} else {
			stats.Updated += len(fetched)
			stats.Skipped += len(batch) - len(fetched)
		}

		if r.batchDelay > 0 && end < len(group) {
			select {
			case <-ctx.Done():
				stats.Skipped += len(group) - end
				return stats
			case <-time.After(r.batchDelay):
			}
		}
	}
	return stats
}
