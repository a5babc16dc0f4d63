package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"

	cachekeys "investsim-api/internal/cache"
	"investsim-api/internal/model"
	"investsim-api/pkg/pricefeed"
)

// Source provenance tags reported to callers.
const (
	SourceCache    = "cache"
	SourceDB       = "db"
	SourceProvider = "provider"
	SourceStaleDB  = "stale_db"
)

var (
	// ErrAssetNotFound means the requested code is not in the registry.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrNoProvider means no adapter answered and no persisted fallback
	// exists for the asset.
	ErrNoProvider = errors.New("no provider available")
)

// PriceResult is one resolved quote with provenance.
type PriceResult struct {
	Code            string
	Class           string
	Price           float64
	PercentChange24 *float64
	UpdatedAt       time.Time
	Source          string
}

// BatchResult carries a batch lookup's prices plus explicit partial-result
// status. Skipped lists codes absent from Prices: unknown or inactive codes,
// codes over the dispatch cap, and codes whose provider group failed.
type BatchResult struct {
	Prices  map[string]*PriceResult
	Cached  int
	Fetched int
	Skipped []string
}

// Config enumerates orchestrator dependencies.
type Config struct {
	Assets    model.AssetsModel
	Latest    model.LatestPricesModel
	L1        *L1Cache
	Cache     gocache.Cache
	Providers map[string]pricefeed.Provider
	Default   string
	TTL       cachekeys.TTLSet
	Bus       *EventBus

	MaxBatchFetch   int
	ProviderTimeout time.Duration
	Clock           func() time.Time
}

// Orchestrator routes price lookups through the L1 map, the persisted
// latest_prices tier, and finally the provider adapters.
type Orchestrator struct {
	assets    model.AssetsModel
	latest    model.LatestPricesModel
	l1        *L1Cache
	cache     gocache.Cache
	providers map[string]pricefeed.Provider
	def       string
	ttl       cachekeys.TTLSet
	bus       *EventBus

	maxBatchFetch   int
	providerTimeout time.Duration
	now             func() time.Time
}

// New wires an orchestrator. Returns nil when required dependencies are
// missing.
func New(cfg Config) *Orchestrator {
	if cfg.Assets == nil || cfg.Latest == nil {
		return nil
	}
	if cfg.L1 == nil {
		cfg.L1 = NewL1Cache(cfg.Clock)
	}
	if cfg.MaxBatchFetch <= 0 {
		cfg.MaxBatchFetch = 5
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Orchestrator{
		assets:          cfg.Assets,
		latest:          cfg.Latest,
		l1:              cfg.L1,
		cache:           cfg.Cache,
		providers:       cfg.Providers,
		def:             cfg.Default,
		ttl:             cfg.TTL,
		bus:             cfg.Bus,
		maxBatchFetch:   cfg.MaxBatchFetch,
		providerTimeout: cfg.ProviderTimeout,
		now:             cfg.Clock,
	}
}

// Price resolves one symbol. L1 and a fresh L2 row answer without network
// I/O; otherwise the routed adapter is called. Provider failure degrades to
// the stale L2 row when one exists.
func (o *Orchestrator) Price(ctx context.Context, code string) (*PriceResult, error) {
	asset, err := o.asset(ctx, code)
	if err != nil {
		return nil, err
	}
	ttl := o.ttl.ForClass(asset.Class)

	if entry, ok := o.l1.Get(asset.Code, ttl); ok {
		return resultFromCache(asset, entry, SourceCache), nil
	}

	record, err := o.latest.FindOne(ctx, asset.Id)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	if record != nil && o.now().Sub(record.UpdatedAt) < ttl {
		o.l1.Put(asset.Code, cachedFromRecord(record))
		return resultFromRecord(asset, record, SourceDB), nil
	}

	fresh, fetchErr := o.fetchOne(ctx, asset)
	if fetchErr == nil {
		return fresh, nil
	}
	if record != nil {
		logx.WithContext(ctx).Errorf("price %s: provider failed, serving stale: %v", asset.Code, fetchErr)
		return resultFromRecord(asset, record, SourceStaleDB), nil
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrNoProvider, asset.Code, fetchErr)
}

// BatchPrices resolves many symbols without blocking on slow providers.
// Cached rows, fresh or stale, are returned immediately; only symbols with
// no persisted row at all are dispatched upstream, capped at MaxBatchFetch.
func (o *Orchestrator) BatchPrices(ctx context.Context, codes []string) (*BatchResult, error) {
	out := &BatchResult{Prices: make(map[string]*PriceResult, len(codes))}
	if len(codes) == 0 {
		return out, nil
	}

	wanted := normaliseCodes(codes)
	assets, err := o.assets.FindByCodes(ctx, wanted)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*model.Asset, len(assets))
	ids := make([]int64, 0, len(assets))
	for _, asset := range assets {
		if !asset.IsActive {
			continue
		}
		byCode[asset.Code] = asset
		ids = append(ids, asset.Id)
	}

	records, err := o.latest.FindByAssetIds(ctx, ids)
	if err != nil {
		return nil, err
	}
	recordByID := make(map[int64]*model.LatestPrice, len(records))
	for _, rec := range records {
		recordByID[rec.AssetId] = rec
	}

	var missing []*model.Asset
	for _, code := range wanted {
		asset, ok := byCode[code]
		if !ok {
			out.Skipped = append(out.Skipped, code)
			continue
		}
		ttl := o.ttl.ForClass(asset.Class)
		if entry, hit := o.l1.Get(asset.Code, ttl); hit {
			out.Prices[asset.Code] = resultFromCache(asset, entry, SourceCache)
			out.Cached++
			continue
		}
		if rec, found := recordByID[asset.Id]; found {
			source := SourceDB
			if o.now().Sub(rec.UpdatedAt) >= ttl {
				source = SourceStaleDB
			} else {
				o.l1.Put(asset.Code, cachedFromRecord(rec))
			}
			out.Prices[asset.Code] = resultFromRecord(asset, rec, source)
			out.Cached++
			continue
		}
		missing = append(missing, asset)
	}

	if len(missing) > o.maxBatchFetch {
		for _, asset := range missing[o.maxBatchFetch:] {
			out.Skipped = append(out.Skipped, asset.Code)
		}
		missing = missing[:o.maxBatchFetch]
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, failed := o.fetchGroups(ctx, missing)
	for code, res := range fetched {
		out.Prices[code] = res
		out.Fetched++
	}
	out.Skipped = append(out.Skipped, failed...)
	return out, nil
}

// fetchGroups dispatches one goroutine per distinct provider, each with an
// independent timeout. A failing group only loses its own symbols.
func (o *Orchestrator) fetchGroups(ctx context.Context, assets []*model.Asset) (map[string]*PriceResult, []string) {
	groups := make(map[string][]*model.Asset)
	for _, asset := range assets {
		groups[o.providerName(asset)] = append(groups[o.providerName(asset)], asset)
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*PriceResult)
		failed  []string
	)
	var wg sync.WaitGroup
	for name, group := range groups {
		wg.Add(1)
		go func(name string, group []*model.Asset) {
			defer wg.Done()
			fetched, err := o.fetchGroup(ctx, name, group)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logx.WithContext(ctx).Errorf("batch: provider %s failed for %d assets: %v", name, len(group), err)
				for _, asset := range group {
					failed = append(failed, asset.Code)
				}
				return
			}
			for _, asset := range group {
				res, ok := fetched[asset.Code]
				if !ok {
					failed = append(failed, asset.Code)
					continue
				}
				results[asset.Code] = res
			}
		}(name, group)
	}
	wg.Wait()
	return results, failed
}

func (o *Orchestrator) fetchGroup(ctx context.Context, name string, group []*model.Asset) (map[string]*PriceResult, error) {
	provider, ok := o.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q not configured", ErrNoProvider, name)
	}
	if o.providerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.providerTimeout)
		defer cancel()
	}

	symbols := make([]string, 0, len(group))
	byProviderSymbol := make(map[string]*model.Asset, len(group))
	for _, asset := range group {
		symbols = append(symbols, asset.ProviderSymbol)
		byProviderSymbol[strings.ToUpper(asset.ProviderSymbol)] = asset
	}

	quotes, err := provider.FetchLatest(ctx, symbols)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*PriceResult, len(quotes))
	for symbol, quote := range quotes {
		asset, ok := byProviderSymbol[strings.ToUpper(symbol)]
		if !ok {
			continue
		}
		results[asset.Code] = o.store(ctx, asset, quote)
	}
	return results, nil
}

func (o *Orchestrator) fetchOne(ctx context.Context, asset *model.Asset) (*PriceResult, error) {
	results, err := o.fetchGroup(ctx, o.providerName(asset), []*model.Asset{asset})
	if err != nil {
		return nil, err
	}
	res, ok := results[asset.Code]
	if !ok {
		return nil, fmt.Errorf("provider returned no quote for %s", asset.Code)
	}
	return res, nil
}

// store writes an accepted quote through both tiers and publishes the
// update. L2 goes first so the L1 entry never outlives a persisted row.
func (o *Orchestrator) store(ctx context.Context, asset *model.Asset, quote pricefeed.Quote) *PriceResult {
	now := o.now().UTC()
	record := &model.LatestPrice{
		AssetId:   asset.Id,
		Price:     quote.Price,
		Source:    o.providerName(asset),
		UpdatedAt: now,
	}
	if quote.Change24h != nil {
		record.PercentChange24 = sql.NullFloat64{Float64: *quote.Change24h, Valid: true}
	}
	if _, err := o.latest.Upsert(ctx, record); err != nil {
		logx.WithContext(ctx).Errorf("store %s: upsert latest price: %v", asset.Code, err)
	}
	o.l1.Put(asset.Code, CachedPrice{
		Price:           quote.Price,
		PercentChange24: quote.Change24h,
		UpdatedAt:       now,
	})
	if o.bus != nil {
		o.bus.Publish(ctx, PriceUpdate{
			Code:            asset.Code,
			Class:           asset.Class,
			Price:           quote.Price,
			PercentChange24: quote.Change24h,
			Volume24h:       quote.Volume24h,
			Source:          record.Source,
			UpdatedAt:       now,
		})
	}
	return resultFromRecord(asset, record, SourceProvider)
}

// asset resolves a registry row, going through the Redis-backed registry
// cache when one is wired. Inactive rows resolve as not found and are
// never cached.
func (o *Orchestrator) asset(ctx context.Context, code string) (*model.Asset, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrAssetNotFound
	}

	if o.cache != nil {
		var cached model.Asset
		if err := o.cache.GetCtx(ctx, cachekeys.AssetKey(code), &cached); err == nil && cached.Id != 0 {
			return &cached, nil
		}
	}

	asset, err := o.assets.FindOneByCode(ctx, code)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	if !asset.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, code)
	}

	if o.cache != nil {
		if err := o.cache.SetWithExpireCtx(ctx, cachekeys.AssetKey(code), asset, o.ttl.Registry); err != nil {
			logx.WithContext(ctx).Errorf("asset %s: cache registry row: %v", code, err)
		}
	}
	return asset, nil
}

func (o *Orchestrator) providerName(asset *model.Asset) string {
	if asset.Provider != "" {
		return asset.Provider
	}
	return o.def
}

func normaliseCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		clean := strings.ToUpper(strings.TrimSpace(code))
		if clean == "" {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func cachedFromRecord(rec *model.LatestPrice) CachedPrice {
	entry := CachedPrice{Price: rec.Price, UpdatedAt: rec.UpdatedAt}
	if rec.PercentChange24.Valid {
		v := rec.PercentChange24.Float64
		entry.PercentChange24 = &v
	}
	return entry
}

func resultFromCache(asset *model.Asset, entry CachedPrice, source string) *PriceResult {
	return &PriceResult{
		Code:            asset.Code,
		Class:           asset.Class,
		Price:           entry.Price,
		PercentChange24: entry.PercentChange24,
		UpdatedAt:       entry.UpdatedAt,
		Source:          source,
	}
}

func resultFromRecord(asset *model.Asset, rec *model.LatestPrice, source string) *PriceResult {
	res := &PriceResult{
		Code:      asset.Code,
		Class:     asset.Class,
		Price:     rec.Price,
		UpdatedAt: rec.UpdatedAt,
		Source:    source,
	}
	if rec.PercentChange24.Valid {
		v := rec.PercentChange24.Float64
		res.PercentChange24 = &v
	}
	return res
}
