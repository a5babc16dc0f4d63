package svc

import (
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "investsim-api/internal/cache"
	"investsim-api/internal/config"
	"investsim-api/internal/engine"
	"investsim-api/internal/model"
	"investsim-api/pkg/pricefeed"
	_ "investsim-api/pkg/pricefeed/binance"
	_ "investsim-api/pkg/pricefeed/finnhub"
	_ "investsim-api/pkg/pricefeed/frankfurter"
	_ "investsim-api/pkg/pricefeed/metalsproxy"
)

type ServiceContext struct {
	Config config.Config

	ProviderConfig  *pricefeed.Config
	Providers       map[string]pricefeed.Provider
	DefaultProvider pricefeed.Provider

	DBConn            sqlx.SqlConn
	AssetsModel       model.AssetsModel
	LatestPricesModel model.LatestPricesModel
	PriceHistoryModel model.PriceHistoryModel

	Redis *redis.Redis
	TTL   cachekeys.TTLSet

	Bus          *engine.EventBus
	Orchestrator *engine.Orchestrator
	History      *engine.HistoryAggregator
	Refresher    *engine.Refresher
	Backfiller   *engine.Backfiller
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		TTL:    cachekeys.NewTTLSet(c.TTL),
	}

	if c.Providers.Value != nil {
		providerCfg := c.Providers.Value
		providers, err := providerCfg.BuildProviders()
		if err != nil {
			log.Fatalf("failed to build price providers: %v", err)
		}
		svc.ProviderConfig = providerCfg
		svc.Providers = providers
		if providerCfg.Default != "" {
			svc.DefaultProvider = providers[providerCfg.Default]
		}
	}

	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn
		svc.AssetsModel = model.NewAssetsModel(conn)
		svc.LatestPricesModel = model.NewLatestPricesModel(conn)
		svc.PriceHistoryModel = model.NewPriceHistoryModel(conn)
	} else if !c.IsTestEnv() {
		log.Fatalf("postgres is required when env is %q", c.Env)
	}

	var registryCache gocache.Cache
	if len(c.Redis.Host) > 0 {
		svc.Redis = redis.MustNewRedis(c.Redis)
		registryCache = gocache.NewNode(
			svc.Redis,
			syncx.NewSingleFlight(),
			gocache.NewStat(cachekeys.Namespace),
			model.ErrNotFound,
		)
	}

	svc.Bus = engine.NewEventBus(svc.Redis)

	defaultName := ""
	if svc.ProviderConfig != nil {
		defaultName = svc.ProviderConfig.Default
	}
	if svc.AssetsModel == nil {
		return svc
	}
	svc.Orchestrator = engine.New(engine.Config{
		Assets:          svc.AssetsModel,
		Latest:          svc.LatestPricesModel,
		Cache:           registryCache,
		Providers:       svc.Providers,
		Default:         defaultName,
		TTL:             svc.TTL,
		Bus:             svc.Bus,
		MaxBatchFetch:   c.Engine.MaxBatchFetch,
		ProviderTimeout: time.Duration(c.Engine.ProviderTimeoutMs) * time.Millisecond,
	})
	svc.History = engine.NewHistoryAggregator(svc.AssetsModel, svc.PriceHistoryModel, nil)
	svc.Refresher = engine.NewRefresher(
		svc.Orchestrator,
		svc.AssetsModel,
		c.Engine.BatchSize,
		time.Duration(c.Engine.BatchDelayMs)*time.Millisecond,
	)
	svc.Backfiller = engine.NewBackfiller(
		svc.AssetsModel,
		svc.PriceHistoryModel,
		svc.Providers,
		defaultName,
		time.Duration(c.Engine.ProviderTimeoutMs)*time.Millisecond,
		nil,
	)

	return svc
}
