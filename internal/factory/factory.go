package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"insights-service/internal/analytics"
	"insights-service/internal/audit"
	"insights-service/internal/auth"
	"insights-service/internal/bucketing"
	"insights-service/internal/cache"
	"insights-service/internal/client"
	"insights-service/internal/config"
	"insights-service/internal/encryption"
	"insights-service/internal/hashing"
	"insights-service/internal/identity"
	"insights-service/internal/token"
	"insights-service/internal/util"
)

// Factory owns the lifecycle of every application dependency: clients
// first, then the managers, then the services that compose them.
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *identity.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	store             cache.Store
	tieredCache       *cache.TieredCache
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Services
	identityRepo     identity.Repository
	resolver         *identity.Resolver
	issuer           *token.Issuer
	recorder         *audit.Recorder
	authService      *auth.Service
	analyticsService *analytics.Service

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and wires the whole dependency graph.
// In development a missing backend degrades; in production it is fatal.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	factory.initializeServices()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients connects the five backends and health-checks them
// in parallel. Kafka is always optional; the rest are optional only
// outside production.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var mu sync.Mutex
	var initErrors []error
	record := func(err error) {
		mu.Lock()
		initErrors = append(initErrors, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		redisClient, err := client.NewRedisClient(f.config, util.Get())
		if err != nil {
			record(fmt.Errorf("redis: %w", err))
			return nil
		}
		if err := redisClient.HealthCheck(gctx); err != nil {
			record(fmt.Errorf("redis health check: %w", err))
			return nil
		}
		f.redisClient = redisClient
		util.Info("Redis client initialized and healthy")
		return nil
	})

	g.Go(func() error {
		scyllaClient, err := identity.NewScyllaClient(f.config, util.Get())
		if err != nil {
			record(fmt.Errorf("scylla: %w", err))
			return nil
		}
		if err := scyllaClient.HealthCheck(); err != nil {
			record(fmt.Errorf("scylla health check: %w", err))
			return nil
		}
		f.scyllaClient = scyllaClient
		util.Info("ScyllaDB client initialized and healthy")
		return nil
	})

	g.Go(func() error {
		clickhouseClient, err := client.NewClickHouseClient(f.config, util.Get())
		if err != nil {
			record(fmt.Errorf("clickhouse: %w", err))
			return nil
		}
		if err := clickhouseClient.HealthCheck(gctx); err != nil {
			record(fmt.Errorf("clickhouse health check: %w", err))
			return nil
		}
		f.clickhouseClient = clickhouseClient
		util.Info("ClickHouse client initialized and healthy")
		return nil
	})

	g.Go(func() error {
		esClient, err := client.NewElasticsearchClient(f.config, util.Get())
		if err != nil {
			record(fmt.Errorf("elasticsearch: %w", err))
			return nil
		}
		if err := esClient.HealthCheck(gctx); err != nil {
			record(fmt.Errorf("elasticsearch health check: %w", err))
			return nil
		}
		f.esClient = esClient
		util.Info("Elasticsearch client initialized and healthy")
		return nil
	})

	g.Go(func() error {
		producer, err := client.NewKafkaProducer(f.config, util.Get())
		if err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
			return nil
		}
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
		return nil
	})

	_ = g.Wait()

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers builds the cache tiers, the hasher, and the
// encryption and bucketing managers.
func (f *Factory) initializeManagers() error {
	var primary cache.Primary
	if f.redisClient != nil {
		primary = f.redisClient
	}
	f.tieredCache = cache.NewTieredCache(primary, util.Get())
	f.store = f.tieredCache

	f.hasher = hashing.NewHasher(f.config)

	encryptionManager, err := encryption.NewManager(f.config)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	f.encryptionManager = encryptionManager

	f.bucketingManager = bucketing.NewManager(f.config)

	util.Info("Managers initialized successfully",
		util.Bool("primary_cache", f.redisClient != nil),
		util.Bool("kms_enabled", f.config.KMS.Enabled),
	)
	return nil
}

// initializeServices composes the auth and analytics stacks on top of
// the clients and managers.
func (f *Factory) initializeServices() {
	if f.scyllaClient != nil {
		f.identityRepo = identity.NewScyllaRepository(f.scyllaClient)
	}

	f.resolver = identity.NewResolver(
		f.identityRepo,
		f.store,
		f.hasher,
		f.encryptionManager,
		f.bucketingManager,
		f.config.Auth.IdentityTTL,
		util.Get(),
	)

	f.issuer = token.NewIssuer(f.config.Auth.JWTSecret, f.config.Auth.TokenExpiry)
	f.recorder = audit.NewRecorder(f.esClient, f.kafkaProducer, f.bucketingManager, util.Get())

	f.authService = auth.NewService(
		f.store,
		auth.NewHTTPProvider(f.config.EmailProvider),
		f.resolver,
		f.issuer,
		f.recorder,
		f.config.Auth.OTPTTL,
		f.config.Auth.SessionTTL,
		util.Get(),
	)

	var warehouse analytics.Warehouse
	if f.clickhouseClient != nil {
		warehouse = analytics.NewClickHouseWarehouse(f.clickhouseClient)
	}
	f.analyticsService = analytics.NewService(
		warehouse,
		analytics.NewHTTPInsightProvider(f.config.Insights),
		util.Get(),
	)
}

// HealthCheck probes every dependency in parallel and returns the
// per-dependency outcome.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		mu.Lock()
		healthErrors[name] = err
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		if f.redisClient == nil {
			record("redis", fmt.Errorf("redis client not initialized"))
			return nil
		}
		record("redis", f.redisClient.HealthCheck(gctx))
		return nil
	})

	g.Go(func() error {
		if f.scyllaClient == nil {
			record("scylla", fmt.Errorf("scylla client not initialized"))
			return nil
		}
		record("scylla", f.scyllaClient.HealthCheck())
		return nil
	})

	g.Go(func() error {
		if f.clickhouseClient == nil {
			record("clickhouse", fmt.Errorf("clickhouse client not initialized"))
			return nil
		}
		record("clickhouse", f.clickhouseClient.HealthCheck(gctx))
		return nil
	})

	g.Go(func() error {
		if f.esClient == nil {
			record("elasticsearch", fmt.Errorf("elasticsearch client not initialized"))
			return nil
		}
		record("elasticsearch", f.esClient.HealthCheck(gctx))
		return nil
	})

	if f.kafkaProducer != nil {
		g.Go(func() error {
			record("kafka", f.kafkaProducer.HealthCheck(gctx))
			return nil
		})
	}

	_ = g.Wait()
	return healthErrors
}

// IsHealthy reports whether every required dependency is reachable.
// Kafka is advisory.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	for _, err := range healthErrors {
		if err != nil {
			return false
		}
	}
	return true
}

// Close tears everything down once, consumers before stores.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.tieredCache != nil {
			f.tieredCache.Close()
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) AuthService() *auth.Service {
	return f.authService
}

func (f *Factory) AnalyticsService() *analytics.Service {
	return f.analyticsService
}

func (f *Factory) TokenIssuer() *token.Issuer {
	return f.issuer
}

func (f *Factory) Resolver() *identity.Resolver {
	return f.resolver
}

func (f *Factory) Store() cache.Store {
	return f.store
}
