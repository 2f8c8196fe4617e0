package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/formlab/formd/internal/api"
	"github.com/formlab/formd/internal/cache"
	"github.com/formlab/formd/internal/catalog"
	"github.com/formlab/formd/internal/config"
	"github.com/formlab/formd/internal/health"
	"github.com/formlab/formd/internal/jobs"
	"github.com/formlab/formd/internal/log"
	"github.com/formlab/formd/internal/pose"
	"github.com/formlab/formd/internal/storage"
	"github.com/formlab/formd/internal/store"
	"github.com/formlab/formd/internal/telemetry"
)

// cacheJanitorInterval is how often the in-memory cache evicts expired
// pose results.
const cacheJanitorInterval = 5 * time.Minute

// Pipeline is the wired analysis core shared by serve mode and one-shot
// runs: the job runner plus the stores it writes to.
type Pipeline struct {
	Runner  *jobs.Runner
	Catalog *catalog.Store
	Runs    store.Store

	poseCache cache.Cache
	redis     *cache.RedisCache
}

// WirePipeline opens the stores and builds the job runner. Callers own the
// lifecycle: Close must run once the pipeline is done. Startup checks are
// the caller's responsibility.
func WirePipeline(ctx context.Context, cfg config.AppConfig) (*Pipeline, error) {
	if ctx == nil {
		return nil, fmt.Errorf("wire pipeline context is nil")
	}
	logger := log.WithComponent("bootstrap")

	runs, err := store.Open(cfg.Store.Backend, cfg.StateDir())
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	catalogStore, err := catalog.Open(cfg.CatalogDBPath())
	if err != nil {
		_ = runs.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	poseCache, redisCache, err := buildCache(cfg, logger)
	if err != nil {
		_ = catalogStore.Close()
		_ = runs.Close()
		return nil, err
	}

	var mirror *storage.Mirror
	if cfg.Mirror.Enabled {
		mirror, err = storage.NewMirror(cfg.Mirror)
		if err != nil {
			_ = catalogStore.Close()
			_ = runs.Close()
			return nil, fmt.Errorf("initialize mirror: %w", err)
		}
	}

	estimator := pose.NewCachedEstimator(buildEstimator(cfg.Pose), poseCache, cfg.Cache.TTL)

	runner := jobs.NewRunner(cfg, jobs.Deps{
		Estimator: estimator,
		Catalog:   catalogStore,
		Runs:      runs,
		Mirror:    mirror,
	})

	return &Pipeline{
		Runner:    runner,
		Catalog:   catalogStore,
		Runs:      runs,
		poseCache: poseCache,
		redis:     redisCache,
	}, nil
}

// Close aborts any in-flight run, then releases the cache and stores in
// reverse open order.
func (p *Pipeline) Close() error {
	p.Runner.Abort()

	var errs []error
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis cache: %w", err))
		}
	} else if stopper, ok := p.poseCache.(interface{ Stop() }); ok {
		stopper.Stop()
	}
	if err := p.Catalog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("catalog: %w", err))
	}
	if err := p.Runs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("run store: %w", err))
	}
	return errors.Join(errs...)
}

// CacheHealth returns a connectivity probe for the cache backend, or nil
// when the backend has nothing meaningful to probe.
func (p *Pipeline) CacheHealth() func(ctx context.Context) error {
	if p.redis == nil {
		return nil
	}
	return p.redis.HealthCheck
}

// Container is the production composition root output.
type Container struct {
	Config  config.AppConfig
	Logger  zerolog.Logger
	Server  *api.Server
	Manager Manager
	App     *App
	Runner  *jobs.Runner
	Health  *health.Manager
}

// WireServices builds the production dependency graph and returns a
// runnable container. Resources are registered as shutdown hooks on the
// manager; hooks run LIFO, so the pipeline closes before trace export.
func WireServices(ctx context.Context, cfg config.AppConfig) (*Container, error) {
	if ctx == nil {
		return nil, fmt.Errorf("wire services context is nil")
	}

	logger := log.WithComponent("bootstrap")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return nil, fmt.Errorf("startup checks failed: %w", err)
	}

	logger.Info().
		Str("event", "startup").
		Str("version", cfg.Version).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting formd")
	logger.Info().Msgf("→ Library: %s (watch: %v)", cfg.Ingest.RawDir, cfg.Ingest.Watch)
	logger.Info().Msgf("→ Pose: %s", describePose(cfg.Pose))
	logger.Info().Msgf("→ Cache: %s", cfg.Cache.Backend)
	logger.Info().Msgf("→ Run store: %s", cfg.Store.Backend)
	if cfg.API.Token != "" {
		logger.Info().Str("event", "auth.configured").Msg("→ API token: configured")
	} else {
		logger.Warn().
			Str("security", "weak").
			Msg("→ API token: NOT configured. Set FORMD_API_TOKEN to protect POST /api/analyze.")
	}
	if cfg.Mirror.Enabled {
		logger.Info().Msgf("→ Mirror: %s/%s", cfg.Mirror.Endpoint, cfg.Mirror.Bucket)
	}
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)

	// Registered in open order; the manager runs them LIFO.
	var hooks []namedHook

	// Telemetry is best-effort: a missing collector must not block startup.
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        true,
			ServiceName:    "formd",
			ServiceVersion: cfg.Version,
			Protocol:       cfg.Telemetry.Protocol,
			Endpoint:       cfg.Telemetry.Endpoint,
			Insecure:       cfg.Telemetry.Insecure,
			SampleRatio:    cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			logger.Warn().Err(err).
				Str("event", "telemetry.init_failed").
				Msg("telemetry initialization failed, continuing without tracing")
		} else {
			logger.Info().
				Str("event", "telemetry.initialized").
				Str("endpoint", cfg.Telemetry.Endpoint).
				Float64("sample_ratio", cfg.Telemetry.SampleRatio).
				Msg("trace export enabled")
			hooks = append(hooks, namedHook{"telemetry", provider.Shutdown})
		}
	}

	pipeline, err := WirePipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}
	hooks = append(hooks, namedHook{"pipeline", func(context.Context) error { return pipeline.Close() }})

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewDirChecker("library_root", cfg.Ingest.RawDir))
	hm.RegisterChecker(health.NewDirChecker("data_dir", cfg.DataDir))
	hm.RegisterChecker(health.NewFileChecker("labels_file", cfg.Catalog.LabelsFile))
	hm.RegisterChecker(health.NewLastRunChecker(pipeline.Runner.LastRun))
	if probe := pipeline.CacheHealth(); probe != nil {
		hm.RegisterChecker(health.NewPingChecker("cache", probe))
	}

	server := api.New(cfg, api.Deps{
		Health:  hm,
		Runner:  pipeline.Runner,
		Catalog: pipeline.Catalog,
		Runs:    pipeline.Runs,
	})

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.Handler()
	}

	mgr, err := NewManager(ServerConfigFrom(cfg), Deps{
		Logger:         logger,
		APIHandler:     server.Router(),
		MetricsHandler: metricsHandler,
	})
	if err != nil {
		_ = pipeline.Close()
		return nil, fmt.Errorf("create daemon manager: %w", err)
	}
	for _, h := range hooks {
		mgr.RegisterShutdownHook(h.name, h.hook)
	}

	app, err := NewApp(logger, cfg, mgr, pipeline.Runner)
	if err != nil {
		return nil, fmt.Errorf("create daemon app: %w", err)
	}

	return &Container{
		Config:  cfg,
		Logger:  logger,
		Server:  server,
		Manager: mgr,
		App:     app,
		Runner:  pipeline.Runner,
		Health:  hm,
	}, nil
}

// Run starts the daemon app loop and blocks until shutdown.
func (c *Container) Run(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("run context is nil")
	}
	if c.App == nil || c.Manager == nil {
		return fmt.Errorf("container is not fully initialized")
	}
	return c.App.Run(ctx)
}

func buildCache(cfg config.AppConfig, logger zerolog.Logger) (cache.Cache, *cache.RedisCache, error) {
	if cfg.Cache.Backend == "redis" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{Addr: cfg.Cache.RedisAddr}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return rc, rc, nil
	}
	return cache.NewMemoryCache(cacheJanitorInterval), nil, nil
}

func buildEstimator(cfg config.PoseSettings) pose.Estimator {
	if cfg.Mode == "remote" {
		return pose.NewRemoteEstimator(pose.RemoteConfig{
			URL:       cfg.URL,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
		})
	}
	return pose.NewStubEstimator()
}

func describePose(cfg config.PoseSettings) string {
	if cfg.Mode == "remote" {
		return fmt.Sprintf("remote (%s)", maskURL(cfg.URL))
	}
	return "stub (deterministic)"
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsed.User = nil
	return parsed.String()
}
