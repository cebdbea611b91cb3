package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/live-match/internal/config"
	"github.com/riskibarqy/live-match/internal/domain/audit"
	"github.com/riskibarqy/live-match/internal/domain/match"
	"github.com/riskibarqy/live-match/internal/domain/scoring"
	"github.com/riskibarqy/live-match/internal/domain/streampool"
	"github.com/riskibarqy/live-match/internal/domain/team"
	"github.com/riskibarqy/live-match/internal/domain/tournament"
	auditsink "github.com/riskibarqy/live-match/internal/infrastructure/audit"
	"github.com/riskibarqy/live-match/internal/infrastructure/broadcast/youtube"
	cacherepo "github.com/riskibarqy/live-match/internal/infrastructure/repository/cache"
	"github.com/riskibarqy/live-match/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/live-match/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/live-match/internal/interfaces/httpapi"
	"github.com/riskibarqy/live-match/internal/observability"
	"github.com/riskibarqy/live-match/internal/platform/cache"
	idgen "github.com/riskibarqy/live-match/internal/platform/id"
	"github.com/riskibarqy/live-match/internal/platform/logging"
	"github.com/riskibarqy/live-match/internal/platform/resilience"
	"github.com/riskibarqy/live-match/internal/usecase"
)

// Server is the HTTP server plus the resources it owns.
type Server struct {
	*http.Server
	closers []func() error
}

// Cleanup releases owned resources in reverse order of acquisition.
func (s *Server) Cleanup() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = crerr.CombineErrors(err, s.closers[i]())
	}
	return err
}

type stores struct {
	matches     match.Repository
	teams       team.Repository
	tournaments tournament.Repository
	pool        streampool.Repository
	sets        scoring.SetStore
	auditWriter audit.Writer
}

func NewHTTPServer(ctx context.Context, cfg config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	out := &Server{}
	fail := func(err error) (*Server, error) {
		return nil, crerr.CombineErrors(err, out.Cleanup())
	}

	st, err := buildStores(ctx, cfg, logger, out)
	if err != nil {
		return fail(err)
	}
	if err := wrapWithCache(ctx, cfg, &st, out); err != nil {
		return fail(err)
	}

	ids := idgen.NewUUIDGenerator()
	sink, err := buildAuditSink(cfg, st.auditWriter, ids, logger, out)
	if err != nil {
		return fail(err)
	}

	var (
		metrics        usecase.Metrics = usecase.NewNoopMetrics()
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		prom := observability.NewPrometheusMetrics(nil)
		metrics = prom
		metricsHandler = prom.Handler()
	}

	provider := youtube.NewClient(youtube.ClientConfig{
		BaseURL:     cfg.BroadcastBaseURL,
		AccessToken: cfg.BroadcastAccessToken,
		Timeout:     cfg.BroadcastTimeout,
		MaxRetries:  cfg.BroadcastMaxRetries,
		CircuitBreaker: resilience.BreakerConfig{
			Enabled:          cfg.BroadcastCircuitEnabled,
			FailureThreshold: cfg.BroadcastCircuitFailureCount,
			OpenTimeout:      cfg.BroadcastCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.BroadcastCircuitHalfOpenMaxReq,
		},
		Logger: logger,
	})

	poolSvc := usecase.NewStreamPoolService(st.pool, provider, ids, sink, metrics, usecase.StreamPoolConfig{
		StuckThreshold:       cfg.PoolStuckThreshold,
		Retention:            cfg.PoolRetention,
		ProvisionConcurrency: cfg.PoolProvisionConcurrency,
		OverlayBaseURL:       cfg.OverlayBaseURL,
	}, logger)
	matchSvc := usecase.NewMatchService(st.matches, st.teams, st.tournaments, poolSvc, provider, ids, sink, metrics, usecase.MatchConfig{
		DefaultStartLead: cfg.MatchDefaultStartLead,
		Privacy:          cfg.BroadcastPrivacy,
		DefaultRules:     cfg.DefaultRules,
	}, logger)
	autoLiveSvc := usecase.NewAutoLiveService(st.matches, poolSvc, provider, sink, metrics, usecase.AutoLiveConfig{
		SettleDelay: cfg.AutoLiveSettleDelay,
	}, logger)
	scoreSvc := usecase.NewScoreService(st.matches, st.sets, cfg.DefaultRules, sink, metrics, logger)

	handler := httpapi.NewHandler(matchSvc, poolSvc, autoLiveSvc, scoreSvc, logger)
	router := httpapi.NewRouter(handler, logger, httpapi.RouterConfig{
		AdminToken:         cfg.AdminAPIToken,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsHandler:     metricsHandler,
	})

	out.Server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("http server built",
		"store_backend", cfg.StoreBackend,
		"cache_backend", cfg.CacheBackend,
		"metrics_enabled", cfg.MetricsEnabled,
	)
	return out, nil
}

func buildStores(ctx context.Context, cfg config.Config, logger *logging.Logger, out *Server) (stores, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		matches := memory.NewMatchRepository()
		return stores{
			matches:     matches,
			teams:       memory.NewTeamRepository(memory.SeedTeams()),
			tournaments: memory.NewTournamentRepository(memory.SeedTournaments()),
			pool:        memory.NewStreamPoolRepository(),
			sets:        memory.NewSetStore(matches),
			auditWriter: memory.NewAuditWriter(),
		}, nil
	case config.StoreBackendPostgres:
		db, err := openDB(ctx, cfg)
		if err != nil {
			return stores{}, err
		}
		out.closers = append(out.closers, db.Close)

		if err := postgres.BootstrapSeed(ctx, db); err != nil {
			return stores{}, fmt.Errorf("bootstrap seed: %w", err)
		}
		return postgresStores(db), nil
	default:
		return stores{}, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func postgresStores(db *sqlx.DB) stores {
	return stores{
		matches:     postgres.NewMatchRepository(db),
		teams:       postgres.NewTeamRepository(db),
		tournaments: postgres.NewTournamentRepository(db),
		pool:        postgres.NewStreamPoolRepository(db),
		sets:        postgres.NewSetStore(db),
		auditWriter: postgres.NewAuditWriter(db),
	}
}

// wrapWithCache decorates the read-mostly stores. Matches and the stream
// pool are never cached.
func wrapWithCache(ctx context.Context, cfg config.Config, st *stores, out *Server) error {
	var store cache.Store
	switch cfg.CacheBackend {
	case config.CacheBackendNone:
		return nil
	case config.CacheBackendMemory:
		store = cache.NewMemoryStore(cfg.CacheTTL)
	case config.CacheBackendRedis:
		redisStore := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.ServiceName + ":",
			TTL:      cfg.CacheTTL,
		})
		out.closers = append(out.closers, redisStore.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := redisStore.Ping(pingCtx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		store = redisStore
	default:
		return fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
	}

	readThrough := cache.NewReadThrough(store)
	st.teams = cacherepo.NewTeamRepository(st.teams, readThrough)
	st.tournaments = cacherepo.NewTournamentRepository(st.tournaments, readThrough)
	st.sets = cacherepo.NewSetStore(st.sets, readThrough)
	return nil
}

func buildAuditSink(cfg config.Config, writer audit.Writer, ids idgen.Generator, logger *logging.Logger, out *Server) (audit.Sink, error) {
	sink, err := auditsink.NewAsyncSink(writer, ids, auditsink.AsyncSinkConfig{
		Workers:      cfg.AuditWorkers,
		WriteTimeout: cfg.AuditWriteTimeout,
	}, logger)
	if err != nil {
		logger.Warn("async audit sink unavailable, falling back to log sink", "error", err)
		return auditsink.NewLogSink(logger), nil
	}
	out.closers = append(out.closers, func() error {
		return sink.Close(cfg.AuditWriteTimeout)
	})
	return sink, nil
}
