package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fractionax_search/internal/classifier"
	apphttp "fractionax_search/internal/http"
	"fractionax_search/internal/http/router"
	"fractionax_search/internal/maps"
	"fractionax_search/internal/pipeline"
	"fractionax_search/internal/search"
	"fractionax_search/internal/searchapi"
	"fractionax_search/platform/config"
	"fractionax_search/platform/events"
	"fractionax_search/platform/logger"
	"fractionax_search/platform/validator"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var cache maps.Cache
	checks := map[string]apphttp.HealthChecker{}
	if cfg.IsCacheEnabled() {
		redisCache, closeCache := initCache(ctx, cfg, log)
		if redisCache != nil {
			defer closeCache()
			cache = redisCache
			checks["cache"] = redisCache
		}
	} else {
		log.Warn("REDIS_URL not configured; maps responses will not be cached")
	}

	policy, err := classifier.LoadPolicy(cfg.GetClassifierPolicyPath())
	if err != nil {
		log.Error("failed to load classifier policy", "error", err, "path", cfg.GetClassifierPolicyPath())
		panic("failed to load classifier policy: " + err.Error())
	}
	queryClassifier := classifier.New(policy)
	log.Info("classifier ready", "rules", queryClassifier.Rules())

	// Event bus for session activity
	eventBus := events.NewInMemoryBus(log)
	registerEventLogging(eventBus, log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	mapsModule := maps.NewModule(cfg, cache, log)
	searchClient := searchapi.NewClient(cfg, log)

	searchModule := search.NewModule(cfg, pipeline.Deps{
		Provider:   mapsModule.Service(),
		Searcher:   searchClient,
		Classifier: queryClassifier,
		Bus:        eventBus,
		Log:        log,
	}, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Checks: checks,
		Modules: []apphttp.Module{
			mapsModule,
			searchModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	for _, r := range app.Runners() {
		r := r
		g.Go(func() error {
			return r.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		eventBus.Wait()
		panic("server error: " + err.Error())
	}
	eventBus.Wait()
	log.Info("server stopped")
}

func initCache(ctx context.Context, cfg config.CacheConfig, log *logger.Logger) (*maps.RedisCache, func()) {
	redisCache, err := maps.NewRedisCacheFromURL(cfg.GetRedisURL(), cfg.GetMapsCacheTTL(), log)
	if err != nil {
		log.Error("invalid REDIS_URL; maps cache disabled", "error", err)
		return nil, nil
	}

	if err := withRetry(ctx, log, "redis connection", 3, time.Second, func() error {
		return redisCache.Ping(ctx)
	}); err != nil {
		log.Warn("redis unreachable; maps cache disabled", "error", err)
		_ = redisCache.Close()
		return nil, nil
	}
	log.Info("maps cache connected", "ttl", cfg.GetMapsCacheTTL())

	return redisCache, func() {
		_ = redisCache.Close()
	}
}

func registerEventLogging(bus events.Bus, log *logger.Logger) {
	bus.SubscribeAll(events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		switch ev := e.(type) {
		case pipeline.AddressSelected:
			log.Info("address selected", "session_id", ev.SessionID, "valid", ev.Valid, "hasCoordinates", ev.HasCoordinates, "missing", ev.MissingFields)
		case pipeline.SearchCompleted:
			log.Info("search completed", "session_id", ev.SessionID, "mode", ev.Mode, "listings", ev.Listings)
		case pipeline.SearchFailed:
			log.Warn("search failed", "session_id", ev.SessionID, "class", ev.Class, "reason", ev.Reason)
		default:
			log.Info("session event", "event", e.EventName(), "session_id", e.Subject())
		}
		return nil
	}))
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
