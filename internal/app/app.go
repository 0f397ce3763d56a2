// Package app wires configuration, storage, domain services, and the HTTP
// server into a running pricing engine.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oudhouse/pricing-engine/internal/currency"
	"github.com/oudhouse/pricing-engine/internal/domain/pricing"
	"github.com/oudhouse/pricing-engine/internal/domain/promotion"
	"github.com/oudhouse/pricing-engine/internal/domain/tax"
	"github.com/oudhouse/pricing-engine/internal/handler"
	"github.com/oudhouse/pricing-engine/internal/storage/postgres"
	"github.com/oudhouse/pricing-engine/pkg/health"
	"github.com/oudhouse/pricing-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the rate
// refresher, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Repositories.
	promoRepo := postgres.NewPromotionRepository(pool)
	rateRepo := postgres.NewRateRepository(pool)

	// Currency service: cache, store, providers, static fallback.
	providers := make([]currency.Provider, 0, len(cfg.Rates.Providers))
	for _, spec := range cfg.Rates.ParseProviders() {
		providers = append(providers, currency.NewHTTPProvider(spec.Name, spec.Endpoint, nil))
	}
	rateSvc := currency.NewService(currency.Config{
		BaseCurrency:    cfg.Rates.BaseCurrency,
		CacheTTL:        cfg.Rates.CacheTTL,
		ProviderTimeout: cfg.Rates.ProviderTimeout,
		StoreValidity:   cfg.Rates.StoreValidity,
	}, rateRepo, providers, lg.Named("rates"))

	// Domain services.
	promoEngine := promotion.NewEngine(promoRepo, lg.Named("promotions"))
	resolverCfg := tax.DefaultResolverConfig()
	if rate, ok := resolverCfg.CountryRates[cfg.Country]; ok {
		// Unknown destination countries fall back to the home
		// jurisdiction's standard rate.
		resolverCfg.DefaultRate = rate
	}
	resolver := tax.NewResolver(resolverCfg)
	pricingSvc := pricing.NewService(promoEngine, resolver, rateSvc, lg.Named("pricing"))

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if len(cfg.Rates.Targets) > 0 {
		base, target := cfg.Rates.BaseCurrency, cfg.Rates.Targets[0]
		healthSvc.AddReadinessCheck("rates", 5*time.Second, func(ctx context.Context) error {
			r, err := rateSvc.Rate(ctx, base, target)
			if err != nil {
				return err
			}
			if r.Degraded {
				return errors.Errorf("rate %s/%s served from static fallback", base, target)
			}
			return nil
		})
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(500*time.Millisecond))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(pricingSvc, promoEngine, rateSvc, lg.Named("http")).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("pricing-api"),
			httpmiddleware.LogRequests(),
		),
	}

	g, ctx := errgroup.WithContext(ctx)

	// Background rate refresher.
	scheduler := currency.NewScheduler(rateSvc, cfg.Rates.Targets, cfg.Rates.RefreshInterval, lg.Named("refresher"))
	g.Go(func() error {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "rate refresher")
		}
		return nil
	})

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
