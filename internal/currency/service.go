package currency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oudhouse/pricing-engine/internal/domain/money"
)

// Config tunes the resolution chain.
type Config struct {
	// BaseCurrency is the home currency used for cross rates and scheduled
	// refreshes.
	BaseCurrency string
	// CacheTTL bounds how long an in-process cached rate is served.
	CacheTTL time.Duration
	// ProviderTimeout bounds each individual provider attempt.
	ProviderTimeout time.Duration
	// StoreValidity is how long a provider-fetched rate stays valid in the
	// persisted store.
	StoreValidity time.Duration
}

// DefaultConfig returns the production defaults: 30m cache, 5s per provider
// attempt, 24h persisted validity, AED base.
func DefaultConfig() Config {
	return Config{
		BaseCurrency:    "AED",
		CacheTTL:        30 * time.Minute,
		ProviderTimeout: 5 * time.Second,
		StoreValidity:   24 * time.Hour,
	}
}

// Service resolves and converts exchange rates. Resolution order: in-process
// cache, persisted store, external providers in priority order, then cross
// rates via the base currency, and finally the static fallback table.
type Service struct {
	cfg       Config
	cache     *rateCache
	store     Store
	providers []Provider
	lg        *zap.Logger
	now       func() time.Time
}

// NewService wires a Service. Providers are tried in slice order.
func NewService(cfg Config, store Store, providers []Provider, lg *zap.Logger) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 5 * time.Second
	}
	if cfg.StoreValidity <= 0 {
		cfg.StoreValidity = 24 * time.Hour
	}
	if cfg.BaseCurrency == "" {
		cfg.BaseCurrency = "AED"
	}
	return &Service{
		cfg:       cfg,
		cache:     newRateCache(cfg.CacheTTL),
		store:     store,
		providers: providers,
		lg:        lg,
		now:       time.Now,
	}
}

// Rate resolves the exchange rate for a currency pair.
func (s *Service) Rate(ctx context.Context, from, to string) (Rate, error) {
	if !money.Known(from) {
		return Rate{}, errors.Wrap(ErrUnknownCurrency, from)
	}
	if !money.Known(to) {
		return Rate{}, errors.Wrap(ErrUnknownCurrency, to)
	}
	now := s.now()
	if from == to {
		return Rate{Base: from, Target: to, Value: decimal.NewFromInt(1), Source: SourceIdentity, FetchedAt: now}, nil
	}

	if r, ok := s.resolveLive(ctx, from, to); ok {
		return r, nil
	}

	// Cross via the base currency when the direct pair has no live rate.
	if from != s.cfg.BaseCurrency && to != s.cfg.BaseCurrency {
		leg1, ok1 := s.resolveLive(ctx, from, s.cfg.BaseCurrency)
		leg2, ok2 := s.resolveLive(ctx, s.cfg.BaseCurrency, to)
		if ok1 && ok2 {
			value := leg1.Value.Mul(leg2.Value).Round(8)
			s.cache.set(from, to, value, SourceCross, now)
			return Rate{Base: from, Target: to, Value: value, Source: SourceCross, FetchedAt: now}, nil
		}
	}

	// Every live layer failed: serve the static table, flagged degraded.
	if value, ok := staticRate(from, to); ok {
		s.lg.Warn("serving degraded fallback rate",
			zap.String("base", from), zap.String("target", to))
		return Rate{Base: from, Target: to, Value: value, Source: SourceFallback, FetchedAt: now, Degraded: true}, nil
	}
	return Rate{}, errors.Wrapf(ErrRateUnavailable, "%s/%s", from, to)
}

// resolveLive runs the cache, store, and provider layers for one direct pair.
func (s *Service) resolveLive(ctx context.Context, from, to string) (Rate, bool) {
	now := s.now()
	if from == to {
		return Rate{Base: from, Target: to, Value: decimal.NewFromInt(1), Source: SourceIdentity, FetchedAt: now}, true
	}

	if e, ok := s.cache.get(from, to, now); ok {
		return Rate{Base: from, Target: to, Value: e.value, Source: SourceCache, FetchedAt: e.storedAt}, true
	}

	if s.store != nil {
		stored, err := s.store.Latest(ctx, from, to)
		switch {
		case err == nil:
			s.cache.set(from, to, stored.Value, SourceStore, now)
			return Rate{Base: from, Target: to, Value: stored.Value, Source: SourceStore, FetchedAt: stored.ValidFrom}, true
		case !errors.Is(err, ErrNoStoredRate):
			s.lg.Warn("rate store lookup failed",
				zap.String("base", from), zap.String("target", to), zap.Error(err))
		}
	}

	if value, name, ok := s.fetchFromProviders(ctx, from, to); ok {
		source := sourceProviderPrefix + name
		s.persist(ctx, from, to, value, source, now)
		s.cache.set(from, to, value, source, now)
		return Rate{Base: from, Target: to, Value: value, Source: source, FetchedAt: now}, true
	}
	return Rate{}, false
}

// fetchFromProviders tries each provider in order with an individual
// timeout. The caller's deadline aborts remaining attempts.
func (s *Service) fetchFromProviders(ctx context.Context, from, to string) (decimal.Decimal, string, bool) {
	for _, p := range s.providers {
		if ctx.Err() != nil {
			return decimal.Zero, "", false
		}
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		value, err := p.FetchRate(attemptCtx, from, to)
		cancel()
		if err != nil {
			s.lg.Warn("rate provider failed",
				zap.String("provider", p.Name()),
				zap.String("base", from), zap.String("target", to),
				zap.Error(err))
			continue
		}
		return value, p.Name(), true
	}
	return decimal.Zero, "", false
}

func (s *Service) persist(ctx context.Context, from, to string, value decimal.Decimal, source string, now time.Time) {
	if s.store == nil {
		return
	}
	err := s.store.Insert(ctx, StoredRate{
		Base:       from,
		Target:     to,
		Value:      value,
		Source:     source,
		ValidFrom:  now,
		ValidUntil: now.Add(s.cfg.StoreValidity),
	})
	if err != nil {
		// Persisting is best-effort; the request still has its rate.
		s.lg.Warn("persist rate failed",
			zap.String("base", from), zap.String("target", to), zap.Error(err))
	}
}

// Convert converts an amount between currencies, rounding the result to the
// target currency's precision.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, Rate, error) {
	rate, err := s.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, Rate{}, err
	}
	return money.Round(amount.Mul(rate.Value), to), rate, nil
}
