package currency

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Scheduler periodically refreshes all supported pairs against the base
// currency, feeding the persisted store and cache. It runs off the request
// path: pricing requests never wait on it.
type Scheduler struct {
	svc      *Service
	targets  []string
	interval time.Duration
	lg       *zap.Logger
}

// NewScheduler creates a refresher for base->target pairs. A non-positive
// interval defaults to 6 hours.
func NewScheduler(svc *Service, targets []string, interval time.Duration, lg *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{svc: svc, targets: targets, interval: interval, lg: lg}
}

// Run refreshes immediately, then on every tick, until the context is
// cancelled. It always returns ctx.Err(); individual refresh failures are
// logged and retried next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh fetches every base->target pair straight from the providers so a
// still-valid cache entry cannot mask a stale store row.
func (s *Scheduler) refresh(ctx context.Context) {
	base := s.svc.cfg.BaseCurrency
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, target := range s.targets {
		if target == base {
			continue
		}
		g.Go(func() error {
			value, name, ok := s.svc.fetchFromProviders(ctx, base, target)
			if !ok {
				s.lg.Warn("scheduled refresh failed",
					zap.String("base", base), zap.String("target", target))
				return nil
			}
			now := s.svc.now()
			source := sourceProviderPrefix + name
			s.svc.persist(ctx, base, target, value, source, now)
			s.svc.cache.set(base, target, value, source, now)
			return nil
		})
	}
	_ = g.Wait()

	s.lg.Info("rate refresh pass complete",
		zap.Int("pairs", len(s.targets)),
		zap.Duration("took", time.Since(start)))
}
