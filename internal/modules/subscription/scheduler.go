// README: Background sweep that keeps rides generated up to the horizon and expires ended subscriptions.
package subscription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"schoolride/internal/types"
)

type SweepResult struct {
	Expired   int64
	Processed int
	Skipped   int
	Failed    int
	Rides     int
}

// RunGenerationTicker sweeps once immediately and then on every tick until
// ctx is cancelled.
func (s *Service) RunGenerationTicker(ctx context.Context) {
	interval := time.Duration(s.cfg.TickSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("subscription sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce generates up to the horizon for every eligible subscription
// (clamped to each end date), then expires subscriptions past their end
// date. A failing subscription is logged and does not stop the sweep.
func (s *Service) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	today := s.Today()

	subs, err := s.repo.ListEligible(ctx, today)
	if err != nil {
		return res, err
	}

	upTo := s.Horizon()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, sub := range subs {
		g.Go(func() error {
			n, err := s.generateWithRetry(gctx, sub.ID, upTo)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrGenerationInProgress), errors.Is(err, ErrInvalidState):
				res.Skipped++
			case err != nil:
				res.Failed++
				s.log.WithError(err).WithField("subscription_id", sub.ID).Warn("sweep: generation failed")
			default:
				res.Processed++
				res.Rides += n
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() == nil {
		expired, err := s.repo.ExpireEnded(ctx, today)
		if err != nil {
			return res, err
		}
		res.Expired = expired
	}

	s.log.WithFields(logrus.Fields{
		"expired":   res.Expired,
		"processed": res.Processed,
		"skipped":   res.Skipped,
		"failed":    res.Failed,
		"rides":     res.Rides,
		"up_to":     upTo.Format(types.DateLayout),
	}).Info("subscription sweep finished")
	return res, ctx.Err()
}

// generateWithRetry re-runs generation when the checkpoint moved under us.
// Each attempt starts from a fresh read, so rides already created are skipped.
func (s *Service) generateWithRetry(ctx context.Context, id types.ID, upTo time.Time) (int, error) {
	total := 0
	for attempt := 0; ; attempt++ {
		n, err := s.generate(ctx, id, upTo)
		total += n
		if !errors.Is(err, ErrCheckpointConflict) || attempt >= s.cfg.MaxConflictRetries {
			return total, err
		}
	}
}
