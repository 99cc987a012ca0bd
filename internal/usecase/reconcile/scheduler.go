package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs ReconcileAll on a fixed interval until ctx is cancelled.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	log      *zap.SugaredLogger
}

func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	return &Scheduler{svc: svc, interval: interval, log: svc.log}
}

func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.Infow("reconciliation scheduler started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("reconciliation scheduler stopped")
			return
		case <-t.C:
			drifted, err := s.svc.ReconcileAll(ctx)
			if err != nil {
				s.log.Errorw("reconciliation sweep failed", "error", err)
			}
			if len(drifted) > 0 {
				s.log.Warnw("reconciliation sweep found drift", "loans", len(drifted))
			}
		}
	}
}
