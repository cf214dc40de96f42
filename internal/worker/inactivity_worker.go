package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/repository"
	"github.com/spec-kit/ticket-desk/internal/service"
)

// InactivitySweeper periodically flags idle tickets and auto-closes
// stale ones. It feeds synthetic events through the same lifecycle entry
// points as live user actions, so it inherits every transition guard.
type InactivitySweeper struct {
	cfg       config.SchedulerConfig
	lifecycle *service.LifecycleService
	tickets   repository.TicketRepository
	activity  repository.ActivityCache
	metrics   *observability.Metrics
	logger    *zap.Logger
	cron      *cron.Cron
	baseCtx   context.Context
	cancel    context.CancelFunc

	// now is replaceable in tests.
	now func() time.Time
}

// NewInactivitySweeper constructs the sweeper.
func NewInactivitySweeper(cfg config.SchedulerConfig, lifecycle *service.LifecycleService, tickets repository.TicketRepository, activity repository.ActivityCache, metrics *observability.Metrics, logger *zap.Logger) *InactivitySweeper {
	return &InactivitySweeper{
		cfg:       cfg,
		lifecycle: lifecycle,
		tickets:   tickets,
		activity:  activity,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Start schedules the sweep. No-op when the scheduler is disabled.
func (s *InactivitySweeper) Start() error {
	if !s.cfg.Enabled {
		s.logger.Info("inactivity sweep disabled")
		return nil
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.SweepSpec, func() {
		if err := s.Sweep(s.baseCtx); err != nil {
			s.logger.Error("sweep aborted", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("inactivity sweep scheduled", zap.String("spec", s.cfg.SweepSpec))
	return nil
}

// Stop cancels future sweeps and waits for a running one to finish its
// current ticket.
func (s *InactivitySweeper) Stop() {
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
}

// Sweep walks every non-terminal ticket once. Per-ticket failures are
// recorded and skipped; the sweep only aborts when ctx is cancelled,
// and never mid-ticket.
func (s *InactivitySweeper) Sweep(ctx context.Context) error {
	start := s.now()
	tickets, err := s.tickets.ListAllNonTerminal(ctx)
	if err != nil {
		return err
	}
	for i := range tickets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.sweepTicket(ctx, &tickets[i]); err != nil {
			if s.metrics != nil {
				s.metrics.SweepErrors.Inc()
			}
			s.logger.Warn("sweep failed for ticket",
				zap.String("ticket_id", tickets[i].ID), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(s.now().Sub(start).Seconds())
	}
	return nil
}

func (s *InactivitySweeper) sweepTicket(ctx context.Context, ticket *domain.Ticket) error {
	last := ticket.LastActivity
	if s.activity != nil {
		if cached, err := s.activity.Last(ctx, ticket.ID); err == nil && cached.After(last) {
			last = cached
		}
	}

	idle := s.now().Sub(last)
	switch {
	case idle > s.cfg.AutoCloseThreshold:
		// Close re-checks state under the ticket lock, so a double
		// sweep or a racing user close stays a single transition.
		_, err := s.lifecycle.Close(ctx, ticket.ID, service.SystemActor(), domain.AutoCloseReason)
		return err
	case idle > s.cfg.WarnThreshold && !ticket.IdleWarned:
		return s.lifecycle.WarnIdle(ctx, ticket.ID, last)
	}
	return nil
}
