package worker

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/repository"
	"github.com/spec-kit/ticket-desk/internal/service"
)

type sweepFixture struct {
	sweeper    *InactivitySweeper
	lifecycle  *service.LifecycleService
	store      *repository.MemoryStore
	activity   repository.ActivityCache
	dispatcher events.Dispatcher
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	activity := repository.NewMemoryActivityCache()
	dispatcher := events.NewInMemoryDispatcher()
	lifecycle := service.NewLifecycleService(config.LifecycleConfig{
		ClosePolicy:           config.ClosePolicyOwnerOrStaff,
		DuplicateScope:        domain.DuplicateScopeCategory,
		MaxOpenTickets:        3,
		StorageTimeoutSeconds: 5,
		ConflictRetries:       3,
	}, service.LifecycleDependencies{
		TicketRepo:     store,
		MessageRepo:    store,
		TranscriptRepo: store,
		GuildConfigs:   store,
		Activity:       activity,
		Dispatcher:     dispatcher,
		Metrics:        observability.NewMetrics(prometheus.NewRegistry()),
		Logger:         zap.NewNop(),
	})
	sweeper := NewInactivitySweeper(config.SchedulerConfig{
		Enabled:            true,
		SweepSpec:          "@every 60s",
		WarnThreshold:      30 * time.Minute,
		AutoCloseThreshold: 24 * time.Hour,
	}, lifecycle, store, activity, observability.NewMetrics(prometheus.NewRegistry()), zap.NewNop())
	return &sweepFixture{
		sweeper:    sweeper,
		lifecycle:  lifecycle,
		store:      store,
		activity:   activity,
		dispatcher: dispatcher,
	}
}

func (f *sweepFixture) openIdleTicket(t *testing.T, owner string, idleFor time.Duration) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.lifecycle.Open(ctx, "guild-1", owner, "support")
	require.NoError(t, err)
	require.NoError(t, f.store.TouchActivity(ctx, ticket.ID, time.Now().Add(-idleFor)))
	require.NoError(t, f.activity.Clear(ctx, ticket.ID))
	return ticket
}

func (f *sweepFixture) eventCounter(eventType events.EventType) *int {
	count := new(int)
	f.dispatcher.Subscribe(eventType, func(context.Context, events.Event) error {
		*count++
		return nil
	})
	return count
}

func TestSweepWarnsIdleTicketOnce(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	warns := f.eventCounter(events.EventTicketIdleWarning)

	ticket := f.openIdleTicket(t, "owner-1", time.Hour)

	require.NoError(t, f.sweeper.Sweep(ctx))
	warned, err := f.lifecycle.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.True(t, warned.IdleWarned)
	require.Equal(t, domain.TicketStateOpen, warned.State)

	// A second pass over the same idle episode stays quiet.
	require.NoError(t, f.sweeper.Sweep(ctx))
	require.Equal(t, 1, *warns)
}

func TestSweepLeavesActiveTicketsAlone(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	warns := f.eventCounter(events.EventTicketIdleWarning)

	ticket, err := f.lifecycle.Open(ctx, "guild-1", "owner-1", "support")
	require.NoError(t, err)

	require.NoError(t, f.sweeper.Sweep(ctx))
	fresh, err := f.lifecycle.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.False(t, fresh.IdleWarned)
	require.Equal(t, 0, *warns)
}

func TestSweepAutoClosesStaleTicket(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	closes := f.eventCounter(events.EventTicketClosed)

	ticket := f.openIdleTicket(t, "owner-1", 25*time.Hour)

	require.NoError(t, f.sweeper.Sweep(ctx))
	closed, err := f.lifecycle.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateClosed, closed.State)
	require.Equal(t, domain.SystemActorID, *closed.ClosedBy)
	require.Equal(t, domain.AutoCloseReason, *closed.CloseReason)

	// Closed tickets drop out of the sweep set; nothing fires twice.
	require.NoError(t, f.sweeper.Sweep(ctx))
	require.Equal(t, 1, *closes)
}

func TestSweepPrefersCachedActivity(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	ticket := f.openIdleTicket(t, "owner-1", 25*time.Hour)
	// The cache saw activity the store write missed; the ticket is live.
	require.NoError(t, f.activity.Mark(ctx, ticket.ID, time.Now()))

	require.NoError(t, f.sweeper.Sweep(ctx))
	alive, err := f.lifecycle.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateOpen, alive.State)
}

func TestSweepHandlesMixedTickets(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	stale := f.openIdleTicket(t, "owner-1", 25*time.Hour)
	idle := f.openIdleTicket(t, "owner-2", time.Hour)
	fresh, err := f.lifecycle.Open(ctx, "guild-1", "owner-3", "support")
	require.NoError(t, err)

	require.NoError(t, f.sweeper.Sweep(ctx))

	closed, err := f.lifecycle.GetTicket(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateClosed, closed.State)

	warned, err := f.lifecycle.GetTicket(ctx, idle.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateOpen, warned.State)
	require.True(t, warned.IdleWarned)

	untouched, err := f.lifecycle.GetTicket(ctx, fresh.ID)
	require.NoError(t, err)
	require.False(t, untouched.IdleWarned)
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	f := newSweepFixture(t)
	f.openIdleTicket(t, "owner-1", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, f.sweeper.Sweep(ctx))
}

func TestSweepWithFrozenClock(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()

	ticket, err := f.lifecycle.Open(ctx, "guild-1", "owner-1", "support")
	require.NoError(t, err)

	// Jump the sweeper's clock instead of rewriting stored timestamps.
	f.sweeper.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	require.NoError(t, f.sweeper.Sweep(ctx))
	warned, err := f.lifecycle.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.True(t, warned.IdleWarned)
}
