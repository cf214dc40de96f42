package service

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/platform"
)

type capturingNotifier struct {
	sent []platform.Notification
	err  error
}

func (n *capturingNotifier) Send(_ context.Context, notification platform.Notification) error {
	n.sent = append(n.sent, notification)
	return n.err
}

func newNotificationFixture(t *testing.T, notifier platform.Notifier) *lifecycleFixture {
	t.Helper()
	f := newLifecycleFixture(t, testLifecycleConfig())
	svc := NewNotificationService(f.dispatcher, notifier, f.store,
		observability.NewMetrics(prometheus.NewRegistry()), zap.NewNop())
	svc.RegisterHandlers()
	return f
}

func TestNotificationsFollowLifecycle(t *testing.T) {
	notifier := &capturingNotifier{}
	f := newNotificationFixture(t, notifier)
	ctx := context.Background()

	ticket, err := f.svc.Open(ctx, "guild-1", "owner-1", "support")
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, ticket.ID, "staff-a")
	require.NoError(t, err)
	_, err = f.svc.Close(ctx, ticket.ID, Actor{ID: "staff-a", Staff: true}, "resolved")
	require.NoError(t, err)

	require.Len(t, notifier.sent, 3)
	require.Equal(t, platform.NotifyTicketOpened, notifier.sent[0].Kind)
	require.Equal(t, platform.NotifyTicketClaimed, notifier.sent[1].Kind)
	require.Equal(t, platform.NotifyTicketClosed, notifier.sent[2].Kind)

	// The claim notice reaches owner and assignee both.
	require.ElementsMatch(t, []string{"owner-1", "staff-a"}, notifier.sent[1].Recipients)
	// Close clears the assignee, so only the owner is left to tell.
	require.Equal(t, []string{"owner-1"}, notifier.sent[2].Recipients)
	require.Contains(t, notifier.sent[2].Message, "resolved")
}

func TestIdleWarningNotificationIsUrgent(t *testing.T) {
	notifier := &capturingNotifier{}
	f := newNotificationFixture(t, notifier)
	ctx := context.Background()

	ticket, err := f.svc.Open(ctx, "guild-1", "owner-1", "support")
	require.NoError(t, err)
	notifier.sent = nil

	require.NoError(t, f.svc.WarnIdle(ctx, ticket.ID, ticket.LastActivity))
	require.Len(t, notifier.sent, 1)
	require.Equal(t, platform.NotifyIdleWarning, notifier.sent[0].Kind)
	require.Equal(t, platform.UrgencyHigh, notifier.sent[0].Urgency)
}

func TestNotifierFailureDoesNotBreakTransitions(t *testing.T) {
	notifier := &capturingNotifier{err: errors.New("webhook down")}
	f := newNotificationFixture(t, notifier)
	ctx := context.Background()

	ticket, err := f.svc.Open(ctx, "guild-1", "owner-1", "support")
	require.NoError(t, err)

	stored, err := f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateOpen, stored.State)
}

func TestTranscriptFailureAlertTargetsStaff(t *testing.T) {
	notifier := &capturingNotifier{}
	f := newNotificationFixture(t, notifier)
	ctx := context.Background()

	ticket, err := f.svc.Open(ctx, "guild-1", "owner-1", "support")
	require.NoError(t, err)
	_, err = f.svc.Close(ctx, ticket.ID, Actor{ID: "owner-1"}, "resolved")
	require.NoError(t, err)
	notifier.sent = nil

	require.NoError(t, f.dispatcher.Publish(ctx, events.Event{
		Type:     events.EventTranscriptFailed,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		Actor:    events.SystemActor(),
		Payload:  events.TranscriptFailedPayload{Attempts: 5, LastErr: "object store down"},
	}))

	require.Len(t, notifier.sent, 1)
	require.Equal(t, platform.NotifyTranscriptFailed, notifier.sent[0].Kind)
	require.Equal(t, platform.UrgencyHigh, notifier.sent[0].Urgency)
	require.Equal(t, []string{domain.SystemActorID}, notifier.sent[0].Recipients)
}
