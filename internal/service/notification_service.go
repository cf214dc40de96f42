package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/platform"
	"github.com/spec-kit/ticket-desk/internal/repository"
)

// NotificationService translates lifecycle events into outbound
// notifications for the chat layer. Delivery is best-effort: a failed
// send is logged and counted, never propagated back into the lifecycle.
type NotificationService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	notifier   platform.Notifier
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier platform.Notifier, tickets repository.TicketRepository, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		tickets:    tickets,
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to every lifecycle event type.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketOpened,
		events.EventTicketClaimed,
		events.EventTicketUnclaimed,
		events.EventTicketInProgress,
		events.EventTicketClosed,
		events.EventTicketArchived,
		events.EventTicketIdleWarning,
		events.EventTranscriptFailed,
	} {
		n.dispatcher.Subscribe(eventType, n.handleEvent)
	}
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	notification, ok := n.build(ctx, event)
	if !ok {
		return nil
	}
	if err := n.notifier.Send(ctx, notification); err != nil {
		if n.metrics != nil {
			n.metrics.NotificationFailures.Inc()
		}
		n.logger.Warn("notification delivery failed",
			zap.String("kind", string(notification.Kind)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
	return nil
}

func (n *NotificationService) build(ctx context.Context, event events.Event) (platform.Notification, bool) {
	ticket, err := n.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		n.logger.Warn("notification skipped; ticket unavailable",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return platform.Notification{}, false
	}

	summary := platform.TicketSummary{
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		Number:   ticket.Number,
		OwnerID:  ticket.OwnerID,
		Category: ticket.Category,
		State:    string(ticket.State),
	}

	recipients := []string{ticket.OwnerID}
	if ticket.AssigneeID != nil {
		recipients = append(recipients, *ticket.AssigneeID)
	}

	var kind platform.NotificationKind
	urgency := platform.UrgencyNormal
	var message string
	switch event.Type {
	case events.EventTicketOpened:
		kind = platform.NotifyTicketOpened
		message = fmt.Sprintf("Ticket #%d opened", ticket.Number)
	case events.EventTicketClaimed:
		kind = platform.NotifyTicketClaimed
		message = fmt.Sprintf("Ticket #%d claimed by %s", ticket.Number, event.Actor.ID)
	case events.EventTicketUnclaimed:
		kind = platform.NotifyTicketUnclaimed
		message = fmt.Sprintf("Ticket #%d released back to the queue", ticket.Number)
	case events.EventTicketInProgress:
		kind = platform.NotifyTicketInProgress
		message = fmt.Sprintf("Ticket #%d is being worked on", ticket.Number)
	case events.EventTicketClosed:
		kind = platform.NotifyTicketClosed
		reason := ""
		if payload, ok := event.Payload.(events.TicketClosedPayload); ok {
			reason = payload.Reason
		}
		message = fmt.Sprintf("Ticket #%d closed: %s", ticket.Number, reason)
	case events.EventTicketArchived:
		kind = platform.NotifyTicketArchived
		urgency = platform.UrgencyLow
		message = fmt.Sprintf("Ticket #%d archived", ticket.Number)
	case events.EventTicketIdleWarning:
		kind = platform.NotifyIdleWarning
		urgency = platform.UrgencyHigh
		message = fmt.Sprintf("Ticket #%d looks inactive and will auto-close soon", ticket.Number)
	case events.EventTranscriptFailed:
		kind = platform.NotifyTranscriptFailed
		urgency = platform.UrgencyHigh
		// Staff-facing alert; the ticket needs manual intervention.
		recipients = []string{domain.SystemActorID}
		message = fmt.Sprintf("Transcript generation failed for ticket #%d", ticket.Number)
	default:
		return platform.Notification{}, false
	}

	return platform.Notification{
		Recipients: recipients,
		Kind:       kind,
		Urgency:    urgency,
		Summary:    summary,
		Message:    message,
	}, true
}
