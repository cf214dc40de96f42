package platform

import (
	"context"

	"go.uber.org/zap"
)

// NotificationKind enumerates outbound notification categories.
type NotificationKind string

const (
	NotifyTicketOpened     NotificationKind = "ticket_opened"
	NotifyTicketClaimed    NotificationKind = "ticket_claimed"
	NotifyTicketUnclaimed  NotificationKind = "ticket_unclaimed"
	NotifyTicketInProgress NotificationKind = "ticket_in_progress"
	NotifyTicketClosed     NotificationKind = "ticket_closed"
	NotifyTicketArchived   NotificationKind = "ticket_archived"
	NotifyIdleWarning      NotificationKind = "idle_warning"
	NotifyTranscriptFailed NotificationKind = "transcript_failed"
)

// Urgency grades how loudly the chat layer should deliver.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// TicketSummary is the display payload attached to notifications.
type TicketSummary struct {
	TicketID string `json:"ticket_id"`
	GuildID  string `json:"guild_id"`
	Number   int64  `json:"number"`
	OwnerID  string `json:"owner_id"`
	Category string `json:"category"`
	State    string `json:"state"`
}

// Notification is the abstract outbound payload handed to the chat layer.
type Notification struct {
	Recipients []string         `json:"recipients"`
	Kind       NotificationKind `json:"kind"`
	Urgency    Urgency          `json:"urgency"`
	Summary    TicketSummary    `json:"summary"`
	Message    string           `json:"message"`
}

// Notifier delivers notifications to the external channel layer.
// Fire-and-forget: the core never consumes a delivery result beyond the
// immediate error, which is logged and dropped.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LoggingNotifier is the default sink when no chat adapter is wired in.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier creates the stand-in notifier.
func NewLoggingNotifier(logger *zap.Logger) *LoggingNotifier {
	return &LoggingNotifier{logger: logger}
}

func (n *LoggingNotifier) Send(_ context.Context, notification Notification) error {
	n.logger.Info("notification",
		zap.String("kind", string(notification.Kind)),
		zap.String("ticket_id", notification.Summary.TicketID),
		zap.Strings("recipients", notification.Recipients),
		zap.String("urgency", string(notification.Urgency)))
	return nil
}
