package worker

import (
	"github.com/spec-kit/ticket-desk/internal/service"
)

// StartSubscribers registers the event-driven services on the dispatcher.
func StartSubscribers(notifications *service.NotificationService, transcripts *service.TranscriptService) {
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	if transcripts != nil {
		transcripts.RegisterHandlers()
	}
}
