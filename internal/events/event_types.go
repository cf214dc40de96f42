package events

import (
	"time"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened       EventType = "ticket_opened"
	EventTicketClaimed      EventType = "ticket_claimed"
	EventTicketUnclaimed    EventType = "ticket_unclaimed"
	EventTicketInProgress   EventType = "ticket_in_progress"
	EventTicketClosed       EventType = "ticket_closed"
	EventTicketArchived     EventType = "ticket_archived"
	EventTicketIdleWarning  EventType = "ticket_idle_warning"
	EventTicketMessageAdded EventType = "ticket_message_added"
	EventTranscriptFailed   EventType = "ticket_transcript_failed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID    string `json:"id"`
	Staff bool   `json:"staff"`
}

// SystemActor marks scheduler-driven transitions.
func SystemActor() Actor {
	return Actor{ID: domain.SystemActorID, Staff: true}
}

// Event represents a lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	GuildID   string      `json:"guild_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	Number   int64  `json:"number"`
	OwnerID  string `json:"owner_id"`
	Category string `json:"category"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	StaffID string `json:"staff_id"`
}

// TicketUnclaimedPayload payload.
type TicketUnclaimedPayload struct {
	StaffID string `json:"staff_id"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	PriorState domain.TicketState `json:"prior_state"`
	Reason     string             `json:"reason"`
	AutoClosed bool               `json:"auto_closed"`
}

// TicketArchivedPayload payload.
type TicketArchivedPayload struct {
	TranscriptHash string `json:"transcript_hash"`
}

// TicketIdleWarningPayload payload.
type TicketIdleWarningPayload struct {
	IdleSince time.Time `json:"idle_since"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID  string                   `json:"message_id"`
	AuthorType domain.MessageAuthorType `json:"author_type"`
}

// TranscriptFailedPayload payload.
type TranscriptFailedPayload struct {
	Attempts int    `json:"attempts"`
	LastErr  string `json:"last_error"`
}
