package dto

import (
	"time"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// OpenTicketRequest payload.
type OpenTicketRequest struct {
	OwnerID  string `json:"owner_id"`
	Category string `json:"category"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	Reason string `json:"reason"`
}

// AddMessageRequest payload.
type AddMessageRequest struct {
	Body string `json:"body"`
}

// TicketResponse mirrors the ticket aggregate for display reads.
type TicketResponse struct {
	ID           string             `json:"id"`
	GuildID      string             `json:"guild_id"`
	Number       int64              `json:"number"`
	OwnerID      string             `json:"owner_id"`
	Category     string             `json:"category"`
	State        domain.TicketState `json:"state"`
	AssigneeID   *string            `json:"assignee_id,omitempty"`
	ChannelRef   string             `json:"channel_ref,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	LastActivity time.Time          `json:"last_activity"`
	ClosedAt     *time.Time         `json:"closed_at,omitempty"`
	ClosedBy     *string            `json:"closed_by,omitempty"`
	CloseReason  *string            `json:"close_reason,omitempty"`
}

// FromTicket maps the domain aggregate.
func FromTicket(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		GuildID:      t.GuildID,
		Number:       t.Number,
		OwnerID:      t.OwnerID,
		Category:     t.Category,
		State:        t.State,
		AssigneeID:   t.AssigneeID,
		ChannelRef:   t.ChannelRef,
		CreatedAt:    t.CreatedAt,
		LastActivity: t.LastActivity,
		ClosedAt:     t.ClosedAt,
		ClosedBy:     t.ClosedBy,
		CloseReason:  t.CloseReason,
	}
}

// MessageResponse mirrors one conversation entry.
type MessageResponse struct {
	ID         string                   `json:"id"`
	AuthorID   string                   `json:"author_id"`
	AuthorType domain.MessageAuthorType `json:"author_type"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// FromMessage maps one domain message.
func FromMessage(m *domain.TicketMessage) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		AuthorID:   m.AuthorID,
		AuthorType: m.AuthorType,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
	}
}

// TranscriptResponse mirrors the stored archive artifact.
type TranscriptResponse struct {
	TicketID    string    `json:"ticket_id"`
	Body        string    `json:"body"`
	ContentHash string    `json:"content_hash"`
	EntryCount  int       `json:"entry_count"`
	GeneratedAt time.Time `json:"generated_at"`
}
