package domain

import "time"

// MessageAuthorType indicates who authored a message.
type MessageAuthorType string

const (
	AuthorTypeUser   MessageAuthorType = "USER"
	AuthorTypeStaff  MessageAuthorType = "STAFF"
	AuthorTypeSystem MessageAuthorType = "SYSTEM"
)

// TicketMessage captures one entry of a ticket's conversation log.
// The log is append-only while the ticket is non-terminal.
type TicketMessage struct {
	ID         string
	TicketID   string
	AuthorID   string
	AuthorType MessageAuthorType
	Body       string
	CreatedAt  time.Time
}
