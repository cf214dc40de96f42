package domain

import "time"

// TicketState enumerates lifecycle states for tickets.
type TicketState string

const (
	TicketStateOpen       TicketState = "OPEN"
	TicketStateClaimed    TicketState = "CLAIMED"
	TicketStateInProgress TicketState = "IN_PROGRESS"
	TicketStateClosed     TicketState = "CLOSED"
	TicketStateArchived   TicketState = "ARCHIVED"
)

// Terminal reports whether the state accepts no further user activity.
func (s TicketState) Terminal() bool {
	return s == TicketStateClosed || s == TicketStateArchived
}

// SystemActorID identifies transitions driven by the scheduler rather than a person.
const SystemActorID = "system"

// AutoCloseReason is the close reason recorded by the inactivity sweep.
const AutoCloseReason = "auto-closed: inactivity"

// Ticket is the aggregate for support requests.
//
// Version backs optimistic concurrency: every transition write carries the
// version it read, and the store rejects stale writes.
type Ticket struct {
	ID           string
	GuildID      string
	Number       int64
	OwnerID      string
	Category     string
	State        TicketState
	AssigneeID   *string
	ChannelRef   string
	CreatedAt    time.Time
	LastActivity time.Time
	IdleWarned   bool
	ClosedAt     *time.Time
	ClosedBy     *string
	CloseReason  *string
	Version      int64
}

// Assigned reports whether staff currently holds the ticket.
func (t *Ticket) Assigned() bool {
	return t.AssigneeID != nil
}

// AssignedTo reports whether the given staff member holds the ticket.
func (t *Ticket) AssignedTo(staffID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == staffID
}
