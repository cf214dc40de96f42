package domain

// DuplicateScope controls how the duplicate-open policy groups existing tickets.
type DuplicateScope string

const (
	// DuplicateScopeCategory limits an owner to one open ticket per category.
	DuplicateScopeCategory DuplicateScope = "category"
	// DuplicateScopeGlobal limits an owner to one open ticket per guild.
	DuplicateScopeGlobal DuplicateScope = "global"
)

// GuildConfig carries per-guild overrides for ticket handling. Zero values
// fall back to the service-wide configuration.
type GuildConfig struct {
	GuildID          string         `json:"guild_id"`
	TicketPrefix     string         `json:"ticket_prefix,omitempty"`
	MaxOpenTickets   int            `json:"max_open_tickets,omitempty"`
	DuplicateScope   DuplicateScope `json:"duplicate_scope,omitempty"`
	WarnAfterMinutes int            `json:"warn_after_minutes,omitempty"`
	CloseAfterHours  int            `json:"close_after_hours,omitempty"`
}
