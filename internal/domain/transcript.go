package domain

import "time"

// TranscriptRecord is the immutable archive artifact produced when a
// ticket closes. Body and ContentHash never change once stored.
type TranscriptRecord struct {
	TicketID    string
	Body        string
	ContentHash string
	EntryCount  int
	GeneratedAt time.Time
}
