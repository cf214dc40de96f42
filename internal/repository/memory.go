package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-desk/internal/domain"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util"
)

// MemoryStore implements every repository interface in process memory.
// It backs tests and DSN-less development runs; semantics (atomic
// counter+insert, optimistic versioning, idempotent transcript save)
// match the Postgres implementations.
type MemoryStore struct {
	mu          sync.Mutex
	tickets     map[string]*domain.Ticket
	counters    map[string]int64
	messages    map[string][]domain.TicketMessage
	transcripts map[string]*domain.TranscriptRecord
	configs     map[string]*domain.GuildConfig
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:     make(map[string]*domain.Ticket),
		counters:    make(map[string]int64),
		messages:    make(map[string][]domain.TicketMessage),
		transcripts: make(map[string]*domain.TranscriptRecord),
		configs:     make(map[string]*domain.GuildConfig),
	}
}

func (s *MemoryStore) clone(t *domain.Ticket) *domain.Ticket {
	cp := *t
	if t.AssigneeID != nil {
		v := *t.AssigneeID
		cp.AssigneeID = &v
	}
	if t.ClosedAt != nil {
		v := *t.ClosedAt
		cp.ClosedAt = &v
	}
	if t.ClosedBy != nil {
		v := *t.ClosedBy
		cp.ClosedBy = &v
	}
	if t.CloseReason != nil {
		v := *t.CloseReason
		cp.CloseReason = &v
	}
	return &cp
}

// Create implements TicketRepository.
func (s *MemoryStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[ticket.GuildID]++
	ticket.Number = s.counters[ticket.GuildID]
	s.tickets[ticket.ID] = s.clone(ticket)
	return nil
}

// Put implements TicketRepository.
func (s *MemoryStore) Put(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tickets[ticket.ID]
	if !ok {
		return apperrors.NewTicketNotFound(ticket.ID)
	}
	if stored.Version != expectedVersion {
		return apperrors.NewVersionConflict(ticket.ID)
	}
	cp := s.clone(ticket)
	cp.Version = expectedVersion + 1
	s.tickets[ticket.ID] = cp
	ticket.Version = cp.Version
	return nil
}

// GetByID implements TicketRepository.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, apperrors.NewTicketNotFound(id)
	}
	return s.clone(ticket), nil
}

// GetByGuildNumber implements TicketRepository.
func (s *MemoryStore) GetByGuildNumber(ctx context.Context, guildID string, number int64) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.GuildID == guildID && t.Number == number {
			return s.clone(t), nil
		}
	}
	return nil, apperrors.NewTicketNotFound(guildID)
}

// GetByChannel implements TicketRepository.
func (s *MemoryStore) GetByChannel(ctx context.Context, channelRef string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.ChannelRef == channelRef {
			return s.clone(t), nil
		}
	}
	return nil, apperrors.NewTicketNotFound(channelRef)
}

// ListNonTerminal implements TicketRepository.
func (s *MemoryStore) ListNonTerminal(ctx context.Context, guildID string) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Ticket
	for _, t := range s.tickets {
		if t.GuildID == guildID && !t.State.Terminal() {
			result = append(result, *s.clone(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

// ListAllNonTerminal implements TicketRepository.
func (s *MemoryStore) ListAllNonTerminal(ctx context.Context) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Ticket
	for _, t := range s.tickets {
		if !t.State.Terminal() {
			result = append(result, *s.clone(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].GuildID != result[j].GuildID {
			return result[i].GuildID < result[j].GuildID
		}
		return result[i].Number < result[j].Number
	})
	return result, nil
}

// ListOpenByOwner implements TicketRepository.
func (s *MemoryStore) ListOpenByOwner(ctx context.Context, guildID, ownerID string) ([]domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Ticket
	for _, t := range s.tickets {
		if t.GuildID == guildID && t.OwnerID == ownerID && !t.State.Terminal() {
			result = append(result, *s.clone(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

// TouchActivity implements TicketRepository.
func (s *MemoryStore) TouchActivity(ctx context.Context, id string, ts time.Time) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return apperrors.NewTicketNotFound(id)
	}
	ticket.LastActivity = ts
	ticket.IdleWarned = false
	return nil
}

// SetIdleWarned implements TicketRepository.
func (s *MemoryStore) SetIdleWarned(ctx context.Context, id string, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return apperrors.NewTicketNotFound(id)
	}
	ticket.IdleWarned = true
	return nil
}

// Append implements TicketMessageRepository.
func (s *MemoryStore) Append(ctx context.Context, msg *domain.TicketMessage) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.TicketID] = append(s.messages[msg.TicketID], *msg)
	return nil
}

// ListByTicket implements TicketMessageRepository.
func (s *MemoryStore) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[ticketID]
	result := make([]domain.TicketMessage, len(msgs))
	copy(result, msgs)
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// Save implements TranscriptRepository.
func (s *MemoryStore) Save(ctx context.Context, record *domain.TranscriptRecord) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transcripts[record.TicketID]; exists {
		return nil
	}
	cp := *record
	s.transcripts[record.TicketID] = &cp
	return nil
}

// GetByTicket implements TranscriptRepository.
func (s *MemoryStore) GetByTicket(ctx context.Context, ticketID string) (*domain.TranscriptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.transcripts[ticketID]
	if !ok {
		return nil, apperrors.NewTranscriptPending(ticketID)
	}
	cp := *record
	return &cp, nil
}

// Get implements GuildConfigRepository.
func (s *MemoryStore) Get(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[guildID]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

// Set implements GuildConfigRepository.
func (s *MemoryStore) Set(ctx context.Context, cfg *domain.GuildConfig) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageUnavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.configs[cfg.GuildID] = &cp
	return nil
}
