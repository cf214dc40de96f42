package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/platform"
	"github.com/spec-kit/ticket-desk/internal/repository"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util"
)

// Actor identifies who requested a lifecycle operation.
type Actor struct {
	ID    string
	Staff bool
}

// SystemActor is the scheduler's identity for synthetic transitions.
func SystemActor() Actor {
	return Actor{ID: domain.SystemActorID, Staff: true}
}

// LifecycleService is the single write path for tickets. It enforces the
// state machine, serializes same-ticket operations through a keyed lock,
// and re-validates state against the stored version before every write.
type LifecycleService struct {
	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	transcripts repository.TranscriptRepository
	guildCfg    repository.GuildConfigRepository
	activity    repository.ActivityCache
	dispatcher  events.Dispatcher
	channels    platform.ChannelGateway
	metrics     *observability.Metrics
	logger      *zap.Logger
	cfg         config.LifecycleConfig
	locks       *keyedMutex
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo     repository.TicketRepository
	MessageRepo    repository.TicketMessageRepository
	TranscriptRepo repository.TranscriptRepository
	GuildConfigs   repository.GuildConfigRepository
	Activity       repository.ActivityCache
	Dispatcher     events.Dispatcher
	Channels       platform.ChannelGateway
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// NewLifecycleService constructs the service.
func NewLifecycleService(cfg config.LifecycleConfig, deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		tickets:     deps.TicketRepo,
		messages:    deps.MessageRepo,
		transcripts: deps.TranscriptRepo,
		guildCfg:    deps.GuildConfigs,
		activity:    deps.Activity,
		dispatcher:  deps.Dispatcher,
		channels:    deps.Channels,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         cfg,
		locks:       newKeyedMutex(),
	}
}

// Open creates a ticket for ownerID in the given guild and category,
// assigning the next per-guild number atomically with the insert.
func (s *LifecycleService) Open(ctx context.Context, guildID, ownerID, category string) (*domain.Ticket, error) {
	category = strings.TrimSpace(category)
	if guildID == "" || ownerID == "" {
		return nil, apperrors.NewValidationError("guild_id and owner_id required", nil)
	}

	// The owner-scoped lock closes the race where two concurrent opens
	// both pass the duplicate check before either inserts.
	unlock := s.locks.lock("open:" + guildID + ":" + ownerID)
	defer unlock()

	maxOpen, scope, err := s.openPolicy(ctx, guildID)
	if err != nil {
		return nil, err
	}
	existing, err := s.listOpenByOwner(ctx, guildID, ownerID)
	if err != nil {
		return nil, err
	}
	open := 0
	for i := range existing {
		if scope == domain.DuplicateScopeGlobal || existing[i].Category == category {
			open++
		}
	}
	if open >= maxOpen {
		s.metrics.RecordTransition("open", "rejected")
		return nil, apperrors.NewDuplicateOpenTicket(ownerID, category)
	}

	now := time.Now().UTC()
	ticket := &domain.Ticket{
		ID:           uuid.NewString(),
		GuildID:      guildID,
		OwnerID:      ownerID,
		Category:     category,
		State:        domain.TicketStateOpen,
		CreatedAt:    now,
		LastActivity: now,
		Version:      1,
	}

	storeCtx, cancel := s.storageCtx(ctx)
	err = s.tickets.Create(storeCtx, ticket)
	cancel()
	if err != nil {
		s.metrics.RecordTransition("open", "error")
		return nil, err
	}
	s.metrics.RecordTransition("open", "ok")
	_ = s.activity.Mark(ctx, ticket.ID, now)

	s.provisionChannel(ctx, ticket)

	s.publish(ctx, events.Event{
		Type:     events.EventTicketOpened,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		Actor:    events.Actor{ID: ownerID},
		Payload: events.TicketOpenedPayload{
			Number:   ticket.Number,
			OwnerID:  ticket.OwnerID,
			Category: ticket.Category,
		},
	})
	return ticket, nil
}

// Claim assigns an open ticket to staffID. Reclaiming by the current
// assignee is a no-op; any other holder yields ALREADY_CLAIMED.
func (s *LifecycleService) Claim(ctx context.Context, ticketID, staffID string) (*domain.Ticket, error) {
	return s.transition(ctx, "claim", ticketID, func(t *domain.Ticket) error {
		if t.State == domain.TicketStateClaimed || t.State == domain.TicketStateInProgress {
			if t.AssignedTo(staffID) {
				return errNoChange
			}
			holder := ""
			if t.AssigneeID != nil {
				holder = *t.AssigneeID
			}
			return apperrors.NewAlreadyClaimed(t.ID, holder)
		}
		if t.State != domain.TicketStateOpen {
			return apperrors.NewInvalidTransition(t.ID, string(t.State), string(domain.TicketStateClaimed))
		}
		t.State = domain.TicketStateClaimed
		t.AssigneeID = &staffID
		return nil
	}, func(t *domain.Ticket) events.Event {
		return events.Event{
			Type:     events.EventTicketClaimed,
			TicketID: t.ID,
			GuildID:  t.GuildID,
			Actor:    events.Actor{ID: staffID, Staff: true},
			Payload:  events.TicketClaimedPayload{StaffID: staffID},
		}
	})
}

// Unclaim releases a claimed ticket back to OPEN. Only the assignee may
// release it.
func (s *LifecycleService) Unclaim(ctx context.Context, ticketID, staffID string) (*domain.Ticket, error) {
	return s.transition(ctx, "unclaim", ticketID, func(t *domain.Ticket) error {
		if t.State != domain.TicketStateClaimed {
			return apperrors.NewInvalidTransition(t.ID, string(t.State), string(domain.TicketStateOpen))
		}
		if !t.AssignedTo(staffID) {
			return apperrors.NewNotAssignee(t.ID, staffID)
		}
		t.State = domain.TicketStateOpen
		t.AssigneeID = nil
		return nil
	}, func(t *domain.Ticket) events.Event {
		return events.Event{
			Type:     events.EventTicketUnclaimed,
			TicketID: t.ID,
			GuildID:  t.GuildID,
			Actor:    events.Actor{ID: staffID, Staff: true},
			Payload:  events.TicketUnclaimedPayload{StaffID: staffID},
		}
	})
}

// MarkInProgress moves a claimed ticket to IN_PROGRESS. Assignee only.
func (s *LifecycleService) MarkInProgress(ctx context.Context, ticketID, staffID string) (*domain.Ticket, error) {
	return s.transition(ctx, "mark_in_progress", ticketID, func(t *domain.Ticket) error {
		if t.State != domain.TicketStateClaimed {
			return apperrors.NewInvalidTransition(t.ID, string(t.State), string(domain.TicketStateInProgress))
		}
		if !t.AssignedTo(staffID) {
			return apperrors.NewNotAssignee(t.ID, staffID)
		}
		t.State = domain.TicketStateInProgress
		return nil
	}, func(t *domain.Ticket) events.Event {
		return events.Event{
			Type:     events.EventTicketInProgress,
			TicketID: t.ID,
			GuildID:  t.GuildID,
			Actor:    events.Actor{ID: staffID, Staff: true},
		}
	})
}

// Close moves any non-terminal ticket to CLOSED, recording who closed it
// and why. Transcript generation is triggered by the closed event.
func (s *LifecycleService) Close(ctx context.Context, ticketID string, actor Actor, reason string) (*domain.Ticket, error) {
	var priorState domain.TicketState
	ticket, err := s.transition(ctx, "close", ticketID, func(t *domain.Ticket) error {
		if t.State.Terminal() {
			if t.State == domain.TicketStateClosed {
				// Double close (user racing the sweep) is not an error.
				return errNoChange
			}
			return apperrors.NewInvalidTransition(t.ID, string(t.State), string(domain.TicketStateClosed))
		}
		if err := s.authorizeClose(t, actor); err != nil {
			return err
		}
		priorState = t.State
		now := time.Now().UTC()
		t.State = domain.TicketStateClosed
		t.AssigneeID = nil
		t.ClosedAt = &now
		t.ClosedBy = &actor.ID
		t.CloseReason = &reason
		return nil
	}, func(t *domain.Ticket) events.Event {
		return events.Event{
			Type:     events.EventTicketClosed,
			TicketID: t.ID,
			GuildID:  t.GuildID,
			Actor:    events.Actor{ID: actor.ID, Staff: actor.Staff},
			Payload: events.TicketClosedPayload{
				PriorState: priorState,
				Reason:     reason,
				AutoClosed: actor.ID == domain.SystemActorID,
			},
		}
	})
	if err != nil {
		return nil, err
	}
	_ = s.activity.Clear(ctx, ticketID)
	return ticket, nil
}

// Archive moves CLOSED to ARCHIVED once a transcript exists. Archiving
// an already archived ticket succeeds without touching anything.
func (s *LifecycleService) Archive(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	var hash string
	ticket, err := s.transition(ctx, "archive", ticketID, func(t *domain.Ticket) error {
		if t.State == domain.TicketStateArchived {
			return errNoChange
		}
		if t.State != domain.TicketStateClosed {
			return apperrors.NewInvalidTransition(t.ID, string(t.State), string(domain.TicketStateArchived))
		}
		storeCtx, cancel := s.storageCtx(ctx)
		record, err := s.transcripts.GetByTicket(storeCtx, t.ID)
		cancel()
		if err != nil {
			return err
		}
		hash = record.ContentHash
		t.State = domain.TicketStateArchived
		return nil
	}, func(t *domain.Ticket) events.Event {
		return events.Event{
			Type:     events.EventTicketArchived,
			TicketID: t.ID,
			GuildID:  t.GuildID,
			Actor:    events.SystemActor(),
			Payload:  events.TicketArchivedPayload{TranscriptHash: hash},
		}
	})
	if err != nil {
		return nil, err
	}
	if ticket.State == domain.TicketStateArchived && hash != "" {
		s.archiveChannel(ctx, ticket)
	}
	return ticket, nil
}

// TouchActivity records a qualifying interaction on a non-terminal
// ticket and ends any idle-warning episode. Terminal tickets ignore it.
func (s *LifecycleService) TouchActivity(ctx context.Context, ticketID string) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.State.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	storeCtx, cancel := s.storageCtx(ctx)
	err = s.tickets.TouchActivity(storeCtx, ticketID, now)
	cancel()
	if err != nil {
		return err
	}
	_ = s.activity.Mark(ctx, ticketID, now)
	return nil
}

// WarnIdle flags the current idle episode and emits a one-time warning
// notification. Re-warning an already warned or terminal ticket is a
// no-op, which keeps the sweep idempotent.
func (s *LifecycleService) WarnIdle(ctx context.Context, ticketID string, idleSince time.Time) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.State.Terminal() || ticket.IdleWarned {
		return nil
	}
	storeCtx, cancel := s.storageCtx(ctx)
	err = s.tickets.SetIdleWarned(storeCtx, ticketID, time.Now().UTC())
	cancel()
	if err != nil {
		return err
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketIdleWarning,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		Actor:    events.SystemActor(),
		Payload:  events.TicketIdleWarningPayload{IdleSince: idleSince},
	})
	return nil
}

// AddMessage appends to the conversation log of a non-terminal ticket
// and counts as activity.
func (s *LifecycleService) AddMessage(ctx context.Context, ticketID string, author Actor, body string) (*domain.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("body required", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.State.Terminal() {
		return nil, apperrors.NewInvalidTransition(ticket.ID, string(ticket.State), string(ticket.State))
	}

	authorType := domain.AuthorTypeUser
	switch {
	case author.ID == domain.SystemActorID:
		authorType = domain.AuthorTypeSystem
	case author.Staff:
		authorType = domain.AuthorTypeStaff
	}
	msg := &domain.TicketMessage{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		AuthorID:   author.ID,
		AuthorType: authorType,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	}
	storeCtx, cancel := s.storageCtx(ctx)
	err = s.messages.Append(storeCtx, msg)
	cancel()
	if err != nil {
		return nil, err
	}
	if err := s.TouchActivity(ctx, ticket.ID); err != nil {
		s.logger.Warn("activity touch failed after message append",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	s.publish(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		GuildID:  ticket.GuildID,
		Actor:    events.Actor{ID: author.ID, Staff: author.Staff},
		Payload: events.TicketMessageAddedPayload{
			MessageID:  msg.ID,
			AuthorType: msg.AuthorType,
		},
	})
	return msg, nil
}

// GetTicket is a display read; it bypasses the per-ticket lock and may
// trail an in-flight transition.
func (s *LifecycleService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.getTicket(ctx, ticketID)
}

// GetTicketByNumber resolves a ticket from its human-facing guild number.
func (s *LifecycleService) GetTicketByNumber(ctx context.Context, guildID string, number int64) (*domain.Ticket, error) {
	storeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.tickets.GetByGuildNumber(storeCtx, guildID, number)
}

// GetTicketByChannel resolves a ticket from its platform channel.
func (s *LifecycleService) GetTicketByChannel(ctx context.Context, channelRef string) (*domain.Ticket, error) {
	storeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.tickets.GetByChannel(storeCtx, channelRef)
}

// ListNonTerminal lists the guild's live tickets for display.
func (s *LifecycleService) ListNonTerminal(ctx context.Context, guildID string) ([]domain.Ticket, error) {
	storeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.tickets.ListNonTerminal(storeCtx, guildID)
}

// ListMessages returns the ticket's conversation log for display.
func (s *LifecycleService) ListMessages(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	storeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.messages.ListByTicket(storeCtx, ticketID)
}

// errNoChange signals an idempotent early exit from a mutation callback.
var errNoChange = apperrors.NewDomainError("NO_CHANGE", "no change", 200, nil)

// transition runs one state-machine operation: lock the ticket, load it,
// validate and mutate via mutate(), write with the loaded version, and
// retry a bounded number of times when another writer won the race.
func (s *LifecycleService) transition(
	ctx context.Context,
	op string,
	ticketID string,
	mutate func(*domain.Ticket) error,
	eventFor func(*domain.Ticket) events.Event,
) (*domain.Ticket, error) {
	unlock := s.locks.lock("ticket:" + ticketID)
	defer unlock()

	attempts := s.cfg.ConflictRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		ticket, err := s.getTicket(ctx, ticketID)
		if err != nil {
			s.metrics.RecordTransition(op, "error")
			return nil, err
		}
		expected := ticket.Version

		if err := mutate(ticket); err != nil {
			if apperrors.HasCode(err, "NO_CHANGE") {
				s.metrics.RecordTransition(op, "noop")
				return ticket, nil
			}
			s.metrics.RecordTransition(op, "rejected")
			return nil, err
		}

		storeCtx, cancel := s.storageCtx(ctx)
		err = s.tickets.Put(storeCtx, ticket, expected)
		cancel()
		if err == nil {
			s.metrics.RecordTransition(op, "ok")
			s.publish(ctx, eventFor(ticket))
			return ticket, nil
		}
		if apperrors.HasCode(err, apperrors.CodeVersionConflict) {
			s.metrics.RecordConflict()
			lastErr = err
			continue
		}
		s.metrics.RecordTransition(op, "error")
		return nil, err
	}
	s.metrics.RecordTransition(op, "conflict")
	return nil, lastErr
}

func (s *LifecycleService) authorizeClose(t *domain.Ticket, actor Actor) error {
	if actor.ID == domain.SystemActorID || actor.Staff {
		return nil
	}
	if s.cfg.ClosePolicy == config.ClosePolicyStaffOnly {
		return apperrors.NewForbidden("only staff may close tickets")
	}
	if t.OwnerID != actor.ID {
		return apperrors.NewForbidden("only the ticket owner or staff may close this ticket")
	}
	return nil
}

func (s *LifecycleService) openPolicy(ctx context.Context, guildID string) (int, domain.DuplicateScope, error) {
	maxOpen := s.cfg.MaxOpenTickets
	scope := s.cfg.DuplicateScope
	if s.guildCfg == nil {
		return maxOpen, scope, nil
	}
	storeCtx, cancel := s.storageCtx(ctx)
	guildCfg, err := s.guildCfg.Get(storeCtx, guildID)
	cancel()
	if err != nil {
		return 0, "", err
	}
	if guildCfg != nil {
		if guildCfg.MaxOpenTickets > 0 {
			maxOpen = guildCfg.MaxOpenTickets
		}
		if guildCfg.DuplicateScope != "" {
			scope = guildCfg.DuplicateScope
		}
	}
	return maxOpen, scope, nil
}

func (s *LifecycleService) listOpenByOwner(ctx context.Context, guildID, ownerID string) ([]domain.Ticket, error) {
	storeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.tickets.ListOpenByOwner(storeCtx, guildID, ownerID)
}

func (s *LifecycleService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	storeCtx, cancel := s.storageCtx(ctx)
	defer cancel()
	return s.tickets.GetByID(storeCtx, ticketID)
}

// provisionChannel asks the platform for a channel and records the
// reference when granted. Failure leaves the ticket usable.
func (s *LifecycleService) provisionChannel(ctx context.Context, ticket *domain.Ticket) {
	if s.channels == nil {
		return
	}
	ref, err := s.channels.CreateChannel(ctx, ticket)
	if err != nil {
		s.logger.Warn("channel provisioning failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	if ref == "" {
		return
	}
	ticket.ChannelRef = ref
	storeCtx, cancel := s.storageCtx(ctx)
	err = s.tickets.Put(storeCtx, ticket, ticket.Version)
	cancel()
	if err != nil {
		s.logger.Warn("channel ref not recorded",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *LifecycleService) archiveChannel(ctx context.Context, ticket *domain.Ticket) {
	if s.channels == nil {
		return
	}
	if err := s.channels.ArchiveChannel(ctx, ticket); err != nil {
		s.logger.Warn("channel archive failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *LifecycleService) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.StorageTimeout())
}

func (s *LifecycleService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
