package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/config"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/repository"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util"
)

// Archiver finalizes a closed ticket once its transcript is stored.
type Archiver interface {
	Archive(ctx context.Context, ticketID string) (*domain.Ticket, error)
}

// TranscriptService renders closed tickets into immutable archive
// artifacts. It listens for closed events and drives the ticket into
// ARCHIVED once generation succeeds; a ticket whose transcript keeps
// failing stays CLOSED and is flagged for manual intervention.
type TranscriptService struct {
	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	transcripts repository.TranscriptRepository
	dispatcher  events.Dispatcher
	archiver    Archiver
	metrics     *observability.Metrics
	logger      *zap.Logger
	cfg         config.LifecycleConfig
}

// TranscriptDependencies bundles collaborators for the transcript service.
type TranscriptDependencies struct {
	TicketRepo     repository.TicketRepository
	MessageRepo    repository.TicketMessageRepository
	TranscriptRepo repository.TranscriptRepository
	Dispatcher     events.Dispatcher
	Archiver       Archiver
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// NewTranscriptService constructs the service.
func NewTranscriptService(cfg config.LifecycleConfig, deps TranscriptDependencies) *TranscriptService {
	return &TranscriptService{
		tickets:     deps.TicketRepo,
		messages:    deps.MessageRepo,
		transcripts: deps.TranscriptRepo,
		dispatcher:  deps.Dispatcher,
		archiver:    deps.Archiver,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         cfg,
	}
}

// RegisterHandlers subscribes to closed events so transcript generation
// runs off the same lifecycle event stream as notifications.
func (t *TranscriptService) RegisterHandlers() {
	if t.dispatcher == nil {
		return
	}
	t.dispatcher.Subscribe(events.EventTicketClosed, t.handleTicketClosed)
}

func (t *TranscriptService) handleTicketClosed(_ context.Context, event events.Event) error {
	// Detach from the request context: the caller's deadline must not
	// cut transcript generation short.
	go t.GenerateAndArchive(context.Background(), event.TicketID)
	return nil
}

// GenerateAndArchive retries generation with backoff and archives the
// ticket on success. Permanent failure emits a transcript-failed event.
func (t *TranscriptService) GenerateAndArchive(ctx context.Context, ticketID string) {
	attempts := t.cfg.TranscriptRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if t.metrics != nil {
				t.metrics.TranscriptRetries.Inc()
			}
			select {
			case <-time.After(t.cfg.TranscriptBackoff() * time.Duration(attempt-1)):
			case <-ctx.Done():
				return
			}
		}
		if _, lastErr = t.Generate(ctx, ticketID); lastErr == nil {
			if _, err := t.archiver.Archive(ctx, ticketID); err != nil {
				t.logger.Error("archive after transcript failed",
					zap.String("ticket_id", ticketID), zap.Error(err))
			}
			return
		}
		t.logger.Warn("transcript generation attempt failed",
			zap.String("ticket_id", ticketID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}
	t.logger.Error("transcript generation permanently failed; ticket stays closed",
		zap.String("ticket_id", ticketID), zap.Error(lastErr))
	if t.dispatcher != nil {
		_ = t.dispatcher.Publish(ctx, events.Event{
			Type:     events.EventTranscriptFailed,
			TicketID: ticketID,
			Actor:    events.SystemActor(),
			Payload: events.TranscriptFailedPayload{
				Attempts: attempts,
				LastErr:  lastErr.Error(),
			},
		})
	}
}

// Generate snapshots the message log up to the close timestamp, renders
// it, and stores the record. Saving twice for the same ticket keeps the
// first record.
func (t *TranscriptService) Generate(ctx context.Context, ticketID string) (*domain.TranscriptRecord, error) {
	ticket, err := t.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.ClosedAt == nil {
		return nil, apperrors.NewInvalidTransition(ticket.ID, string(ticket.State), string(domain.TicketStateArchived))
	}
	msgs, err := t.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	snapshot := msgs[:0:0]
	for _, msg := range msgs {
		if !msg.CreatedAt.After(*ticket.ClosedAt) {
			snapshot = append(snapshot, msg)
		}
	}

	body := RenderTranscript(ticket, snapshot)
	sum := blake3.Sum256([]byte(body))
	record := &domain.TranscriptRecord{
		TicketID:    ticket.ID,
		Body:        body,
		ContentHash: hex.EncodeToString(sum[:]),
		EntryCount:  len(snapshot),
		GeneratedAt: time.Now().UTC(),
	}
	if err := t.transcripts.Save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

const transcriptRule = "============================================================"

// RenderTranscript produces the plain-text artifact. The output depends
// only on the ticket's recorded fields and the snapshot, never on the
// wall clock, so the same input is always byte-identical.
func RenderTranscript(ticket *domain.Ticket, msgs []domain.TicketMessage) string {
	var b strings.Builder
	b.WriteString(transcriptRule + "\n")
	fmt.Fprintf(&b, "TICKET TRANSCRIPT #%d\n", ticket.Number)
	b.WriteString(transcriptRule + "\n")
	fmt.Fprintf(&b, "Guild: %s\n", ticket.GuildID)
	fmt.Fprintf(&b, "Opened by: %s\n", ticket.OwnerID)
	fmt.Fprintf(&b, "Category: %s\n", ticket.Category)
	fmt.Fprintf(&b, "Created at: %s\n", ticket.CreatedAt.UTC().Format(time.RFC3339))
	if ticket.ClosedAt != nil {
		fmt.Fprintf(&b, "Closed at: %s\n", ticket.ClosedAt.UTC().Format(time.RFC3339))
	}
	if ticket.ClosedBy != nil {
		fmt.Fprintf(&b, "Closed by: %s\n", *ticket.ClosedBy)
	}
	if ticket.CloseReason != nil && *ticket.CloseReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", *ticket.CloseReason)
	}
	b.WriteString(transcriptRule + "\n")
	for _, msg := range msgs {
		fmt.Fprintf(&b, "[%s] %s (%s): %s\n",
			msg.CreatedAt.UTC().Format(time.RFC3339),
			msg.AuthorID,
			msg.AuthorType,
			msg.Body)
	}
	b.WriteString(transcriptRule + "\n")
	fmt.Fprintf(&b, "Total messages: %d\n", len(msgs))
	return b.String()
}
