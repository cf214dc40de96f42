package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/events"
	"github.com/spec-kit/ticket-desk/internal/observability"
	"github.com/spec-kit/ticket-desk/internal/repository"
)

func newTranscriptFixture(t *testing.T, transcripts repository.TranscriptRepository) (*TranscriptService, *lifecycleFixture) {
	t.Helper()
	f := newLifecycleFixture(t, testLifecycleConfig())
	if transcripts == nil {
		transcripts = f.store
	}
	svc := NewTranscriptService(testLifecycleConfig(), TranscriptDependencies{
		TicketRepo:     f.store,
		MessageRepo:    f.store,
		TranscriptRepo: transcripts,
		Dispatcher:     f.dispatcher,
		Archiver:       f.svc,
		Metrics:        observability.NewMetrics(prometheus.NewRegistry()),
		Logger:         zap.NewNop(),
	})
	return svc, f
}

func closeTicketWithMessages(t *testing.T, f *lifecycleFixture, bodies ...string) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := f.svc.Open(ctx, "guild-1", "owner-1", "support")
	require.NoError(t, err)
	for _, body := range bodies {
		_, err := f.svc.AddMessage(ctx, ticket.ID, Actor{ID: "owner-1"}, body)
		require.NoError(t, err)
	}
	closed, err := f.svc.Close(ctx, ticket.ID, Actor{ID: "owner-1"}, "resolved")
	require.NoError(t, err)
	return closed
}

func TestGenerateIsDeterministic(t *testing.T) {
	svc, f := newTranscriptFixture(t, nil)
	ctx := context.Background()
	ticket := closeTicketWithMessages(t, f, "first", "second")

	record, err := svc.Generate(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, 2, record.EntryCount)
	require.NotEmpty(t, record.ContentHash)

	// Re-rendering the same ticket yields the exact same bytes and hash.
	rendered := RenderTranscript(ticket, mustListMessages(t, f, ticket.ID))
	require.Equal(t, record.Body, rendered)

	again, err := svc.Generate(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, record.ContentHash, again.ContentHash)
	require.Equal(t, record.Body, again.Body)
}

func mustListMessages(t *testing.T, f *lifecycleFixture, ticketID string) []domain.TicketMessage {
	t.Helper()
	msgs, err := f.svc.ListMessages(context.Background(), ticketID)
	require.NoError(t, err)
	return msgs
}

func TestGenerateEmptyLog(t *testing.T) {
	svc, f := newTranscriptFixture(t, nil)
	ticket := closeTicketWithMessages(t, f)

	record, err := svc.Generate(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, 0, record.EntryCount)
	require.NotEmpty(t, record.Body)
	require.NotEmpty(t, record.ContentHash)
	require.Contains(t, record.Body, "Total messages: 0")
}

func TestGenerateSnapshotsAtCloseTime(t *testing.T) {
	svc, f := newTranscriptFixture(t, nil)
	ctx := context.Background()
	ticket := closeTicketWithMessages(t, f, "in scope")

	// A straggler landing in the store after close must not leak into the
	// transcript.
	require.NoError(t, f.store.Append(ctx, &domain.TicketMessage{
		ID:         "late",
		TicketID:   ticket.ID,
		AuthorID:   "owner-1",
		AuthorType: domain.AuthorTypeUser,
		Body:       "out of scope",
		CreatedAt:  ticket.ClosedAt.Add(time.Minute),
	}))

	record, err := svc.Generate(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, 1, record.EntryCount)
	require.NotContains(t, record.Body, "out of scope")
}

func TestGenerateRequiresClosedTicket(t *testing.T) {
	svc, f := newTranscriptFixture(t, nil)
	ctx := context.Background()
	ticket, err := f.svc.Open(ctx, "guild-1", "owner-1", "support")
	require.NoError(t, err)

	_, err = svc.Generate(ctx, ticket.ID)
	require.Error(t, err)
}

func TestGenerateAndArchiveSucceeds(t *testing.T) {
	svc, f := newTranscriptFixture(t, nil)
	ctx := context.Background()
	ticket := closeTicketWithMessages(t, f, "hello")

	svc.GenerateAndArchive(ctx, ticket.ID)

	archived, err := f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateArchived, archived.State)

	record, err := f.store.GetByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, 1, record.EntryCount)
}

type failingTranscriptRepo struct {
	mu       sync.Mutex
	attempts int
}

func (r *failingTranscriptRepo) Save(context.Context, *domain.TranscriptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	return errors.New("object store down")
}

func (r *failingTranscriptRepo) GetByTicket(_ context.Context, ticketID string) (*domain.TranscriptRecord, error) {
	return nil, errors.New("object store down")
}

func TestGenerateAndArchivePermanentFailure(t *testing.T) {
	failing := &failingTranscriptRepo{}
	svc, f := newTranscriptFixture(t, failing)
	ctx := context.Background()
	ticket := closeTicketWithMessages(t, f, "hello")

	failedEvents := countEvents(f, events.EventTranscriptFailed)

	svc.GenerateAndArchive(ctx, ticket.ID)

	require.Equal(t, testLifecycleConfig().TranscriptRetries, failing.attempts)
	require.Equal(t, 1, *failedEvents)

	// Transcript failure leaves the ticket CLOSED for manual follow-up.
	stuck, err := f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateClosed, stuck.State)
}

func TestGenerateAndArchiveRetriesTransientFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	flaky := &flakyTranscriptRepo{inner: store, failures: 1}
	svc, f := newTranscriptFixtureWithStore(t, store, flaky)
	ctx := context.Background()
	ticket := closeTicketWithMessages(t, f, "hello")

	svc.GenerateAndArchive(ctx, ticket.ID)

	archived, err := f.svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateArchived, archived.State)
}

type flakyTranscriptRepo struct {
	inner    repository.TranscriptRepository
	mu       sync.Mutex
	failures int
}

func (r *flakyTranscriptRepo) Save(ctx context.Context, record *domain.TranscriptRecord) error {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return errors.New("transient write failure")
	}
	r.mu.Unlock()
	return r.inner.Save(ctx, record)
}

func (r *flakyTranscriptRepo) GetByTicket(ctx context.Context, ticketID string) (*domain.TranscriptRecord, error) {
	return r.inner.GetByTicket(ctx, ticketID)
}

func newTranscriptFixtureWithStore(t *testing.T, store *repository.MemoryStore, transcripts repository.TranscriptRepository) (*TranscriptService, *lifecycleFixture) {
	t.Helper()
	dispatcher := events.NewInMemoryDispatcher()
	lifecycle := NewLifecycleService(testLifecycleConfig(), LifecycleDependencies{
		TicketRepo:     store,
		MessageRepo:    store,
		TranscriptRepo: transcripts,
		GuildConfigs:   store,
		Activity:       repository.NewMemoryActivityCache(),
		Dispatcher:     dispatcher,
		Metrics:        observability.NewMetrics(prometheus.NewRegistry()),
		Logger:         zap.NewNop(),
	})
	svc := NewTranscriptService(testLifecycleConfig(), TranscriptDependencies{
		TicketRepo:     store,
		MessageRepo:    store,
		TranscriptRepo: transcripts,
		Dispatcher:     dispatcher,
		Archiver:       lifecycle,
		Metrics:        observability.NewMetrics(prometheus.NewRegistry()),
		Logger:         zap.NewNop(),
	})
	f := &lifecycleFixture{svc: lifecycle, store: store, dispatcher: dispatcher}
	return svc, f
}
