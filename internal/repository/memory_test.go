package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-desk/internal/domain"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util"
)

func newTicket(id, guildID string) *domain.Ticket {
	now := time.Now().UTC()
	return &domain.Ticket{
		ID:           id,
		GuildID:      guildID,
		OwnerID:      "owner-1",
		Category:     "support",
		State:        domain.TicketStateOpen,
		CreatedAt:    now,
		LastActivity: now,
		Version:      1,
	}
}

func TestCreateAssignsGaplessNumbersUnderConcurrency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, store.Create(ctx, newTicket(fmt.Sprintf("t-%d", i), "guild-1")))
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		ticket, err := store.GetByID(ctx, fmt.Sprintf("t-%d", i))
		require.NoError(t, err)
		require.False(t, seen[ticket.Number])
		seen[ticket.Number] = true
	}
	for i := int64(1); i <= n; i++ {
		require.True(t, seen[i], "gap at number %d", i)
	}
}

func TestPutEnforcesVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ticket := newTicket("t-1", "guild-1")
	require.NoError(t, store.Create(ctx, ticket))

	ticket.State = domain.TicketStateClaimed
	require.NoError(t, store.Put(ctx, ticket, 1))
	require.Equal(t, int64(2), ticket.Version)

	// A writer still holding version 1 must lose.
	stale := newTicket("t-1", "guild-1")
	stale.State = domain.TicketStateClosed
	err := store.Put(ctx, stale, 1)
	require.True(t, apperrors.HasCode(err, apperrors.CodeVersionConflict))

	stored, err := store.GetByID(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateClaimed, stored.State)
}

func TestPutUnknownTicket(t *testing.T) {
	store := NewMemoryStore()
	err := store.Put(context.Background(), newTicket("missing", "guild-1"), 1)
	require.True(t, apperrors.HasCode(err, apperrors.CodeTicketNotFound))
}

func TestGetReturnsIsolatedCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ticket := newTicket("t-1", "guild-1")
	require.NoError(t, store.Create(ctx, ticket))

	first, err := store.GetByID(ctx, "t-1")
	require.NoError(t, err)
	staff := "staff-a"
	first.AssigneeID = &staff
	first.State = domain.TicketStateClaimed

	second, err := store.GetByID(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, domain.TicketStateOpen, second.State)
	require.Nil(t, second.AssigneeID)
}

func TestLookupByNumberAndChannel(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ticket := newTicket("t-1", "guild-1")
	require.NoError(t, store.Create(ctx, ticket))
	ticket.ChannelRef = "chan-42"
	require.NoError(t, store.Put(ctx, ticket, 1))

	byNumber, err := store.GetByGuildNumber(ctx, "guild-1", ticket.Number)
	require.NoError(t, err)
	require.Equal(t, "t-1", byNumber.ID)

	_, err = store.GetByGuildNumber(ctx, "guild-2", ticket.Number)
	require.True(t, apperrors.HasCode(err, apperrors.CodeTicketNotFound))

	byChannel, err := store.GetByChannel(ctx, "chan-42")
	require.NoError(t, err)
	require.Equal(t, "t-1", byChannel.ID)

	_, err = store.GetByChannel(ctx, "chan-missing")
	require.True(t, apperrors.HasCode(err, apperrors.CodeTicketNotFound))
}

func TestTouchActivityClearsWarnFlag(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ticket := newTicket("t-1", "guild-1")
	require.NoError(t, store.Create(ctx, ticket))
	require.NoError(t, store.SetIdleWarned(ctx, "t-1", time.Now()))

	warned, err := store.GetByID(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, warned.IdleWarned)

	ts := time.Now().UTC()
	require.NoError(t, store.TouchActivity(ctx, "t-1", ts))
	touched, err := store.GetByID(ctx, "t-1")
	require.NoError(t, err)
	require.False(t, touched.IdleWarned)
	require.Equal(t, ts, touched.LastActivity)
}

func TestTranscriptSaveKeepsFirstRecord(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &domain.TranscriptRecord{TicketID: "t-1", Body: "original", ContentHash: "aaa"}
	require.NoError(t, store.Save(ctx, first))

	second := &domain.TranscriptRecord{TicketID: "t-1", Body: "rewrite", ContentHash: "bbb"}
	require.NoError(t, store.Save(ctx, second))

	stored, err := store.GetByTicket(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, "original", stored.Body)
	require.Equal(t, "aaa", stored.ContentHash)
}

func TestTranscriptMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetByTicket(context.Background(), "t-1")
	require.True(t, apperrors.HasCode(err, apperrors.CodeTranscriptPending))
}

func TestGuildConfigRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	absent, err := store.Get(ctx, "guild-1")
	require.NoError(t, err)
	require.Nil(t, absent)

	require.NoError(t, store.Set(ctx, &domain.GuildConfig{
		GuildID:        "guild-1",
		MaxOpenTickets: 5,
		DuplicateScope: domain.DuplicateScopeGlobal,
	}))

	cfg, err := store.Get(ctx, "guild-1")
	require.NoError(t, err)
	require.Equal(t, 5, cfg.MaxOpenTickets)
	require.Equal(t, domain.DuplicateScopeGlobal, cfg.DuplicateScope)
}

func TestListNonTerminalFiltersAndOrders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(ctx, newTicket(fmt.Sprintf("t-%d", i), "guild-1")))
	}
	require.NoError(t, store.Create(ctx, newTicket("other", "guild-2")))

	closed, err := store.GetByID(ctx, "t-1")
	require.NoError(t, err)
	closed.State = domain.TicketStateClosed
	require.NoError(t, store.Put(ctx, closed, 1))

	live, err := store.ListNonTerminal(ctx, "guild-1")
	require.NoError(t, err)
	require.Len(t, live, 2)
	require.Less(t, live[0].Number, live[1].Number)

	all, err := store.ListAllNonTerminal(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestCancelledContextSurfacesStorageUnavailable(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Create(ctx, newTicket("t-1", "guild-1"))
	require.True(t, apperrors.HasCode(err, apperrors.CodeStorageUnavailable))

	_, err = store.GetByID(ctx, "t-1")
	require.True(t, apperrors.HasCode(err, apperrors.CodeStorageUnavailable))
}

func TestMemoryActivityCache(t *testing.T) {
	cache := NewMemoryActivityCache()
	ctx := context.Background()

	last, err := cache.Last(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, last.IsZero())

	ts := time.Now().UTC()
	require.NoError(t, cache.Mark(ctx, "t-1", ts))
	last, err = cache.Last(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, ts, last)

	require.NoError(t, cache.Clear(ctx, "t-1"))
	last, err = cache.Last(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, last.IsZero())
}
