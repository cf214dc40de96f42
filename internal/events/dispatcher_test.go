package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishInvokesAllSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string

	d.Subscribe(EventTicketOpened, func(context.Context, Event) error {
		calls = append(calls, "first")
		return nil
	})
	d.Subscribe(EventTicketOpened, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		calls = append(calls, "unrelated")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketOpened, TicketID: "t-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, calls)
}

func TestPublishSurvivesHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher()
	reached := false

	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		return errors.New("subscriber blew up")
	})
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketClosed})
	require.NoError(t, err)
	require.True(t, reached)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketArchived}))
}

func TestPublishDeliversPayload(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got Event

	d.Subscribe(EventTicketClaimed, func(_ context.Context, e Event) error {
		got = e
		return nil
	})

	want := Event{
		Type:     EventTicketClaimed,
		TicketID: "t-1",
		GuildID:  "g-1",
		Actor:    Actor{ID: "staff-a", Staff: true},
		Payload:  TicketClaimedPayload{StaffID: "staff-a"},
	}
	require.NoError(t, d.Publish(context.Background(), want))
	require.Equal(t, want, got)
}
