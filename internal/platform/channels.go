package platform

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// ChannelGateway issues channel requests to the external chat platform.
// Calls are best-effort side effects and never a source of ticket state.
type ChannelGateway interface {
	// CreateChannel provisions a channel for a fresh ticket and returns
	// its reference. Implementations must be idempotent per ticket.
	CreateChannel(ctx context.Context, ticket *domain.Ticket) (string, error)
	// ArchiveChannel moves the ticket channel to the archive.
	ArchiveChannel(ctx context.Context, ticket *domain.Ticket) error
}

// RetryingGateway wraps a gateway with bounded idempotent retry.
type RetryingGateway struct {
	inner    ChannelGateway
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

// NewRetryingGateway wraps inner with up to attempts tries per call.
func NewRetryingGateway(inner ChannelGateway, attempts int, backoff time.Duration, logger *zap.Logger) *RetryingGateway {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingGateway{inner: inner, attempts: attempts, backoff: backoff, logger: logger}
}

func (g *RetryingGateway) CreateChannel(ctx context.Context, ticket *domain.Ticket) (string, error) {
	var ref string
	err := g.retry(ctx, "create_channel", ticket.ID, func() error {
		var err error
		ref, err = g.inner.CreateChannel(ctx, ticket)
		return err
	})
	return ref, err
}

func (g *RetryingGateway) ArchiveChannel(ctx context.Context, ticket *domain.Ticket) error {
	return g.retry(ctx, "archive_channel", ticket.ID, func() error {
		return g.inner.ArchiveChannel(ctx, ticket)
	})
}

func (g *RetryingGateway) retry(ctx context.Context, op, ticketID string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		g.logger.Warn("channel request failed",
			zap.String("op", op),
			zap.String("ticket_id", ticketID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < g.attempts {
			select {
			case <-time.After(g.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// LoggingGateway is the default gateway used when no platform adapter is
// wired in: it logs requests and fabricates channel references.
type LoggingGateway struct {
	logger *zap.Logger
}

// NewLoggingGateway creates the stand-in gateway.
func NewLoggingGateway(logger *zap.Logger) *LoggingGateway {
	return &LoggingGateway{logger: logger}
}

func (g *LoggingGateway) CreateChannel(_ context.Context, ticket *domain.Ticket) (string, error) {
	g.logger.Info("createChannel requested",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("number", ticket.Number))
	return "", nil
}

func (g *LoggingGateway) ArchiveChannel(_ context.Context, ticket *domain.Ticket) error {
	g.logger.Info("archiveChannel requested",
		zap.String("ticket_id", ticket.ID),
		zap.String("channel_ref", ticket.ChannelRef))
	return nil
}
