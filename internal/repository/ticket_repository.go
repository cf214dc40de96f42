package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-desk/internal/domain"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util"
)

// TicketRepository encapsulates durable ticket persistence. All writes
// are committed before the call returns.
type TicketRepository interface {
	// Create assigns the next per-guild ticket number and inserts the
	// record as one atomic unit. Concurrent creates in the same guild
	// never collide on a number and never leave gaps.
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Put writes the ticket only if the stored version still equals
	// expectedVersion, then bumps the version. Stale writes fail with
	// VERSION_CONFLICT.
	Put(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByGuildNumber(ctx context.Context, guildID string, number int64) (*domain.Ticket, error)
	GetByChannel(ctx context.Context, channelRef string) (*domain.Ticket, error)
	ListNonTerminal(ctx context.Context, guildID string) ([]domain.Ticket, error)
	// ListAllNonTerminal feeds the inactivity sweep across guilds.
	ListAllNonTerminal(ctx context.Context) ([]domain.Ticket, error)
	ListOpenByOwner(ctx context.Context, guildID, ownerID string) ([]domain.Ticket, error)
	// TouchActivity refreshes last-activity and clears the idle-warning
	// flag. Activity is not a transition, so the version is untouched.
	TouchActivity(ctx context.Context, id string, ts time.Time) error
	// SetIdleWarned marks the current idle episode as warned.
	SetIdleWarned(ctx context.Context, id string, ts time.Time) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, guild_id, number, owner_id, category, state, assignee_id,
               channel_ref, created_at, last_activity, idle_warned, closed_at, closed_by, close_reason, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapStorageErr(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Counter increment and ticket insert commit together; an aborted
	// insert rolls the counter back so numbers stay gapless.
	const counterQuery = `
        INSERT INTO ticket_counters (guild_id, value) VALUES ($1, 1)
        ON CONFLICT (guild_id) DO UPDATE SET value = ticket_counters.value + 1
        RETURNING value`
	if err := tx.QueryRow(ctx, counterQuery, ticket.GuildID).Scan(&ticket.Number); err != nil {
		return mapStorageErr(err)
	}

	const insertQuery = `
        INSERT INTO tickets (id, guild_id, number, owner_id, category, state, assignee_id,
                             channel_ref, created_at, last_activity, idle_warned, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	if _, err := tx.Exec(ctx, insertQuery,
		ticket.ID,
		ticket.GuildID,
		ticket.Number,
		ticket.OwnerID,
		ticket.Category,
		ticket.State,
		ticket.AssigneeID,
		ticket.ChannelRef,
		ticket.CreatedAt,
		ticket.LastActivity,
		ticket.IdleWarned,
		ticket.Version,
	); err != nil {
		return mapStorageErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapStorageErr(err)
	}
	return nil
}

func (r *ticketRepository) Put(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	const query = `
        UPDATE tickets SET state=$1, assignee_id=$2, channel_ref=$3, last_activity=$4,
            idle_warned=$5, closed_at=$6, closed_by=$7, close_reason=$8, version=version+1
        WHERE id=$9 AND version=$10`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.State,
		ticket.AssigneeID,
		ticket.ChannelRef,
		ticket.LastActivity,
		ticket.IdleWarned,
		ticket.ClosedAt,
		ticket.ClosedBy,
		ticket.CloseReason,
		ticket.ID,
		expectedVersion,
	)
	if err != nil {
		return mapStorageErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewVersionConflict(ticket.ID)
	}
	ticket.Version = expectedVersion + 1
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByGuildNumber(ctx context.Context, guildID string, number int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE guild_id=$1 AND number=$2`, guildID, number)
}

func (r *ticketRepository) GetByChannel(ctx context.Context, channelRef string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE channel_ref=$1`, channelRef)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.GuildID,
		&ticket.Number,
		&ticket.OwnerID,
		&ticket.Category,
		&ticket.State,
		&ticket.AssigneeID,
		&ticket.ChannelRef,
		&ticket.CreatedAt,
		&ticket.LastActivity,
		&ticket.IdleWarned,
		&ticket.ClosedAt,
		&ticket.ClosedBy,
		&ticket.CloseReason,
		&ticket.Version,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewTicketNotFound(argID(args))
		}
		return nil, mapStorageErr(err)
	}
	return &ticket, nil
}

func argID(args []any) string {
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	return "unknown"
}

func (r *ticketRepository) ListNonTerminal(ctx context.Context, guildID string) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
             FROM tickets WHERE guild_id=$1 AND state NOT IN ('CLOSED','ARCHIVED')
             ORDER BY number`
	rows, err := r.pool.Query(ctx, query, guildID)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListAllNonTerminal(ctx context.Context) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
             FROM tickets WHERE state NOT IN ('CLOSED','ARCHIVED')
             ORDER BY guild_id, number`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListOpenByOwner(ctx context.Context, guildID, ownerID string) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
             FROM tickets WHERE guild_id=$1 AND owner_id=$2 AND state NOT IN ('CLOSED','ARCHIVED')
             ORDER BY number`
	rows, err := r.pool.Query(ctx, query, guildID, ownerID)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) TouchActivity(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE tickets SET last_activity=$1, idle_warned=FALSE WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, ts, id)
	if err != nil {
		return mapStorageErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewTicketNotFound(id)
	}
	return nil
}

func (r *ticketRepository) SetIdleWarned(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE tickets SET idle_warned=TRUE WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return mapStorageErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewTicketNotFound(id)
	}
	return nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.GuildID,
			&ticket.Number,
			&ticket.OwnerID,
			&ticket.Category,
			&ticket.State,
			&ticket.AssigneeID,
			&ticket.ChannelRef,
			&ticket.CreatedAt,
			&ticket.LastActivity,
			&ticket.IdleWarned,
			&ticket.ClosedAt,
			&ticket.ClosedBy,
			&ticket.CloseReason,
			&ticket.Version,
		); err != nil {
			return nil, mapStorageErr(err)
		}
		result = append(result, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(err)
	}
	return result, nil
}

// mapStorageErr classifies driver failures, including deadline and
// cancellation, as STORAGE_UNAVAILABLE so callers can distinguish
// infrastructure trouble from domain conflicts.
func mapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.NewStorageUnavailable(err)
}
