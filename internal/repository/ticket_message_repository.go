package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// TicketMessageRepository persists the append-only conversation log.
type TicketMessageRepository interface {
	Append(ctx context.Context, msg *domain.TicketMessage) error
	// ListByTicket returns messages ordered by creation time, then
	// insertion order for equal timestamps.
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository instantiates the Postgres-backed repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Append(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, author_id, author_type, body, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.AuthorID,
		msg.AuthorType,
		msg.Body,
		msg.CreatedAt,
	); err != nil {
		return mapStorageErr(err)
	}
	return nil
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, author_id, author_type, body, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at, seq`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.AuthorID,
			&msg.AuthorType,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, mapStorageErr(err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStorageErr(err)
	}
	return result, nil
}
