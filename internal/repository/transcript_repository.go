package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-desk/internal/domain"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util"
)

// TranscriptRepository stores the immutable archive artifacts.
type TranscriptRepository interface {
	// Save persists the record. A second save for the same ticket is a
	// no-op: the first stored transcript wins and is never replaced.
	Save(ctx context.Context, record *domain.TranscriptRecord) error
	GetByTicket(ctx context.Context, ticketID string) (*domain.TranscriptRecord, error)
}

type transcriptRepository struct {
	pool *pgxpool.Pool
}

// NewTranscriptRepository instantiates the Postgres-backed repository.
func NewTranscriptRepository(pool *pgxpool.Pool) TranscriptRepository {
	return &transcriptRepository{pool: pool}
}

func (r *transcriptRepository) Save(ctx context.Context, record *domain.TranscriptRecord) error {
	const query = `
        INSERT INTO transcripts (ticket_id, body, content_hash, entry_count, generated_at)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (ticket_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query,
		record.TicketID,
		record.Body,
		record.ContentHash,
		record.EntryCount,
		record.GeneratedAt,
	); err != nil {
		return mapStorageErr(err)
	}
	return nil
}

func (r *transcriptRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.TranscriptRecord, error) {
	const query = `
        SELECT ticket_id, body, content_hash, entry_count, generated_at
        FROM transcripts WHERE ticket_id=$1`
	var record domain.TranscriptRecord
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&record.TicketID,
		&record.Body,
		&record.ContentHash,
		&record.EntryCount,
		&record.GeneratedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewTranscriptPending(ticketID)
		}
		return nil, mapStorageErr(err)
	}
	return &record, nil
}
