package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// GuildConfigRepository stores per-guild ticket settings as a JSON blob,
// one row per guild.
type GuildConfigRepository interface {
	// Get returns nil without error when the guild has no stored config.
	Get(ctx context.Context, guildID string) (*domain.GuildConfig, error)
	Set(ctx context.Context, cfg *domain.GuildConfig) error
}

type guildConfigRepository struct {
	pool *pgxpool.Pool
}

// NewGuildConfigRepository instantiates the Postgres-backed repository.
func NewGuildConfigRepository(pool *pgxpool.Pool) GuildConfigRepository {
	return &guildConfigRepository{pool: pool}
}

func (r *guildConfigRepository) Get(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	const query = `SELECT config FROM guild_configs WHERE guild_id=$1`
	var raw []byte
	if err := r.pool.QueryRow(ctx, query, guildID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapStorageErr(err)
	}
	var cfg domain.GuildConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.GuildID = guildID
	return &cfg, nil
}

func (r *guildConfigRepository) Set(ctx context.Context, cfg *domain.GuildConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO guild_configs (guild_id, config, updated_at) VALUES ($1,$2,$3)
        ON CONFLICT (guild_id) DO UPDATE SET config=EXCLUDED.config, updated_at=EXCLUDED.updated_at`
	if _, err := r.pool.Exec(ctx, query, cfg.GuildID, raw, time.Now()); err != nil {
		return mapStorageErr(err)
	}
	return nil
}
