package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/repository"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util"
)

// GuildConfigHandler manages per-guild ticket settings.
type GuildConfigHandler struct {
	configs repository.GuildConfigRepository
}

// NewGuildConfigHandler constructs handler.
func NewGuildConfigHandler(configs repository.GuildConfigRepository) *GuildConfigHandler {
	return &GuildConfigHandler{configs: configs}
}

// Get GET /guilds/:guildID/config.
func (h *GuildConfigHandler) Get(c *fiber.Ctx) error {
	cfg, err := h.configs.Get(c.UserContext(), c.Params("guildID"))
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &domain.GuildConfig{GuildID: c.Params("guildID")}
	}
	return c.JSON(fiber.Map{"data": cfg})
}

// Set PUT /guilds/:guildID/config.
func (h *GuildConfigHandler) Set(c *fiber.Ctx) error {
	var cfg domain.GuildConfig
	if err := c.BodyParser(&cfg); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if cfg.DuplicateScope != "" &&
		cfg.DuplicateScope != domain.DuplicateScopeCategory &&
		cfg.DuplicateScope != domain.DuplicateScopeGlobal {
		return apperrors.NewValidationError("invalid duplicate_scope", nil)
	}
	cfg.GuildID = c.Params("guildID")
	if err := h.configs.Set(c.UserContext(), &cfg); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": cfg})
}
