package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/api/dto"
	"github.com/spec-kit/ticket-desk/internal/auth"
	"github.com/spec-kit/ticket-desk/internal/repository"
	"github.com/spec-kit/ticket-desk/internal/service"
	apperrors "github.com/spec-kit/ticket-desk/pkg/util"
)

// TicketsHandler exposes lifecycle operations to the chat gateway.
type TicketsHandler struct {
	lifecycle   *service.LifecycleService
	transcripts repository.TranscriptRepository
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService, transcripts repository.TranscriptRepository) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle, transcripts: transcripts}
}

func actorFromPrincipal(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return service.Actor{ID: principal.ActorID, Staff: principal.Staff}, nil
}

// Open POST /guilds/:guildID/tickets.
func (h *TicketsHandler) Open(c *fiber.Ctx) error {
	actor, err := actorFromPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.OpenTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = actor.ID
	}
	// Only staff may open tickets on someone else's behalf.
	if ownerID != actor.ID && !actor.Staff {
		return apperrors.NewForbidden("cannot open a ticket for another user")
	}
	ticket, err := h.lifecycle.Open(c.UserContext(), c.Params("guildID"), ownerID, req.Category)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// List GET /guilds/:guildID/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	tickets, err := h.lifecycle.ListNonTerminal(c.UserContext(), c.Params("guildID"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.FromTicket(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	msgs, err := h.lifecycle.ListMessages(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, dto.FromMessage(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket":   dto.FromTicket(ticket),
		"messages": items,
	}})
}

// GetByNumber GET /guilds/:guildID/tickets/number/:number.
func (h *TicketsHandler) GetByNumber(c *fiber.Ctx) error {
	number, err := strconv.ParseInt(c.Params("number"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("invalid ticket number", nil)
	}
	ticket, err := h.lifecycle.GetTicketByNumber(c.UserContext(), c.Params("guildID"), number)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// GetByChannel GET /channels/:channelRef/ticket.
func (h *TicketsHandler) GetByChannel(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.GetTicketByChannel(c.UserContext(), c.Params("channelRef"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Claim POST /tickets/:id/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	actor, err := actorFromPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Claim(c.UserContext(), c.Params("id"), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Unclaim POST /tickets/:id/unclaim.
func (h *TicketsHandler) Unclaim(c *fiber.Ctx) error {
	actor, err := actorFromPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.Unclaim(c.UserContext(), c.Params("id"), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// MarkInProgress POST /tickets/:id/progress.
func (h *TicketsHandler) MarkInProgress(c *fiber.Ctx) error {
	actor, err := actorFromPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.lifecycle.MarkInProgress(c.UserContext(), c.Params("id"), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	actor, err := actorFromPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CloseTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Close(c.UserContext(), c.Params("id"), actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// Archive POST /tickets/:id/archive.
func (h *TicketsHandler) Archive(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.Archive(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromTicket(ticket)})
}

// TouchActivity POST /tickets/:id/activity.
func (h *TicketsHandler) TouchActivity(c *fiber.Ctx) error {
	if err := h.lifecycle.TouchActivity(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	actor, err := actorFromPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AddMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.lifecycle.AddMessage(c.UserContext(), c.Params("id"), actor, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.FromMessage(msg)})
}

// GetTranscript GET /tickets/:id/transcript.
func (h *TicketsHandler) GetTranscript(c *fiber.Ctx) error {
	record, err := h.transcripts.GetByTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TranscriptResponse{
		TicketID:    record.TicketID,
		Body:        record.Body,
		ContentHash: record.ContentHash,
		EntryCount:  record.EntryCount,
		GeneratedAt: record.GeneratedAt,
	}})
}
