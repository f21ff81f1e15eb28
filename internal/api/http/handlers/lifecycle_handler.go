package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/rules"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/workflow"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// LifecycleHandler exposes ticket transitions, SLA operations and history.
type LifecycleHandler struct {
	service *service.LifecycleService
}

// NewLifecycleHandler constructs handler.
func NewLifecycleHandler(lifecycleService *service.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{service: lifecycleService}
}

// CreateTicket POST /tickets.
func (h *LifecycleHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, view, err := h.service.CreateTicket(c.UserContext(), workflow.NewTicket{
		ID:             req.ID,
		Classification: req.Classification,
		Priority:       req.Priority,
		Actor:          actor,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CreateTicketResponse{
		Ticket: ticketResponse(ticket),
		SLA:    slaResponse(view),
	}})
}

// GetTicket GET /tickets/:id.
func (h *LifecycleHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.Ticket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Transition POST /tickets/:id/transitions.
func (h *LifecycleHandler) Transition(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.From == "" || req.To == "" {
		return apperrors.NewValidationError("from and to required", nil)
	}

	res, err := h.service.ExecuteTransition(c.UserContext(), workflow.TransitionRequest{
		TicketID: c.Params("id"),
		From:     req.From,
		To:       req.To,
		Actor:    actor,
		Reason:   req.Reason,
	})
	if err != nil {
		return err
	}
	view, err := h.service.View(res.SLA, res.Record.OccurredAt)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TransitionResponse{
		TicketID:    res.Record.TicketID,
		Status:      res.Status,
		SideEffects: effectNames(res.Effects),
		Breached:    res.Breached,
		SLA:         slaResponse(view),
		Record:      recordResponse(res.Record),
	}})
}

// GetSLA GET /tickets/:id/sla. An optional RFC 3339 "at" query evaluates
// the SLA at another instant.
func (h *LifecycleHandler) GetSLA(c *fiber.Ctx) error {
	now := h.service.Now()
	if at := c.Query("at"); at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return apperrors.NewValidationError("at must be RFC 3339", map[string]any{"at": at})
		}
		now = parsed
	}
	view, err := h.service.GetSLA(c.UserContext(), c.Params("id"), now)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaResponse(view)})
}

// PauseSLA POST /tickets/:id/sla/pause.
func (h *LifecycleHandler) PauseSLA(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.PauseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	view, err := h.service.PauseSLA(c.UserContext(), actor, c.Params("id"), req.Reason, h.service.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaResponse(view)})
}

// ResumeSLA POST /tickets/:id/sla/resume.
func (h *LifecycleHandler) ResumeSLA(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	view, err := h.service.ResumeSLA(c.UserContext(), actor, c.Params("id"), h.service.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaResponse(view)})
}

// MarkFirstResponse POST /tickets/:id/sla/first-response.
func (h *LifecycleHandler) MarkFirstResponse(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	view, err := h.service.MarkFirstResponse(c.UserContext(), actor, c.Params("id"), h.service.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaResponse(view)})
}

// Reclassify PUT /tickets/:id/classification.
func (h *LifecycleHandler) Reclassify(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.ReclassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	view, err := h.service.Reclassify(c.UserContext(), actor, c.Params("id"), req.Classification, req.Priority, h.service.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaResponse(view)})
}

// History GET /tickets/:id/history. "limit" caps the number of entries.
func (h *LifecycleHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return apperrors.NewValidationError("limit must not be negative", nil)
	}
	ticketID := c.Params("id")
	if _, err := h.service.Ticket(c.UserContext(), ticketID); err != nil {
		return err
	}

	items := make([]dto.RecordResponse, 0)
	for rec, err := range h.service.History(c.UserContext(), ticketID) {
		if err != nil {
			return err
		}
		items = append(items, recordResponse(rec))
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return c.JSON(fiber.Map{"data": items})
}

// Rules GET /rules.
func (h *LifecycleHandler) Rules(c *fiber.Ctx) error {
	list := h.service.Rules()
	items := make([]dto.RuleResponse, 0, len(list))
	for _, r := range list {
		items = append(items, dto.RuleResponse{
			From:           r.From,
			To:             r.To,
			AllowedRoles:   r.AllowedRoles,
			RequiresReason: r.RequiresReason,
			SideEffects:    effectNames(r.SideEffects),
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func requireActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func ticketResponse(t *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:             t.ID,
		Status:         t.Status,
		Priority:       t.Priority,
		Classification: t.Classification,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func slaResponse(v *service.SLAView) dto.SLAResponse {
	return dto.SLAResponse{
		TicketID: v.TicketID,
		Policy: dto.PolicyResponse{
			Name:                  v.Policy.Name,
			Classification:        v.Policy.Classification,
			Priority:              v.Policy.Priority,
			FirstResponseTargetMS: v.Policy.FirstResponseTarget.Milliseconds(),
			ResolutionTargetMS:    v.Policy.ResolutionTarget.Milliseconds(),
			Calendar:              v.Policy.Calendar,
		},
		ElapsedActiveMS:        v.ElapsedActive.Milliseconds(),
		FirstResponseElapsedMS: v.FirstResponseElapsed.Milliseconds(),
		FirstRespondedAt:       v.FirstRespondedAt,
		FirstResponseBreached:  v.FirstResponseBreached,
		ResolutionBreached:     v.ResolutionBreached,
		IsPaused:               v.IsPaused,
		PauseReason:            v.PauseReason,
		Stopped:                v.Stopped,
		AsOf:                   v.AsOf,
	}
}

func recordResponse(r domain.TransitionRecord) dto.RecordResponse {
	return dto.RecordResponse{
		ID:         r.ID,
		Seq:        r.Seq,
		Kind:       r.Kind,
		FromStatus: r.FromStatus,
		ToStatus:   r.ToStatus,
		ActorID:    r.ActorID,
		ActorRole:  r.ActorRole,
		Reason:     r.Reason,
		Details:    r.Details,
		OccurredAt: r.OccurredAt,
	}
}

func effectNames(effects []rules.SideEffect) []string {
	out := make([]string, len(effects))
	for i, e := range effects {
		out[i] = string(e)
	}
	return out
}
