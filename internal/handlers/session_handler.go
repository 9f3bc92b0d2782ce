package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/services"
)

const recurringDateLayout = "2006-01-02"

type SessionHandler struct {
	service sessionApplicationService
}

type sessionApplicationService interface {
	GetSessions(ctx context.Context, subject services.Subject, query services.SessionQuery) ([]models.SessionView, error)
	CountSessions(ctx context.Context, subject services.Subject, query services.SessionQuery) (int, error)
	GetSessionByID(ctx context.Context, subject services.Subject, sessionID int64) (*models.SessionView, error)
	GetStats(ctx context.Context, subject services.Subject) (*models.SessionStats, error)
	CreateAvailable(ctx context.Context, subject services.Subject, specs []services.SlotSpec) ([]models.SessionView, error)
	CreateRecurring(ctx context.Context, subject services.Subject, spec services.RecurringSpec) (*models.RecurringResult, error)
	Book(ctx context.Context, subject services.Subject, sessionID int64, opts services.BookOptions) (*models.SessionView, error)
	Confirm(ctx context.Context, subject services.Subject, sessionID int64) (*models.SessionView, error)
	Complete(ctx context.Context, subject services.Subject, sessionID int64, notes *string) (*models.SessionView, error)
	Cancel(ctx context.Context, subject services.Subject, sessionID int64, reason string) (*models.CancelResult, error)
	AssignTrainer(ctx context.Context, subject services.Subject, sessionID int64, trainerID int64) (*models.SessionView, error)
}

func NewSessionHandler(service *services.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type slotRequest struct {
	SessionDate string  `json:"session_date" validate:"required"`
	EndDate     *string `json:"end_date"`
	Duration    int     `json:"duration" validate:"gte=0,lte=1440"`
	TrainerID   *int64  `json:"trainer_id" validate:"omitempty,gt=0"`
	Location    *string `json:"location"`
	SessionType *string `json:"session_type"`
	Notes       *string `json:"notes"`
}

type createAvailableRequest struct {
	Slots []slotRequest `json:"slots" validate:"required,min=1,dive"`
}

type createRecurringRequest struct {
	StartDate  string   `json:"start_date" validate:"required"`
	EndDate    string   `json:"end_date" validate:"required"`
	DaysOfWeek []int    `json:"days_of_week" validate:"required,min=1,dive,gte=0,lte=6"`
	Times      []string `json:"times" validate:"required,min=1,dive,required"`
	TrainerID  *int64   `json:"trainer_id" validate:"omitempty,gt=0"`
	Location   *string  `json:"location"`
	Duration   int      `json:"duration" validate:"gte=0,lte=1440"`
}

type bookSessionRequest struct {
	DeductSession *bool `json:"deduct_session"`
}

type completeSessionRequest struct {
	Notes *string `json:"notes"`
}

type cancelSessionRequest struct {
	Reason string `json:"reason"`
}

type assignTrainerRequest struct {
	TrainerID int64 `json:"trainer_id" validate:"required,gt=0"`
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	query, fields := parseSessionQuery(c)
	if len(fields) > 0 {
		return fieldsResponse(c, fields)
	}

	page, limit, paginated := parsePage(c)
	query.Limit = limit
	if paginated {
		query.Offset = (page - 1) * limit
	}

	sessions, err := h.service.GetSessions(c.UserContext(), subject, query)
	if err != nil {
		return mapServiceError(c, err)
	}
	if !paginated {
		return c.JSON(fiber.Map{"sessions": sessions})
	}

	total, err := h.service.CountSessions(c.UserContext(), subject, query)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"sessions":   sessions,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *SessionHandler) Stats(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	stats, err := h.service.GetStats(c.UserContext(), subject)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"stats": stats})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSessionByID(c.UserContext(), subject, sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CreateAvailable(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createAvailableRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return validationResponse(c, err)
	}

	specs := make([]services.SlotSpec, 0, len(req.Slots))
	fields := map[string]string{}
	for i, slot := range req.Slots {
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(slot.SessionDate))
		if err != nil {
			fields[fmt.Sprintf("slots[%d].session_date", i)] = "must be a valid RFC3339 timestamp"
			continue
		}
		spec := services.SlotSpec{
			SessionDate: &start,
			Duration:    slot.Duration,
			TrainerID:   slot.TrainerID,
			Location:    slot.Location,
			SessionType: slot.SessionType,
			Notes:       slot.Notes,
		}
		if slot.EndDate != nil {
			end, err := parseOptionalTime(*slot.EndDate)
			if err != nil {
				fields[fmt.Sprintf("slots[%d].end_date", i)] = "must be a valid RFC3339 timestamp"
				continue
			}
			spec.EndDate = end
		}
		specs = append(specs, spec)
	}
	if len(fields) > 0 {
		return fieldsResponse(c, fields)
	}

	sessions, err := h.service.CreateAvailable(c.UserContext(), subject, specs)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"sessions": sessions})
}

func (h *SessionHandler) CreateRecurring(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createRecurringRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return validationResponse(c, err)
	}

	fields := map[string]string{}
	startDate, err := time.Parse(recurringDateLayout, strings.TrimSpace(req.StartDate))
	if err != nil {
		fields["start_date"] = "must be a YYYY-MM-DD date"
	}
	endDate, err := time.Parse(recurringDateLayout, strings.TrimSpace(req.EndDate))
	if err != nil {
		fields["end_date"] = "must be a YYYY-MM-DD date"
	}
	if len(fields) > 0 {
		return fieldsResponse(c, fields)
	}

	result, err := h.service.CreateRecurring(c.UserContext(), subject, services.RecurringSpec{
		StartDate:  startDate,
		EndDate:    endDate,
		DaysOfWeek: req.DaysOfWeek,
		Times:      req.Times,
		TrainerID:  req.TrainerID,
		Location:   req.Location,
		Duration:   req.Duration,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *SessionHandler) BookSession(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req bookSessionRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	session, err := h.service.Book(c.UserContext(), subject, sessionID, services.BookOptions{
		DeductSession: req.DeductSession,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ConfirmSession(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.Confirm(c.UserContext(), subject, sessionID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CompleteSession(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req completeSessionRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	session, err := h.service.Complete(c.UserContext(), subject, sessionID, req.Notes)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CancelSession(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req cancelSessionRequest
	if err := parseOptionalBody(c, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := h.service.Cancel(c.UserContext(), subject, sessionID, req.Reason)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": result})
}

func (h *SessionHandler) AssignTrainer(c *fiber.Ctx) error {
	subject, err := parseSubject(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req assignTrainerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return validationResponse(c, err)
	}

	session, err := h.service.AssignTrainer(c.UserContext(), subject, sessionID, req.TrainerID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func parseSessionQuery(c *fiber.Ctx) (services.SessionQuery, map[string]string) {
	fields := map[string]string{}
	query := services.SessionQuery{}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := models.ParseSessionStatus(part)
			if err != nil {
				fields["status"] = "unknown status " + strings.TrimSpace(part)
				break
			}
			query.Statuses = append(query.Statuses, status)
		}
	}

	var err error
	if query.TrainerID, err = parseOptionalID(c.Query("trainer_id")); err != nil {
		fields["trainer_id"] = "must be a positive id"
	}
	if query.ClientID, err = parseOptionalID(c.Query("client_id")); err != nil {
		fields["client_id"] = "must be a positive id"
	}
	if query.From, err = parseOptionalTime(c.Query("from")); err != nil {
		fields["from"] = "must be a valid RFC3339 timestamp"
	}
	if query.To, err = parseOptionalTime(c.Query("to")); err != nil {
		fields["to"] = "must be a valid RFC3339 timestamp"
	}

	return query, fields
}
