package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/services"
)

type OrderHandler struct {
	service allocationApplicationService
}

type allocationApplicationService interface {
	AllocateFromOrder(ctx context.Context, orderID int64, userID int64) (*models.AllocationResult, error)
}

func NewOrderHandler(service *services.AllocationService) *OrderHandler {
	return &OrderHandler{service: service}
}

type allocateSessionsRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

// AllocateSessions converts a completed order into session credits for the
// order's owner. The route is admin only.
func (h *OrderHandler) AllocateSessions(c *fiber.Ctx) error {
	orderID, err := parseIDParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid order id"})
	}

	var req allocateSessionsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return validationResponse(c, err)
	}

	result, err := h.service.AllocateFromOrder(c.UserContext(), orderID, req.UserID)
	if err != nil {
		return mapServiceError(c, err)
	}

	status := fiber.StatusOK
	if result.Allocated {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(result)
}
