package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

// parsePage reads page and limit. Listing is only paginated when the caller
// asks for a page.
func parsePage(c *fiber.Ctx) (page, limit int, paginated bool) {
	if c.Query("page") == "" {
		return 0, parsePositiveInt(c.Query("limit"), 0), false
	}

	page = parsePositiveInt(c.Query("page"), 1)
	limit = parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit, true
}

func buildPaginationMeta(page, limit, total int) models.PaginationMeta {
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return models.PaginationMeta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
