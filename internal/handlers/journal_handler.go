package handlers

import (
	"net/http"
	"strconv"

	"github.com/formadex/crm-backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// JournalHandler exposes the dispatch error journal for operator tooling.
type JournalHandler struct {
	journalRepository repositories.JournalRepository
}

// NewJournalHandler creates a new JournalHandler
func NewJournalHandler(journalRepo repositories.JournalRepository) *JournalHandler {
	return &JournalHandler{journalRepository: journalRepo}
}

// RegisterServiceRoutes registers journal routes on the service-token group
func (h *JournalHandler) RegisterServiceRoutes(g *echo.Group) {
	g.GET("/dispatch-errors", h.RecentDispatchErrors)
}

// RecentDispatchErrors lists the most recent exhausted dispatches, newest
// first.
func (h *JournalHandler) RecentDispatchErrors(c echo.Context) error {
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, err := h.journalRepository.Recent(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"errors": entries,
			"count":  len(entries),
		},
	})
}
