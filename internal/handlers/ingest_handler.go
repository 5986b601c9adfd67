package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/formadex/crm-backend/internal/ingest"
	"github.com/formadex/crm-backend/internal/models"
	"github.com/formadex/crm-backend/internal/realtime"
	"github.com/formadex/crm-backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// IngestHandler accepts event submissions from trusted non-interactive
// callers, persists them and hands them to the broadcast hub.
type IngestHandler struct {
	eventRepository repositories.EventRepository
	hub             *realtime.Hub
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(eventRepo repositories.EventRepository, hub *realtime.Hub) *IngestHandler {
	return &IngestHandler{
		eventRepository: eventRepo,
		hub:             hub,
	}
}

// RegisterServiceRoutes registers ingestion routes on the service-token group
func (h *IngestHandler) RegisterServiceRoutes(g *echo.Group) {
	g.POST("/notifications", h.Ingest)
}

// Ingest handles a single event description or a {"batch": [...]} list.
// Batch elements are processed independently; one bad element never aborts
// the rest.
func (h *IngestHandler) Ingest(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable request body")
	}

	var probe struct {
		Batch []json.RawMessage `json:"batch"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if probe.Batch != nil {
		return h.ingestBatch(c, probe.Batch)
	}

	event, err := ingest.Normalize(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.eventRepository.Create(event); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.hub.Publish(event)

	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"data":    echo.Map{"notification": event},
	})
}

func (h *IngestHandler) ingestBatch(c echo.Context, items []json.RawMessage) error {
	created := make([]*models.NotificationEvent, 0, len(items))
	itemErrors := make([]echo.Map, 0)

	for i, raw := range items {
		event, err := ingest.Normalize(raw)
		if err != nil {
			itemErrors = append(itemErrors, echo.Map{"index": i, "error": err.Error()})
			continue
		}
		if err := h.eventRepository.Create(event); err != nil {
			itemErrors = append(itemErrors, echo.Map{"index": i, "error": err.Error()})
			continue
		}
		h.hub.Publish(event)
		created = append(created, event)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"created":       created,
			"errors":        itemErrors,
			"created_count": len(created),
			"failed_count":  len(itemErrors),
		},
	})
}
