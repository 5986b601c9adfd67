package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/formadex/crm-backend/internal/models"
	"github.com/formadex/crm-backend/internal/realtime"
	"github.com/formadex/crm-backend/internal/repositories"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// ActionCallbackRequest is the workflow engine's completion report. It
// carries either a persisted event id (legacy mode) or a bare correlation
// token; at least one is mandatory.
type ActionCallbackRequest struct {
	EventID          *uint          `json:"event_id"`
	CorrelationToken string         `json:"correlation_token"`
	Status           string         `json:"status" validate:"required,oneof=success error"`
	ResponseType     string         `json:"response_type"`
	Data             models.JSONMap `json:"data"`
	Error            string         `json:"error"`
	ExecutionID      string         `json:"execution_id"`
	TargetRole       string         `json:"target_role" validate:"omitempty,oneof=admin trainer sales"`
}

// CallbackHandler matches workflow completion callbacks back to their
// pending operation and republishes the outcome through the hub.
type CallbackHandler struct {
	eventRepository repositories.EventRepository
	lockRepository  repositories.ActionLockRepository
	hub             *realtime.Hub
}

// NewCallbackHandler creates a new CallbackHandler
func NewCallbackHandler(eventRepo repositories.EventRepository, lockRepo repositories.ActionLockRepository, hub *realtime.Hub) *CallbackHandler {
	return &CallbackHandler{
		eventRepository: eventRepo,
		lockRepository:  lockRepo,
		hub:             hub,
	}
}

// RegisterServiceRoutes registers callback routes on the service-token group
func (h *CallbackHandler) RegisterServiceRoutes(g *echo.Group) {
	g.POST("/actions/callback", h.ActionCallback)
}

// ActionCallback resolves the lock's terminal state (a no-op when already
// terminal, so engine retries are harmless) and republishes the outcome so
// waiting clients can settle.
func (h *CallbackHandler) ActionCallback(c echo.Context) error {
	var req ActionCallbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var ref models.CorrelationRef
	switch {
	case req.EventID != nil:
		ref = models.ByEventID(*req.EventID)
	case req.CorrelationToken != "":
		ref = models.ByToken(req.CorrelationToken)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "event_id or correlation_token is required")
	}

	// Legacy mode resolves the event first. A callback naming an unknown
	// event must fail synchronously before any state is written, so the
	// engine's retry still finds the lock in progress.
	var event *models.NotificationEvent
	if eventID, ok := ref.EventID(); ok {
		var err error
		event, err = h.eventRepository.GetByID(eventID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, "Notification event not found")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	lockStatus := models.LockCompleted
	if req.Status != realtime.OutcomeSuccess {
		lockStatus = models.LockFailed
	}
	transitioned, err := h.lockRepository.Finish(ref, lockStatus, req.Error)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !transitioned {
		// Already terminal (engine retry) or a bare action with no lock.
		// Still republish: a late subscriber may be waiting for it.
		log.Printf("callback: no in-progress lock for %s", ref)
	}

	out := realtime.ActionOutcome{
		Ref:        ref,
		ActionKind: req.ResponseType,
		Status:     req.Status,
		Data:       req.Data,
		Error:      req.Error,
		TargetRole: req.TargetRole,
	}

	if event != nil {
		if err := h.eventRepository.MergeOutcome(event.ID, req.Status, outcomeData(&req)); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}

		if event.ActionKind != "" {
			out.ActionKind = event.ActionKind
		}
		// The event's audience decides who hears about the outcome:
		// "all" (and user-targeted events) broadcast unfiltered, role
		// audiences stay within their role.
		out.TargetRole = event.Audience.Role()
	}

	h.hub.PublishActionOutcome(out)

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"resolved": transitioned},
	})
}

// outcomeData folds the callback's envelope fields into the payload merged
// onto the legacy event.
func outcomeData(req *ActionCallbackRequest) models.JSONMap {
	data := models.JSONMap{}
	for k, v := range req.Data {
		data[k] = v
	}
	if req.ResponseType != "" {
		data["response_type"] = req.ResponseType
	}
	if req.ExecutionID != "" {
		data["execution_id"] = req.ExecutionID
	}
	if req.Error != "" {
		data["error"] = req.Error
	}
	return data
}
